// Package logger provides centralized logging using arbor.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"

	"github.com/forgekit/assetpipe/internal/config"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance.
// If InitLogger() hasn't been called yet, returns a fallback console logger.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	// Double-check after acquiring write lock
	if globalLogger == nil {
		// WARNING: Using fallback logger - InitLogger() should be called during startup
		globalLogger = arbor.NewLogger().WithConsoleWriter(createWriterConfig(nil, models.LogWriterTypeConsole, ""))
		// Log warning about initialization order issue
		globalLogger.Warn().Msg("Using fallback logger - InitLogger() should be called during startup")
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton instance.
func InitLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// outputKinds reports which sinks an assetpiped config requests. "both" is
// accepted as a single legacy value meaning file+console, since the pipeline
// config's Logging.Output predates the stdout/console split.
func outputKinds(outputs []string) (file, console bool) {
	if len(outputs) == 1 && outputs[0] == "both" {
		return true, true
	}
	for _, output := range outputs {
		switch output {
		case "file":
			file = true
		case "stdout", "console":
			console = true
		}
	}
	return file, console
}

// SetupLogger wires the global arbor logger for a running pipeline: a
// rotating file sink under <data_dir>/logs/assetpiped.log, a console sink,
// or both, plus an always-on in-memory ring buffer the MCP/HTTP surfaces can
// drain for recent activity without re-parsing log files. Called once at
// daemon startup before the pipeline itself opens, so AssetDB/compiler
// errors during Open are captured too.
func SetupLogger(cfg *config.Config) arbor.ILogger {
	logger := arbor.NewLogger()
	logsDir := filepath.Join(cfg.Service.DataDir, "logs")

	wantFile, wantConsole := outputKinds(cfg.Logging.Output)

	if wantFile {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			logger.WithConsoleWriter(createWriterConfig(cfg, models.LogWriterTypeConsole, "")).
				Warn().Err(err).Str("logs_dir", logsDir).Msg("failed to create logs directory, file sink disabled")
			wantFile = false
		} else {
			logFile := filepath.Join(logsDir, "assetpiped.log")
			logger = logger.WithFileWriter(createWriterConfig(cfg, models.LogWriterTypeFile, logFile))
		}
	}

	if wantConsole || !wantFile {
		logger = logger.WithConsoleWriter(createWriterConfig(cfg, models.LogWriterTypeConsole, ""))
	}
	if !wantFile && !wantConsole {
		logger.Warn().Strs("configured_outputs", cfg.Logging.Output).
			Msg("no visible log outputs configured, falling back to console")
	}

	logger = logger.WithMemoryWriter(createWriterConfig(cfg, models.LogWriterTypeMemory, ""))
	logger = logger.WithLevelFromString(cfg.Logging.Level)

	InitLogger(logger)

	logger.Info().
		Str("project_root", cfg.Pipeline.ProjectRoot).
		Str("cache_dir", cfg.CacheDir()).
		Msg("logger ready")

	return logger
}

// createWriterConfig creates a standard writer configuration with user preferences.
func createWriterConfig(cfg *config.Config, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	// Default time format if not specified (HH:MM:SS.mmm for alignment)
	timeFormat := "15:04:05.000"
	if cfg != nil && cfg.Logging.TimeFormat != "" {
		timeFormat = cfg.Logging.TimeFormat
	}

	// Determine output format (text/logfmt vs JSON)
	outputType := models.OutputFormatJSON
	if cfg != nil && cfg.Logging.Format == "text" {
		outputType = models.OutputFormatLogfmt
	}

	// Calculate max size in bytes
	var maxSize int64 = 100 * 1024 * 1024 // 100 MB default
	if cfg != nil && cfg.Logging.MaxSizeMB > 0 {
		maxSize = int64(cfg.Logging.MaxSizeMB) * 1024 * 1024
	}

	maxBackups := 5
	if cfg != nil && cfg.Logging.MaxBackups > 0 {
		maxBackups = cfg.Logging.MaxBackups
	}

	return models.WriterConfiguration{
		Type:             writerType,
		FileName:         filename,
		TimeFormat:       timeFormat,
		OutputType:       outputType,
		DisableTimestamp: false,
		MaxSize:          maxSize,
		MaxBackups:       maxBackups,
	}
}

// Stop flushes any remaining context logs before application shutdown.
// Safe to call multiple times (Arbor's Stop is idempotent).
func Stop() {
	arborcommon.Stop()
}
