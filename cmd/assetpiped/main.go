// Command assetpiped runs the asset pipeline as a long-lived service: it
// watches a project tree, compiles changed sources through whatever
// compilers the embedding deployment has registered, and exposes the
// resulting AssetDB over HTTP and MCP.
//
// Usage:
//
//	assetpiped                    Start the service (default)
//	assetpiped serve              Start the service
//	assetpiped version            Show version
//	assetpiped status             Show service status
//	assetpiped stop               Stop the running service
//	assetpiped mcp                Start MCP server (stdio mode)
//	assetpiped init-config        Create example configuration file
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/forgekit/assetpipe/internal/api"
	"github.com/forgekit/assetpipe/internal/config"
	"github.com/forgekit/assetpipe/internal/logger"
	"github.com/forgekit/assetpipe/internal/mcpsrv"
	"github.com/forgekit/assetpipe/internal/service"
	"github.com/forgekit/assetpipe/pkg/assetsearch"
	"github.com/forgekit/assetpipe/pkg/pipeline"
	"github.com/forgekit/assetpipe/pkg/platform"
)

var version = "dev"

var configPath string

func main() {
	api.SetVersion(version)

	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			// skip unknown flags
		case command == "":
			command = arg
		default:
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		fmt.Printf("assetpiped version %s\n", version)
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp":
		err = cmdMCP()
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`assetpiped - offline asset compilation and runtime registry service

Usage:
  assetpiped [flags] [command] [args]

Commands:
  serve         Start the service (default)
  version       Show version information
  status        Show service status
  stop          Stop the running service
  mcp           Start MCP server (stdio mode)
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.assetpiped/config.toml)

Environment:
  ASSETPIPE_HOST    Override the bind host
  ASSETPIPE_PORT    Override the bind port
  ASSETPIPE_CONFIG  Path to configuration file (alternative to --config)`)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("ASSETPIPE_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	log := logger.SetupLogger(cfg)

	pipe, err := pipeline.Open(pipeline.Config{
		ProjectRoot: cfg.Pipeline.ProjectRoot,
		CacheDir:    cfg.CacheDir(),
		Workers:     cfg.Pipeline.Workers,
		Platform:    platform.Current(),
		Search:      assetsearch.Config{PersistPath: cfg.Pipeline.SearchDBPath},
	}, logger.NewDispatchAdapter(log))
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	if err := pipe.AddRoot(cfg.Pipeline.ProjectRoot); err != nil {
		return fmt.Errorf("add root: %w", err)
	}
	if cfg.Pipeline.WatchEnabled {
		pipe.StartWatching()
	}

	daemon := service.NewDaemon(cfg, log)
	if cfg.API.Enabled {
		handler := api.NewServer(cfg, pipe).Handler()
		if err := daemon.Start(handler); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
	}

	fmt.Printf("assetpiped v%s started on %s\n", version, cfg.Address())
	fmt.Printf("project: %s\n", cfg.Pipeline.ProjectRoot)

	daemon.Wait()
	return nil
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("assetpiped: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Config: %s\n", getConfigPath())
	} else {
		fmt.Println("assetpiped: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, _ := service.IsRunning(cfg)
	if !running {
		fmt.Println("assetpiped is not running")
		return nil
	}

	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("assetpiped stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.SetupLogger(cfg)

	pipe, err := pipeline.Open(pipeline.Config{
		ProjectRoot: cfg.Pipeline.ProjectRoot,
		CacheDir:    cfg.CacheDir(),
		Workers:     cfg.Pipeline.Workers,
		Platform:    platform.Current(),
	}, logger.NewDispatchAdapter(log))
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	srv := mcpsrv.New(pipe)
	return srv.ServeStdio()
}

func cmdInitConfig() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := config.WriteExampleConfig(path); err != nil {
		return err
	}
	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
