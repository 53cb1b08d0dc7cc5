package logger

import (
	"fmt"

	"github.com/ternarybob/arbor"
)

// DispatchAdapter wraps an arbor.ILogger to satisfy dispatch.Logger's
// printf-style Warnf/Errorf surface.
type DispatchAdapter struct {
	log arbor.ILogger
}

// NewDispatchAdapter wraps log for use as a dispatch.Logger.
func NewDispatchAdapter(log arbor.ILogger) DispatchAdapter {
	return DispatchAdapter{log: log}
}

// Warnf implements dispatch.Logger.
func (a DispatchAdapter) Warnf(format string, args ...any) {
	a.log.Warn().Msg(fmt.Sprintf(format, args...))
}

// Errorf implements dispatch.Logger.
func (a DispatchAdapter) Errorf(format string, args ...any) {
	a.log.Error().Msg(fmt.Sprintf(format, args...))
}
