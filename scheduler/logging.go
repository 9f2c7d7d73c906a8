package scheduler

import (
	"sync"

	"github.com/rs/zerolog"
)

// Package-level structured logger, mirroring the teacher's
// SetStructuredLogger global-configuration pattern (eventloop/logging.go):
// a single loop-wide logging sink is an infrastructure cross-cutting
// concern, not something worth threading through every constructor.
var globalLogger struct {
	sync.RWMutex
	logger zerolog.Logger
	set    bool
}

// SetLogger installs the package-wide structured logger. Passing the zero
// value disables logging (back to the default no-op sink).
func SetLogger(logger zerolog.Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
	globalLogger.set = true
}

func currentLogger() zerolog.Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.set {
		return globalLogger.logger
	}
	return zerolog.Nop()
}
