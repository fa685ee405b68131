// Package logger provides the process-wide structured logger used by
// every package in the engine, so that internal/diag records and ordinary
// operational logging share one sink.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once sync.Once
	base *zap.SugaredLogger
)

// Logger returns the process-wide sugared logger, constructing a production
// zap logger on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		z, err := zap.NewProduction()
		if err != nil {
			z = zap.NewNop()
		}
		base = z.Sugar()
	})
	return base
}

// SetLogger overrides the process-wide logger, used by tests and by the CLI
// when a different encoder/level is requested.
func SetLogger(l *zap.SugaredLogger) {
	base = l
	once.Do(func() {}) // ensure future Logger() calls don't clobber an explicit SetLogger
}
