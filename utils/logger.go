package utils

import (
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogOptions controls verbosity and where log files land.
type LogOptions struct {
	Debug bool
	// Dir receives arbscan.log and arbscan-error.log alongside the
	// standard streams. Empty means streams only, which suits one-shot
	// commands and tests.
	Dir string
}

// InitLogger builds the process-wide logger once; later calls return the
// first result regardless of options.
func InitLogger(opts LogOptions) *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if opts.Debug {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		if opts.Dir != "" {
			cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(opts.Dir, "arbscan.log"))
			cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, filepath.Join(opts.Dir, "arbscan-error.log"))
		}

		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := cfg.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// GetLogger returns the process-wide logger, initializing a streams-only
// one when nothing configured it first.
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(LogOptions{})
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
