package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Enabled bool
	Level   string
	Format  string // json|console
	File    string
	Console bool
	Service string
}

var global *zap.SugaredLogger

// Init initializes the package logger. A disabled or uninitialised logger
// drops everything.
func Init(opts Options) error {
	if !opts.Enabled {
		global = nil
		return nil
	}

	var outputs []string
	if opts.File != "" {
		dir := filepath.Dir(opts.File)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		outputs = append(outputs, opts.File)
	}
	if opts.Console || len(outputs) == 0 {
		outputs = append(outputs, "stdout")
	}

	var cfg zap.Config
	if strings.EqualFold(opts.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = []string{"stderr"}

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	if opts.Service != "" {
		base = base.With(zap.String("service", opts.Service))
	}
	global = base.Sugar()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	if global == nil {
		return
	}
	global.Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	if global == nil {
		return
	}
	global.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	if global == nil {
		return
	}
	global.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	if global == nil {
		return
	}
	global.Errorf(format, args...)
}

// Warnw logs a warning with structured key/value pairs.
func Warnw(msg string, keysAndValues ...interface{}) {
	if global == nil {
		return
	}
	global.Warnw(msg, keysAndValues...)
}

// Infow logs an info message with structured key/value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	if global == nil {
		return
	}
	global.Infow(msg, keysAndValues...)
}
