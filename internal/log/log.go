// Package log wraps zap behind package-level helpers so call sites
// write log.Info("msg", zap.String("k", "v")) without threading a
// logger through every constructor.
package log

import (
	"sync"

	"go.uber.org/zap"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	mu     sync.RWMutex
	logger = newLogger(Config{Level: "info", Format: "console"})
)

func newLogger(cfg Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zc.Level = lvl
	}
	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap only fails to build on a bad sink; the default config
		// writes to stderr and cannot hit that path.
		panic(err)
	}
	return l
}

// Init replaces the global logger. Safe to call more than once; the
// last call wins. Binaries call it right after loading config.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(cfg)
}

// L returns the global logger for callers that need to attach
// persistent fields with With.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.WithOptions(zap.AddCallerSkip(-1))
}

func Debug(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Error(msg, fields...)
}

// Fatal logs the message and exits the process.
func Fatal(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Fatal(msg, fields...)
}
