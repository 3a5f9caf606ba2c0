// Package logging wraps zap the way andreimerfu-pllm's internal/logger
// does: a package-level logger built once from env/level, with Get()
// lazily initializing a sane default for callers (tests, early CLI
// parsing) that run before Init.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// Init builds the package logger from an ENV value ("production" or
// anything else) and a LOG_LEVEL name. Production gets the JSON encoder;
// every other environment gets the console encoder with colored levels.
func Init(env, level string) *zap.Logger {
	var cfg zap.Config
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(levelFor(level))

	built, err := cfg.Build()
	if err != nil {
		built = zap.NewNop()
	}

	mu.Lock()
	logger = built
	mu.Unlock()
	return built
}

func levelFor(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Get returns the package logger, lazily initializing it from the
// process environment (ENV, LOG_LEVEL) on first use so library code
// never has to nil-check.
func Get() *zap.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		return l
	}
	return Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
}

// Sync flushes any buffered log entries; call once at process exit.
func Sync() {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
