// Package klog provides category-scoped structured logging for the kernel.
//
// Every subsystem (pager, sidecar, gatekeeper, policy, proposer, session,
// tools, pipeline) gets its own named logger so operators can grep a single
// stream for one subsystem's activity without touching the others. Debug
// output is gated on config, not compile flags, so a production build can
// turn it on without a rebuild.
package klog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryPager      Category = "pager"
	CategorySidecar    Category = "sidecar"
	CategoryGatekeeper Category = "gatekeeper"
	CategoryPolicy     Category = "policy"
	CategoryProposer   Category = "proposer"
	CategorySession    Category = "session"
	CategoryTools      Category = "tools"
	CategoryPipeline   Category = "pipeline"
	CategoryKernel     Category = "kernel"
)

var (
	mu         sync.RWMutex
	base       *zap.Logger
	debugMode  bool
	loggers    = make(map[Category]*zap.SugaredLogger)
	configured bool
)

// Configure installs the root logger and debug gate. Safe to call once at
// startup; subsequent calls replace the base logger for all categories.
func Configure(debug bool) {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	base = logger
	debugMode = debug
	loggers = make(map[Category]*zap.SugaredLogger)
	configured = true
}

func ensureConfigured() {
	if !configured {
		Configure(false)
	}
}

// Get returns the memoized logger for a category, building it on first use.
func Get(cat Category) *zap.SugaredLogger {
	ensureConfigured()

	mu.RLock()
	l, ok := loggers[cat]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l = base.With(zap.String("category", string(cat))).Sugar()
	loggers[cat] = l
	return l
}

// Debug logs a debug-level message for a category when debug mode is on.
func Debug(cat Category, format string, args ...interface{}) {
	mu.RLock()
	on := debugMode
	mu.RUnlock()
	if !on {
		return
	}
	Get(cat).Debugf(format, args...)
}

// Info logs an info-level message for a category.
func Info(cat Category, format string, args ...interface{}) {
	Get(cat).Infof(format, args...)
}

// Warn logs a warn-level message for a category.
func Warn(cat Category, format string, args ...interface{}) {
	Get(cat).Warnf(format, args...)
}

// Error logs an error-level message for a category.
func Error(cat Category, format string, args ...interface{}) {
	Get(cat).Errorf(format, args...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	b := base
	mu.RUnlock()
	if b != nil {
		_ = b.Sync()
	}
}
