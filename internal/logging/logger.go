// Package logging provides config-driven categorized zap loggers for cttsync.
// Every subsystem asks for a logger by Category; the returned logger is a named
// child of one process-wide root so a single level and encoding apply everywhere.
// Before Init is called (and in tests) every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, config, shutdown
	CategoryBrowser     Category = "browser"     // Chrome launch, navigation, snapshots
	CategoryLayout      Category = "layout"      // Geometric timeline extraction
	CategoryTracking    Category = "tracking"    // Tracking code recovery
	CategoryReconcile   Category = "reconcile"   // Per-order pipeline
	CategoryCoordinator Category = "coordinator" // Batch runs, worker pool
	CategoryOrders      Category = "orders"      // Order store HTTP calls
	CategoryAPI         Category = "api"         // Operational HTTP API
	CategoryHistory     Category = "history"     // Run history persistence
	CategoryNotify      Category = "notify"      // AMQP status events
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	Categories map[string]bool // per-category toggles; missing means enabled
	Verbose    bool            // forces debug level
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	cache      = make(map[Category]*zap.Logger)
)

// ParseLevel maps a config level string onto a zap level. Unknown values are info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a zap logger from options without installing it.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	switch strings.ToLower(opts.Format) {
	case "", "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Init builds the root logger and installs it for every category.
func Init(opts Options) (*zap.Logger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	Install(l, opts.Categories)
	return l, nil
}

// Install replaces the root logger. A nil logger restores the no-op default.
func Install(l *zap.Logger, enabled map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = enabled
	cache = make(map[Category]*zap.Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := cache[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := cache[category]; ok {
		return l
	}
	l := zap.NewNop()
	if categoryEnabledLocked(category) {
		l = root.Named(string(category))
	}
	cache[category] = l
	return l
}

// Root returns the installed root logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes the root logger. Errors from syncing stdout/stderr are ignored.
func Sync() {
	_ = Root().Sync()
}
