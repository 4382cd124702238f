// Package logger owns the process-wide zap logger. Components grab it
// with Get instead of threading a *zap.Logger through every constructor.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	global *zap.Logger
	level  zap.AtomicLevel
	once   sync.Once
)

// DefaultConfig reads LOG_LEVEL and LOG_FORMAT from the environment so
// the logger is usable before the config package has loaded.
func DefaultConfig() Config {
	return Config{
		Level:  envOr("LOG_LEVEL", "info"),
		Format: envOr("LOG_FORMAT", "console"),
	}
}

// Initialize builds the global logger once; later calls are no-ops.
func Initialize(cfg Config) {
	once.Do(func() {
		level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

		var encoder zapcore.Encoder
		if cfg.Format == "json" {
			encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
		} else {
			encoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
		}

		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)

		opts := []zap.Option{
			zap.AddCaller(),
			zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		}
		if cfg.Level == "debug" {
			opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
		}
		global = zap.New(core, opts...)
	})
}

// Get returns the global logger, initializing with defaults when nothing
// has configured it yet.
func Get() *zap.Logger {
	if global == nil {
		Initialize(DefaultConfig())
	}
	return global
}

// With creates a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// SetLevel changes the minimum level at runtime.
func SetLevel(lvl string) {
	if global != nil {
		level.SetLevel(parseLevel(lvl))
	}
}

func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if colorEnabled() {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.ToLower(value)
	}
	return fallback
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// colorEnabled honors the NO_COLOR convention with a LOG_COLOR override.
func colorEnabled() bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	if val := os.Getenv("LOG_COLOR"); val != "" {
		return val == "true" || val == "1"
	}
	return true
}
