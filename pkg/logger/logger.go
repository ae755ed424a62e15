// Package logger holds the process-wide zap logger. Until Init or Replace is
// called every entry is discarded.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FormatConsole selects the human readable development encoder. Any other
// format encodes entries as JSON.
const FormatConsole = "console"

// Options describes the logger built by New.
type Options struct {
	Level  zapcore.Level
	Format string
	// Fields are attached to every entry.
	Fields []zap.Field
}

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	current.Store(zap.NewNop())
}

// New builds a logger writing to stderr. Its level follows SetLevel.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Format == FormatConsole {
		cfg = zap.NewDevelopmentConfig()
	}
	level.SetLevel(opts.Level)
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(opts.Fields...), nil
}

// Init builds a logger from opts and installs it globally.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	Replace(l)
	return nil
}

// SetLevel changes the minimum level of loggers built by New.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	return current.Load()
}

// Sync flushes buffered entries of the global logger.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child of the global logger tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
