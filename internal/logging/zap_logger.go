package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Log output formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ZapLogger adapts a zap.SugaredLogger to tablekit.Logger.
// Verbose maps to the debug level.
type ZapLogger struct {
	base *zap.SugaredLogger
}

var _ tablekit.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a zap logger writing to stderr in the given encoding
// ("console" or "json"). Debug output is enabled when verbose is true.
func NewZapLogger(format string, verbose bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(format) {
	case FormatJSON:
		cfg.Encoding = "json"
	case FormatConsole, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s): %w", format, FormatConsole, FormatJSON, tablekit.ErrInvalidConfig)
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewZapLoggerFrom(logger), nil
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{base: logger.Sugar()}
}

// Named returns a logger with the name appended, e.g. "pool" or "paginate".
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{base: l.base.Named(name)}
}

// Component names a zap logger after the component using it. Other loggers
// have no names and are returned as is.
func Component(base tablekit.Logger, name string) tablekit.Logger {
	if z, ok := base.(*ZapLogger); ok {
		return z.Named(name)
	}
	return base
}

func (l *ZapLogger) Verbose(format string, args ...interface{}) {
	if !l.base.Desugar().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.base.Debugf(format, args...)
}

func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.base.Infof(format, args...)
}

func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.base.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// New returns the logger selected by format. An empty format or "plain"
// selects ConsoleLogger; "console" and "json" select ZapLogger.
func New(format string, verbose bool) (tablekit.Logger, error) {
	switch strings.ToLower(format) {
	case "", "plain":
		return NewConsoleLogger(verbose), nil
	default:
		return NewZapLogger(format, verbose)
	}
}
