// Package logger is the structured logger shared by the CLI, the HTTP server
// and the write path. It is a thin wrapper over zerolog.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger wraps a zerolog.Logger.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string    `yaml:"level"`       // debug, info, warn, error
	Format     string    `yaml:"format"`      // json, console
	TimeFormat string    `yaml:"time_format"` // rfc3339, unix, unixms, unixmicro
	Output     io.Writer `yaml:"-"`
}

// DefaultConfig returns the defaults used by the CLI: JSON lines on stderr so
// that stdout stays free for `geori dump`.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     FormatJSON,
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New creates a logger. The level applies to this logger only; the global
// zerolog level is left alone so that several loggers can coexist.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = timeFormat(cfg.TimeFormat)

	if strings.EqualFold(cfg.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zlog := zerolog.New(out).With().Timestamp().Logger()

	return &Logger{zlog: zlog.Level(level(cfg.Level))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext returns a copy of ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext retrieves the logger stored by WithContext, falling back to the
// global logger.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return global
	}
	return &Logger{zlog: *zlog}
}

// ForTable returns a child logger tagged with the qualified table name.
func (l *Logger) ForTable(name string) *Logger {
	return l.With().Str("table", name).Logger()
}

// With creates a child logger with additional fields
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Context wraps zerolog.Context for field chaining
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Err(err error) *Context {
	c.ctx = c.ctx.Err(err)
	return c
}

func (c *Context) Any(key string, val any) *Context {
	c.ctx = c.ctx.Interface(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// DebugWith logs msg at debug level with fields attached.
func (l *Logger) DebugWith(msg string, fields map[string]any) {
	l.zlog.Debug().Fields(fields).Msg(msg)
}

// InfoWith logs msg at info level with fields attached.
func (l *Logger) InfoWith(msg string, fields map[string]any) {
	l.zlog.Info().Fields(fields).Msg(msg)
}

// ErrorWith logs msg and err at error level with fields attached.
func (l *Logger) ErrorWith(msg string, err error, fields map[string]any) {
	l.zlog.Error().Err(err).Fields(fields).Msg(msg)
}

// level parses a level name, defaulting to info.
func level(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func timeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

var global = New(nil)

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global = l
}
