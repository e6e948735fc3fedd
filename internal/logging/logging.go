// Package logging builds the structured logger shared by every saiten component.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Dir is the directory holding saiten.log. Empty means log to Stderr only.
	Dir string
	// Level is one of debug, info, warn, error. Unknown values fall back to info.
	Level string
	// Stderr also copies records to os.Stderr (used by serve).
	Stderr bool
}

// Logger is a slog.Logger that remembers where it writes.
type Logger struct {
	*slog.Logger
	LogFile string

	closer io.Closer
}

// New returns a JSON logger writing to a rotating file under opts.Dir.
func New(opts Options) *Logger {
	var (
		writers []io.Writer
		l       = &Logger{}
	)
	if opts.Dir != "" {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "saiten.log"),
			MaxSize:    16, // MB
			MaxBackups: 3,
			MaxAge:     28,
		}
		writers = append(writers, w)
		l.LogFile = w.Filename
		l.closer = w
	}
	if opts.Stderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	l.Logger = slog.New(h)

	l.Debug("logger started",
		slog.String("goos", runtime.GOOS),
		slog.String("goarch", runtime.GOARCH),
		slog.Int("num_cpu", runtime.NumCPU()))

	return l
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel maps a config level string to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Used in tests and as the
// default when a component is given a nil logger.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
