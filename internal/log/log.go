package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds the attributes stored by ContextAttrs to every
// record logged with that context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, _ := ctx.Value(slogKey).([]slog.Attr)
	a = append(slices.Clip(a), attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// Settings mirror the log section of the configuration.
type Settings struct {
	Level   string // error|warn|info|debug
	Output  string // stderr|stdout|discard|<path>
	Verbose bool   // forces debug
}

// New builds a JSON logger. The returned closer releases a log file and
// is a no-op for the standard streams.
func New(s Settings) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, nil, err
	}
	if s.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch s.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "discard":
		w = io.Discard
	default:
		if err := os.MkdirAll(filepath.Dir(s.Output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(s.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base)), closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
