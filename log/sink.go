package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewConsole creates a Logger that writes text to os.Stderr, auto-detecting
// whether the stream is a terminal. On a TTY it colorizes level names (via
// go-colorable, so ANSI codes also work on Windows consoles); otherwise it
// falls back to plain JSON suitable for log aggregation.
func NewConsole(level slog.Level) *Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		out := colorable.NewColorableStderr()
		return &Logger{inner: slog.New(&consoleHandler{out: out, level: level, fmt: &ColorFormatter{}})}
	}
	return New(level)
}

// NewRotatingFile creates a Logger that writes JSON lines to path, rotating
// the file once it exceeds maxSizeMB and retaining maxBackups old files.
// Intended for long-running pool processes where stderr is not durable.
func NewRotatingFile(path string, maxSizeMB, maxBackups int, level slog.Level) *Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{inner: slog.New(h)}
}

// consoleHandler adapts the package's hand-rolled LogFormatter types to the
// slog.Handler interface so NewConsole can reuse ColorFormatter/TextFormatter
// instead of slog's own (uncolored) text handler.
type consoleHandler struct {
	out   io.Writer
	level slog.Level
	fmt   LogFormatter
	attrs map[string]interface{}
}

func (h *consoleHandler) Enabled(_ context.Context, lvl slog.Level) bool { return lvl >= h.level }

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	for k, v := range h.attrs {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	line := h.fmt.Format(LogEntry{
		Timestamp: r.Time,
		Level:     slogToLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
	})
	_, err := io.WriteString(h.out, line+"\n")
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make(map[string]interface{}, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		merged[k] = v
	}
	for _, a := range attrs {
		merged[a.Key] = a.Value.Any()
	}
	return &consoleHandler{out: h.out, level: h.level, fmt: h.fmt, attrs: merged}
}

func (h *consoleHandler) WithGroup(_ string) slog.Handler { return h }

func slogToLevel(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}
