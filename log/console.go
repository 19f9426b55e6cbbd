package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ANSI escapes used for leveled console output.
const (
	ansiReset  = "\033[0m"
	ansiGray   = "\033[37m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiBold   = "\033[1m"
)

// ConsoleHandler is a slog.Handler that renders one human-readable line
// per record:
//
//	[2024-01-01 12:00:00] INFO  node started module=app
//
// Attributes print sorted by key so output is deterministic. With Color
// set, the level name is wrapped in an ANSI escape per level (debug gray,
// info green, warn yellow, error red). Intended for interactive CLI use;
// the rotating file sink stays JSON.
type ConsoleHandler struct {
	w     io.Writer
	level slog.Level
	color bool

	mu    *sync.Mutex
	attrs []slog.Attr
}

// ConsoleHandlerOptions configures a ConsoleHandler.
type ConsoleHandlerOptions struct {
	Level slog.Level
	Color bool
}

// NewConsoleHandler returns a ConsoleHandler writing to w.
func NewConsoleHandler(w io.Writer, opts ConsoleHandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		w:     w,
		level: opts.Level,
		color: opts.Color,
		mu:    &sync.Mutex{},
	}
}

// Enabled reports whether records at level are emitted.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle renders and writes one record.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString("] ")

	name := levelName(r.Level)
	if h.color {
		b.WriteString(levelColor(r.Level))
		fmt.Fprintf(&b, "%-5s", name)
		b.WriteString(ansiReset)
	} else {
		fmt.Fprintf(&b, "%-5s", name)
	}
	b.WriteString(" ")
	b.WriteString(r.Message)

	fields := make(map[string]string, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.String()
		return true
	})
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(fields[k])
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a handler that prepends attrs to every record.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &child
}

// WithGroup returns the handler unchanged: console output is flat, and
// nothing in timecoind logs grouped attributes.
func (h *ConsoleHandler) WithGroup(string) slog.Handler { return h }

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return ansiGray
	case l < slog.LevelWarn:
		return ansiGreen
	case l < slog.LevelError:
		return ansiYellow
	default:
		return ansiRed
	}
}

// ParseLevel maps a config string to a slog.Level, case-insensitively.
// Unrecognized strings fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
