package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the log file inside the configured log directory.
const LogFileName = "fileshare.log"

// lineHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<component>\t<message>\t<key=value ...>
type lineHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	component string
	attrs     []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	line := fmt.Sprintf("%s\t%s\t%s\t%s", ts, r.Level.String(), h.component, r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
		return true
	})

	// Session goroutines log concurrently; keep lines whole.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &lineHandler{
		mu:        h.mu,
		w:         h.w,
		level:     h.level,
		component: h.component,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *lineHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to logDir/fileshare.log
// and, when echo is non-nil, to echo as well. It returns the logger and the
// open log file for cleanup.
func newLogger(logDir, component string, level slog.Level, echo io.Writer) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, LogFileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	var w io.Writer = f
	if echo != nil {
		w = io.MultiWriter(f, echo)
	}
	handler := &lineHandler{mu: &sync.Mutex{}, w: w, level: level, component: component}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the fileshare.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
