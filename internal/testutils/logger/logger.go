package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// New returns a debug-level logger which routes the output through t.Log so
// log lines are attributed to the right (sub)test.
func New(t testing.TB) *slog.Logger {
	t.Helper()
	return NewLvl(t, slog.LevelDebug)
}

func NewLvl(t testing.TB, level slog.Level) *slog.Logger {
	t.Helper()
	return slog.New(&testHandler{t: t, level: level})
}

// NOP returns a logger which discards everything.
func NOP() *slog.Logger {
	return slog.New(&testHandler{level: slog.Level(100)})
}

type testHandler struct {
	t     testing.TB
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, rec slog.Record) error {
	if h.t == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", rec.Level, rec.Message)
	appendAttr := func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", h.key(a.Key), a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(appendAttr)
	h.t.Log(sb.String())
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}

func (h *testHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
