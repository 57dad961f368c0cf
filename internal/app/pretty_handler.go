package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiPurple = "\x1b[35m"
)

// prettyHandler prints "clock LEVEL message" and hands the attributes to a text handler.
// Only the prefix is coloured: the text handler escapes control bytes in values.
type prettyHandler struct {
	out   io.Writer
	color bool
	level slog.Leveler

	mu   *sync.Mutex
	buf  *bytes.Buffer
	text slog.Handler
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	var o slog.HandlerOptions
	if opts != nil {
		o = *opts
	}
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}

	h := &prettyHandler{out: w, color: color, level: o.Level, mu: &sync.Mutex{}, buf: &bytes.Buffer{}}
	h.text = slog.NewTextHandler(h.buf, &slog.HandlerOptions{
		Level:       o.Level,
		AddSource:   o.AddSource,
		ReplaceAttr: prettyAttr(o.ReplaceAttr),
	})
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.text.Handle(ctx, r); err != nil {
		return err
	}
	attrs := strings.TrimSpace(h.buf.String())

	var line strings.Builder
	line.WriteString(h.paint(ansiDim, ts.Format("15:04:05.000")))
	line.WriteByte(' ')
	line.WriteString(h.levelTag(r.Level))
	line.WriteByte(' ')
	line.WriteString(h.paint(ansiBold, r.Message))
	if attrs != "" {
		line.WriteByte(' ')
		line.WriteString(attrs)
	}
	line.WriteByte('\n')
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.text = h.text.WithAttrs(attrs)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.text = h.text.WithGroup(name)
	return &cp
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "WARN ")
	case level < slog.LevelInfo:
		return h.paint(ansiPurple, "DEBUG")
	default:
		return h.paint(ansiBlue, "INFO ")
	}
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

// prettyAttr drops the fields already in the prefix and shortens the ones the
// request log emits. next runs first so redaction sees the original keys.
func prettyAttr(next func([]string, slog.Attr) slog.Attr) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if next != nil {
			a = next(groups, a)
		}
		if len(groups) == 0 {
			switch a.Key {
			case slog.TimeKey, slog.LevelKey, slog.MessageKey:
				return slog.Attr{}
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String("src", filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
				}
			case "method":
				return slog.String("method", strings.ToUpper(a.Value.String()))
			case "duration_ms":
				if a.Value.Kind() == slog.KindInt64 {
					return slog.Duration("duration", time.Duration(a.Value.Int64())*time.Millisecond)
				}
			}
		}
		return a
	}
}
