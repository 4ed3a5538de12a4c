package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TextHandler writes one line per record:
//
//	2026-01-19T10:30:00Z INFO  [datewatch-sweeper] sweep finished fields=3 fired=12
//
// The "component" attribute, when present, is lifted into the brackets.
type TextHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	colors map[slog.Level]*color.Color

	component string
	prefix    string // group prefix for attribute keys
	attrs     []byte // preformatted handler attributes
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

// NewTextHandler creates a text handler. With colored set, level names are
// wrapped in ANSI colours regardless of whether w is a terminal.
func NewTextHandler(w io.Writer, level slog.Leveler, colored bool) *TextHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	h := &TextHandler{out: &lockedWriter{w: w}, level: level}
	if colored {
		h.colors = levelColors()
	}
	return h
}

func levelColors() map[slog.Level]*color.Color {
	m := map[slog.Level]*color.Color{
		slog.LevelDebug: color.New(color.FgHiBlack),
		slog.LevelInfo:  color.New(color.FgHiGreen),
		slog.LevelWarn:  color.New(color.FgYellow),
		slog.LevelError: color.New(color.FgRed, color.Bold),
	}
	for _, c := range m {
		c.EnableColor()
	}
	return m
}

func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	if !r.Time.IsZero() {
		buf = r.Time.UTC().AppendFormat(buf, time.RFC3339)
		buf = append(buf, ' ')
	}
	buf = append(buf, h.levelName(r.Level)...)
	buf = append(buf, ' ')

	component := h.component
	var rest []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	})
	if component != "" {
		buf = append(buf, '[')
		buf = append(buf, component...)
		buf = append(buf, "] "...)
	}
	buf = append(buf, r.Message...)
	buf = append(buf, h.attrs...)
	for _, a := range rest {
		buf = appendAttr(buf, h.prefix, a)
	}
	buf = append(buf, '\n')
	return h.out.write(buf)
}

func (h *TextHandler) levelName(l slog.Level) string {
	name := fmt.Sprintf("%-5s", l.String())
	if c, ok := h.colors[l]; ok {
		return c.Sprint(name)
	}
	return name
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			c.component = a.Value.String()
			continue
		}
		c.attrs = appendAttr(c.attrs, h.prefix, a)
	}
	return &c
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, sub, ga)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=\\") {
			return strconv.AppendQuote(buf, s)
		}
		return append(buf, s...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(buf, time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			return strconv.AppendQuote(buf, err.Error())
		}
		return appendValue(buf, slog.StringValue(fmt.Sprintf("%+v", v.Any())))
	}
}
