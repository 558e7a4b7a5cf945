package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
)

const (
	// DefaultFlushSize is the buffered text length that triggers an early flush.
	// Webhook messages are capped at 12,000 characters.
	DefaultFlushSize = 6000
	// DefaultMaxLines is the buffered line count that triggers an early flush
	DefaultMaxLines = 999
)

// SendFunc delivers one text message
type SendFunc func(ctx context.Context, text string) error

// Buffer collects log lines and sends them as one message on Flush, or
// earlier once the buffered text reaches the flush size.
type Buffer struct {
	send      SendFunc
	flushSize int
	maxLines  int

	mu    sync.Mutex
	lines []string
	size  int
}

var _ interfaces.Notifier = (*Buffer)(nil)

// BufferOption configures Buffer
type BufferOption func(*Buffer)

// WithFlushSize overrides DefaultFlushSize
func WithFlushSize(n int) BufferOption {
	return func(b *Buffer) {
		b.flushSize = n
	}
}

// WithMaxLines overrides DefaultMaxLines
func WithMaxLines(n int) BufferOption {
	return func(b *Buffer) {
		b.maxLines = n
	}
}

// NewBuffer creates a Buffer delivering through send
func NewBuffer(send SendFunc, opts ...BufferOption) *Buffer {
	b := &Buffer{
		send:      send,
		flushSize: DefaultFlushSize,
		maxLines:  DefaultMaxLines,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends a line and flushes when a threshold is reached
func (b *Buffer) Add(ctx context.Context, line string) error {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
	full := b.size >= b.flushSize || len(b.lines) >= b.maxLines
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush sends all buffered lines as one message and clears the buffer
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.lines) == 0 {
		b.mu.Unlock()
		return nil
	}
	text := strings.Join(b.lines, "\n")
	b.lines = nil
	b.size = 0
	b.mu.Unlock()

	if err := b.send(ctx, text); err != nil {
		return goerr.Wrap(err, "failed to send buffered log", goerr.V("length", len(text)))
	}
	return nil
}

// Handler returns a slog.Handler writing records at or above level into b
func (b *Buffer) Handler(level slog.Leveler) slog.Handler {
	return &handler{buffer: b, level: level}
}

type handler struct {
	buffer *Buffer
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format(time.TimeOnly))
	sb.WriteString(" [")
	sb.WriteString(r.Level.String())
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.group, a)
		return true
	})

	if err := h.buffer.Add(ctx, sb.String()); err != nil {
		fmt.Fprintln(os.Stderr, "alert:", err.Error())
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		prefixed = append(prefixed, a)
	}
	return &handler{buffer: h.buffer, level: h.level, attrs: prefixed, group: h.group}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &handler{buffer: h.buffer, level: h.level, attrs: h.attrs, group: group}
}

func writeAttr(sb *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if group != "" {
		key = group + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, key, ga)
		}
		return
	}

	sb.WriteString(" ")
	sb.WriteString(key)
	sb.WriteString("=")
	sb.WriteString(a.Value.String())
}
