package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultRingSize = 1000

// Entry is a captured log record as served by the dashboard.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Ring keeps the most recent log entries in memory.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

// Add stores e, overwriting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns up to n entries, oldest first.
func (r *Ring) Snapshot(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.entries)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Entry, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// captureHandler copies every handled record into a Ring before passing
// it to the base handler.
type captureHandler struct {
	base  slog.Handler
	ring  *Ring
	attrs []slog.Attr
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.ring != nil {
		fields := make(map[string]any, len(h.attrs)+record.NumAttrs())
		for _, a := range h.attrs {
			fields[a.Key] = a.Value.Any()
		}
		record.Attrs(func(a slog.Attr) bool {
			fields[a.Key] = a.Value.Any()
			return true
		})

		component, _ := fields[KeyComponent].(string)
		delete(fields, KeyComponent)
		if component == "" {
			component = "unknown"
		}
		if len(fields) == 0 {
			fields = nil
		}

		h.ring.Add(Entry{
			Timestamp: record.Time,
			Level:     record.Level.String(),
			Component: component,
			Message:   record.Message,
			Fields:    fields,
		})
	}
	return h.base.Handle(ctx, record)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{base: h.base.WithAttrs(attrs), ring: h.ring, attrs: merged}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{base: h.base.WithGroup(name), ring: h.ring, attrs: h.attrs}
}
