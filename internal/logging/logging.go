package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyService    = "service"
	KeyOperation  = "operation"
	KeyOpID       = "opId"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

type contextKey struct{}

// swapHandler forwards to whatever handler the latest Init installed, so
// the package-level loggers every package builds at init time follow the
// configuration loaded later.
type swapHandler struct {
	cur    *atomic.Pointer[slog.Handler]
	attrs  []slog.Attr
	groups []string
}

func (h *swapHandler) target() slog.Handler {
	t := *h.cur.Load()
	for _, g := range h.groups {
		t = t.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		t = t.WithAttrs(h.attrs)
	}
	return t
}

func (h *swapHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.target().Enabled(ctx, l)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &swapHandler{cur: h.cur, attrs: slices.Concat(h.attrs, attrs), groups: slices.Clip(h.groups)}
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return &swapHandler{cur: h.cur, attrs: slices.Clip(h.attrs), groups: append(slices.Clip(h.groups), name)}
}

var (
	capture = NewRing(defaultRingSize)
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Handler]
	root    = &swapHandler{cur: &current}
)

func init() {
	install(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(slog.New(root))
}

// install wraps base so every record also lands in the dashboard ring.
func install(base slog.Handler) {
	var h slog.Handler = &captureHandler{base: base, ring: capture}
	current.Store(&h)
}

// Init points every logger at output. format is "json" or "text"; level
// is debug, info, warn or error (info when unrecognised). A nil output
// means stderr. Init may be called again when the config is reloaded.
func Init(format, lvl string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	level.Set(parseLevel(lvl))

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		install(slog.NewJSONHandler(output, opts))
	} else {
		install(slog.NewTextHandler(output, opts))
	}
}

// SetLevel changes the minimum level of every logger without replacing
// the output.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return slog.New(root).With(slog.String(KeyComponent, component))
}

// WithOperation returns a child logger tagged with a service operation.
func WithOperation(logger *slog.Logger, service, operation string) *slog.Logger {
	return logger.With(
		slog.String(KeyService, service),
		slog.String(KeyOperation, operation),
	)
}

// Recent returns up to n of the most recently captured records, oldest
// first. n <= 0 returns everything held.
func Recent(n int) []Entry {
	return capture.Snapshot(n)
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(root)
}

func parseLevel(s string) slog.Level {
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
