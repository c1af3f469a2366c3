package logging

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// Fields are the sync attributes carried in a context.
type Fields struct {
	Queue   string
	CycleID string
	ItemID  string
}

// FieldsFrom returns the sync attributes stored in ctx.
func FieldsFrom(ctx context.Context) Fields {
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

func withFields(ctx context.Context, fn func(*Fields)) context.Context {
	f := FieldsFrom(ctx)
	fn(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithQueue records the queue name in ctx.
func WithQueue(ctx context.Context, queue string) context.Context {
	return withFields(ctx, func(f *Fields) { f.Queue = queue })
}

// WithCycleID records the sync cycle id in ctx.
func WithCycleID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *Fields) { f.CycleID = id })
}

// WithItemID records the queued item id in ctx.
func WithItemID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *Fields) { f.ItemID = id })
}

// contextHandler adds the context's Fields to each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := FieldsFrom(ctx)
	if f.Queue != "" {
		r.AddAttrs(slog.String("queue", f.Queue))
	}
	if f.CycleID != "" {
		r.AddAttrs(slog.String("cycle_id", f.CycleID))
	}
	if f.ItemID != "" {
		r.AddAttrs(slog.String("item_id", f.ItemID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
