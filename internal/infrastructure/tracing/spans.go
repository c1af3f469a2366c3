package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrQueue      = attribute.Key("sync.queue")
	AttrCycleID    = attribute.Key("sync.cycle_id")
	AttrTotal      = attribute.Key("sync.total")
	AttrCompleted  = attribute.Key("sync.completed")
	AttrFailed     = attribute.Key("sync.failed")
	AttrItemID     = attribute.Key("sync.item_id")
	AttrRetryCount = attribute.Key("sync.retry_count")
	AttrExhausted  = attribute.Key("sync.exhausted")
	AttrStatusCode = attribute.Key("http.response.status_code")
	AttrBodySize   = attribute.Key("http.request.body.size")
)

// CycleSpan covers one sync cycle of one queue.
type CycleSpan struct {
	span trace.Span
}

// StartCycleSpan opens the span for a cycle. Item spans started from the
// returned context become its children.
func (t *Tracer) StartCycleSpan(ctx context.Context, queue, cycleID string) (context.Context, *CycleSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrQueue.String(queue), AttrCycleID.String(cycleID)),
	)
	return ctx, &CycleSpan{span: span}
}

// SetTotal records the snapshot size.
func (cs *CycleSpan) SetTotal(total int) {
	cs.span.SetAttributes(AttrTotal.Int(total))
}

// SetOutcome records the final counters.
func (cs *CycleSpan) SetOutcome(completed, failed int) {
	cs.span.SetAttributes(AttrCompleted.Int(completed), AttrFailed.Int(failed))
}

// End closes a cycle that ran to completion.
func (cs *CycleSpan) End() {
	cs.span.SetStatus(codes.Ok, "")
	cs.span.End()
}

// EndWithError closes a cycle that stopped early.
func (cs *CycleSpan) EndWithError(err error) {
	cs.span.RecordError(err)
	cs.span.SetStatus(codes.Error, err.Error())
	cs.span.End()
}

// ItemSpan covers one delivery attempt.
type ItemSpan struct {
	span trace.Span
}

// StartItemSpan opens the span for one delivery attempt.
func (t *Tracer) StartItemSpan(ctx context.Context, itemID string, retryCount int) (context.Context, *ItemSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.item",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrItemID.String(itemID), AttrRetryCount.Int(retryCount)),
	)
	return ctx, &ItemSpan{span: span}
}

// End closes a delivered item.
func (is *ItemSpan) End() {
	is.span.SetStatus(codes.Ok, "")
	is.span.End()
}

// EndWithFailure closes a failed attempt. exhausted marks the last attempt
// the item will get.
func (is *ItemSpan) EndWithFailure(reason string, exhausted bool) {
	is.span.SetAttributes(AttrExhausted.Bool(exhausted))
	is.span.SetStatus(codes.Error, reason)
	is.span.End()
}

// RecordResponse annotates the active span with the outcome of an HTTP request.
func RecordResponse(ctx context.Context, statusCode int, bodySize int64) {
	trace.SpanFromContext(ctx).SetAttributes(
		AttrStatusCode.Int(statusCode),
		AttrBodySize.Int64(bodySize),
	)
}
