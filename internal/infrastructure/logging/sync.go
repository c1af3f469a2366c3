package logging

import (
	"context"
	"time"
)

// LogCycleStart logs the start of a sync cycle.
func LogCycleStart(ctx context.Context, logger *Logger, total int) {
	logger.InfoContext(ctx, "sync cycle started", "total", total)
}

// LogCycleComplete logs a sync cycle that drained its snapshot.
func LogCycleComplete(ctx context.Context, logger *Logger, completed, failed, total int, duration time.Duration) {
	logger.InfoContext(ctx, "sync cycle completed",
		"completed", completed,
		"failed", failed,
		"total", total,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogCycleFailed logs a sync cycle that stopped early.
func LogCycleFailed(ctx context.Context, logger *Logger, err error, duration time.Duration) {
	logger.WarnContext(ctx, "sync cycle stopped",
		"error", err.Error(),
		"duration_ms", duration.Milliseconds(),
	)
}

// LogItemDelivered logs a confirmed delivery.
func LogItemDelivered(ctx context.Context, logger *Logger, latency time.Duration) {
	logger.DebugContext(ctx, "item delivered", "latency_ms", latency.Milliseconds())
}

// LogItemFailed logs a failed attempt that will be retried.
func LogItemFailed(ctx context.Context, logger *Logger, retryCount int, reason string, backoff time.Duration) {
	logger.WarnContext(ctx, "item delivery failed",
		"retry_count", retryCount,
		"error", reason,
		"backoff_ms", backoff.Milliseconds(),
	)
}

// LogItemExhausted logs an item that has used up its automatic retries.
func LogItemExhausted(ctx context.Context, logger *Logger, retryCount int, reason string) {
	logger.ErrorContext(ctx, "item retries exhausted",
		"retry_count", retryCount,
		"error", reason,
	)
}

// LogListenerPanic logs a recovered panic from an event subscriber.
func LogListenerPanic(ctx context.Context, logger *Logger, recovered any) {
	logger.ErrorContext(ctx, "sync event listener panicked", "panic", recovered)
}
