package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

// Engine drains one item store with bounded concurrency, per-item retry with
// exponential backoff, cooperative abort, and progress events.
type Engine[T outbox.Syncable] struct {
	opts      Options
	store     ports.ItemStore[T]
	deliverer ports.Deliverer[T]
	oracle    ports.NetworkOracle
	logger    *logging.Logger
	tracer    *tracing.Tracer
	clk       clock.Clock
	events    *broadcaster

	// reportMu orders progress updates with their events so listeners never
	// see counts go backwards.
	reportMu sync.Mutex

	mu       sync.Mutex
	progress outbox.Progress
	cycleID  string
	cancel   context.CancelCauseFunc
}

// NewEngine creates an engine for one queue.
func NewEngine[T outbox.Syncable](
	store ports.ItemStore[T],
	deliverer ports.Deliverer[T],
	oracle ports.NetworkOracle,
	opts Options,
) (*Engine[T], error) {
	if store == nil {
		return nil, domainerrors.NewError(domainerrors.CodeValidation, "item store is required", nil)
	}
	if deliverer == nil {
		return nil, domainerrors.NewError(domainerrors.CodeValidation, "deliverer is required", nil)
	}
	if oracle == nil {
		return nil, domainerrors.NewError(domainerrors.CodeValidation, "network oracle is required", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	return &Engine[T]{
		opts:      opts,
		store:     store,
		deliverer: deliverer,
		oracle:    oracle,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		clk:       opts.Clock,
		events:    newBroadcaster(opts.Logger),
	}, nil
}

// Name returns the queue name.
func (e *Engine[T]) Name() string {
	return e.opts.Name
}

// Options returns the effective options, defaults applied.
func (e *Engine[T]) Options() Options {
	return e.opts
}

// Progress returns a copy of the current or most recent cycle's progress.
func (e *Engine[T]) Progress() outbox.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// InProgress reports whether a cycle is running.
func (e *Engine[T]) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.InProgress
}

// Subscribe registers a listener for sync events and returns a function that
// removes it. Listeners run synchronously on the engine's goroutines, one
// event at a time, and must not call Sync.
func (e *Engine[T]) Subscribe(listener outbox.Listener) (unsubscribe func()) {
	return e.events.subscribe(listener)
}

// Abort cancels the running cycle, if any. No new item starts once the
// cancellation is observed and in-flight deliveries see a cancelled context.
func (e *Engine[T]) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel(domainerrors.ErrSyncAborted)
	}
}

// Sync runs one cycle over the items pending at call time.
//
// A call made while a cycle is running returns that cycle's progress without
// starting another. A call made while connectivity is below the configured
// minimum does nothing and returns empty progress. The returned error is nil
// unless the cycle stopped early: ErrSnapshotFailed, ErrSyncAborted or
// ErrConnectivityLost. Individual delivery failures never surface here.
func (e *Engine[T]) Sync(ctx context.Context) (outbox.Progress, error) {
	if err := ctx.Err(); err != nil {
		return outbox.Progress{}, fmt.Errorf("%w: %w", domainerrors.ErrSyncAborted, err)
	}

	e.mu.Lock()
	if e.progress.InProgress {
		p := e.progress
		e.mu.Unlock()
		return p, nil
	}
	if !e.connected() {
		e.mu.Unlock()
		return outbox.Progress{}, nil
	}

	cycleCtx, cancel := context.WithCancelCause(ctx)
	cycleID := uuid.NewString()
	e.progress = outbox.Progress{InProgress: true}
	e.cycleID = cycleID
	e.cancel = cancel
	e.mu.Unlock()

	defer cancel(nil)
	return e.run(cycleCtx, cycleID)
}

// connected reports whether the oracle meets the minimum quality.
func (e *Engine[T]) connected() bool {
	return e.oracle.Status().Meets(e.opts.MinConnectionQuality)
}

func (e *Engine[T]) run(ctx context.Context, cycleID string) (outbox.Progress, error) {
	started := e.clk.Now()
	ctx = logging.WithCycleID(logging.WithQueue(ctx, e.opts.Name), cycleID)
	ctx, span := e.tracer.StartCycleSpan(ctx, e.opts.Name, cycleID)

	items, err := e.store.ListPending(ctx)
	if err != nil {
		return e.finish(ctx, span, started, fmt.Errorf("%w: %w", domainerrors.ErrSnapshotFailed, err))
	}

	pending := make([]T, 0, len(items))
	for _, item := range items {
		if item.Retries() >= e.opts.MaxRetries {
			continue
		}
		pending = append(pending, item)
	}

	snap := e.update(func(p *outbox.Progress) { p.Total = len(pending) })
	span.SetTotal(snap.Total)
	logging.LogCycleStart(ctx, e.logger, snap.Total)
	e.emit(ctx, outbox.EventStart, snap, nil)

	sem := semaphore.NewWeighted(int64(e.opts.Concurrency))
	var wg sync.WaitGroup
	var stopErr error

	for _, item := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			stopErr = abortCause(ctx)
			break
		}
		// Acquire may succeed on a context that is already done.
		if ctx.Err() != nil {
			sem.Release(1)
			stopErr = abortCause(ctx)
			break
		}
		if !e.connected() {
			sem.Release(1)
			stopErr = domainerrors.ErrConnectivityLost
			break
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer sem.Release(1)
			e.process(ctx, item)
		}(item)
	}
	wg.Wait()

	if stopErr == nil && ctx.Err() != nil {
		stopErr = abortCause(ctx)
	}
	return e.finish(ctx, span, started, stopErr)
}

// finish records the final progress and emits the terminal event.
func (e *Engine[T]) finish(ctx context.Context, span *tracing.CycleSpan, started time.Time, cycleErr error) (outbox.Progress, error) {
	e.mu.Lock()
	e.progress.InProgress = false
	e.cancel = nil
	final := e.progress
	e.mu.Unlock()

	elapsed := e.clk.Now().Sub(started)
	span.SetOutcome(final.Completed, final.Failed)

	if cycleErr != nil {
		span.EndWithError(cycleErr)
		logging.LogCycleFailed(ctx, e.logger, cycleErr, elapsed)
		e.emit(ctx, outbox.EventError, final, cycleErr)
		return final, cycleErr
	}

	span.End()
	logging.LogCycleComplete(ctx, e.logger, final.Completed, final.Failed, final.Total, elapsed)
	e.emit(ctx, outbox.EventComplete, final, nil)
	return final, nil
}

// process makes one delivery attempt and settles the outcome in the store.
func (e *Engine[T]) process(ctx context.Context, item T) {
	id := item.SyncID()
	ctx = logging.WithItemID(ctx, id)
	ctx, span := e.tracer.StartItemSpan(ctx, id, item.Retries())

	// Store writes outlive an abort so the outcome of an attempt is never lost.
	storeCtx := context.WithoutCancel(ctx)

	began := e.clk.Now()
	result, err := e.deliver(ctx, item)

	if err != nil && ctx.Err() != nil && isContextError(err) {
		// Interrupted by abort: the attempt never reached an outcome.
		span.EndWithFailure("aborted", false)
		e.logger.DebugContext(ctx, "delivery interrupted by abort")
		return
	}

	if err == nil && result.Success {
		if rmErr := e.store.RemoveItem(storeCtx, id); rmErr != nil {
			// Delivered but still queued; the next cycle re-sends it under the same id.
			span.EndWithFailure(rmErr.Error(), false)
			e.logger.ErrorContext(ctx, "failed to remove delivered item", "error", rmErr)
			e.advance(ctx, nil)
			return
		}
		span.End()
		logging.LogItemDelivered(ctx, e.logger, e.clk.Now().Sub(began))
		e.advance(ctx, func(p *outbox.Progress) { p.Completed++ })
		return
	}

	reason := failureReason(result, err)
	retries := item.Retries() + 1
	patch := outbox.ItemPatch{RetryCount: retries, LastError: reason}
	if upErr := e.store.UpdateItem(storeCtx, id, patch); upErr != nil {
		// The stored count is unchanged, so the attempt is neither counted nor
		// backed off; the next cycle retries it from the same count.
		span.EndWithFailure(upErr.Error(), false)
		e.logger.ErrorContext(ctx, "failed to persist retry state", "error", upErr, "retry_count", retries)
		e.advance(ctx, nil)
		return
	}

	if retries >= e.opts.MaxRetries {
		span.EndWithFailure(reason, true)
		logging.LogItemExhausted(ctx, e.logger, retries, reason)
		e.advance(ctx, func(p *outbox.Progress) { p.Failed++ })
		return
	}

	delay := outbox.BackoffDelay(e.opts.RetryDelay, retries)
	span.EndWithFailure(reason, false)
	logging.LogItemFailed(ctx, e.logger, retries, reason, delay)
	e.advance(ctx, nil)

	// The slot stays occupied for the backoff period.
	select {
	case <-ctx.Done():
	case <-e.clk.After(delay):
	}
}

// deliver calls the deliverer, converting a panic into an error.
func (e *Engine[T]) deliver(ctx context.Context, item T) (result outbox.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliverer panicked: %v", r)
		}
	}()
	return e.deliverer.Deliver(ctx, item)
}

// update mutates progress under the lock and returns a copy.
func (e *Engine[T]) update(fn func(p *outbox.Progress)) outbox.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.progress)
	return e.progress
}

// advance applies fn, which may be nil, and emits the resulting progress as
// one step with respect to other items.
func (e *Engine[T]) advance(ctx context.Context, fn func(p *outbox.Progress)) {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()
	if fn == nil {
		fn = func(*outbox.Progress) {}
	}
	e.emit(ctx, outbox.EventProgress, e.update(fn), nil)
}

func (e *Engine[T]) emit(ctx context.Context, typ outbox.EventType, p outbox.Progress, err error) {
	e.mu.Lock()
	cycleID := e.cycleID
	e.mu.Unlock()

	e.events.emit(ctx, outbox.Event{
		Type:      typ,
		Queue:     e.opts.Name,
		CycleID:   cycleID,
		Progress:  p,
		Err:       err,
		Timestamp: e.clk.Now(),
	})
}

// abortCause maps a done cycle context to the error Sync returns.
func abortCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, domainerrors.ErrSyncAborted) {
		return domainerrors.ErrSyncAborted
	}
	return fmt.Errorf("%w: %w", domainerrors.ErrSyncAborted, cause)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domainerrors.ErrSyncAborted)
}

func failureReason(result outbox.Result, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case result.Error != "":
		return result.Error
	default:
		return "delivery failed"
	}
}
