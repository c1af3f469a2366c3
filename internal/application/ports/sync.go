package ports

import (
	"context"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// ItemStore is the durable local queue an engine drains.
// Implementations must survive process restarts.
type ItemStore[T outbox.Syncable] interface {
	// ListPending returns every queued item in listing order.
	ListPending(ctx context.Context) ([]T, error)

	// UpdateItem persists retry metadata for the item with the given id.
	UpdateItem(ctx context.Context, id string, patch outbox.ItemPatch) error

	// RemoveItem deletes an item once its delivery has been confirmed.
	RemoveItem(ctx context.Context, id string) error
}

// Deliverer sends one queued item to the remote service.
// The context is cancelled when the cycle is aborted; implementations should honour it.
type Deliverer[T outbox.Syncable] interface {
	Deliver(ctx context.Context, item T) (outbox.Result, error)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc[T outbox.Syncable] func(ctx context.Context, item T) (outbox.Result, error)

// Deliver calls f(ctx, item).
func (f DelivererFunc[T]) Deliver(ctx context.Context, item T) (outbox.Result, error) {
	return f(ctx, item)
}

// NetworkOracle reports connectivity and notifies listeners of transitions.
type NetworkOracle interface {
	// Status returns the current connectivity level.
	Status() outbox.ConnectionStatus

	// Subscribe registers fn for status transitions and returns a function that removes it.
	Subscribe(fn func(outbox.ConnectionStatus)) (unsubscribe func())
}

// Syncer is what the coordinator drives: one engine per queue.
type Syncer interface {
	Name() string
	Sync(ctx context.Context) (outbox.Progress, error)
}

// UploadQueue is the full upload store used by the CLI and spool watcher.
// It extends the engine-facing ItemStore with enqueue and operator actions.
type UploadQueue interface {
	ItemStore[*outbox.Upload]

	Kind() string
	Enqueue(ctx context.Context, u *outbox.Upload) error
	Get(ctx context.Context, id string) (*outbox.Upload, error)
	ListExhausted(ctx context.Context, maxRetries int) ([]*outbox.Upload, error)
	ResetRetries(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
