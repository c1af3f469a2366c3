package syncengine

import (
	"context"
	"sync"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
)

type listenerEntry struct {
	id uint64
	fn outbox.Listener
}

// broadcaster fans events out to subscribers. Dispatch is serialized so
// listeners observe events in emission order.
type broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listenerEntry

	dispatchMu sync.Mutex
	logger     *logging.Logger
}

func newBroadcaster(logger *logging.Logger) *broadcaster {
	return &broadcaster{logger: logger}
}

// subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *broadcaster) subscribe(fn outbox.Listener) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range b.listeners {
				if l.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// count returns the number of active subscribers.
func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// emit delivers ev to every subscriber registered at call time.
// A panicking listener is logged and skipped.
func (b *broadcaster) emit(ctx context.Context, ev outbox.Event) {
	b.mu.Lock()
	snapshot := make([]listenerEntry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	for _, l := range snapshot {
		b.call(ctx, l.fn, ev)
	}
}

func (b *broadcaster) call(ctx context.Context, fn outbox.Listener, ev outbox.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogListenerPanic(ctx, b.logger, r)
		}
	}()
	fn(ev)
}
