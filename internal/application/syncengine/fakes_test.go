package syncengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

// fakeStore is an ordered in-memory item store.
type fakeStore struct {
	mu      sync.Mutex
	items   []outbox.Item
	listErr   error
	updateErr error
	updates   int
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{}
	for _, id := range ids {
		s.items = append(s.items, outbox.Item{ID: id})
	}
	return s
}

func (s *fakeStore) ListPending(ctx context.Context) ([]outbox.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]outbox.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *fakeStore) UpdateItem(ctx context.Context, id string, patch outbox.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].RetryCount = patch.RetryCount
			s.items[i].LastError = patch.LastError
			s.updates++
			return nil
		}
	}
	return domainerrors.ErrItemNotFound
}

func (s *fakeStore) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return domainerrors.ErrItemNotFound
}

func (s *fakeStore) get(id string) (outbox.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return outbox.Item{}, false
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// fakeOracle is a settable oracle that notifies subscribers on change.
type fakeOracle struct {
	mu     sync.Mutex
	status outbox.ConnectionStatus
	nextID int
	subs   map[int]func(outbox.ConnectionStatus)
}

func newFakeOracle(status outbox.ConnectionStatus) *fakeOracle {
	return &fakeOracle{status: status, subs: make(map[int]func(outbox.ConnectionStatus))}
}

func (o *fakeOracle) Status() outbox.ConnectionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *fakeOracle) Subscribe(fn func(outbox.ConnectionStatus)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *fakeOracle) set(status outbox.ConnectionStatus) {
	o.mu.Lock()
	o.status = status
	subs := make([]func(outbox.ConnectionStatus), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (o *fakeOracle) subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// recorder collects events in order.
type recorder struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (r *recorder) listen(ev outbox.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []outbox.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) last() outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return outbox.Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) count(typ outbox.EventType) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

// fakeSyncer is a coordinator-facing engine stand-in.
type fakeSyncer struct {
	name     string
	calls    atomic.Int32
	err      error
	panicVal any
	block    chan struct{}
}

func (f *fakeSyncer) Name() string { return f.name }

func (f *fakeSyncer) Sync(ctx context.Context) (outbox.Progress, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panicVal != nil {
		panic(f.panicVal)
	}
	if f.err != nil {
		return outbox.Progress{}, f.err
	}
	return outbox.Progress{Total: 1, Completed: 1}, nil
}

func succeed() func(context.Context, outbox.Item) (outbox.Result, error) {
	return func(_ context.Context, item outbox.Item) (outbox.Result, error) {
		return outbox.Succeeded(item.ID), nil
	}
}

func testOptions(name string) Options {
	return Options{
		Name:       name,
		RetryDelay: time.Millisecond,
		Logger:     logging.Nop(),
		Tracer:     tracing.Noop(),
	}
}

func newTestEngine(
	t *testing.T,
	store *fakeStore,
	oracle *fakeOracle,
	deliver func(context.Context, outbox.Item) (outbox.Result, error),
	opts Options,
) *Engine[outbox.Item] {
	t.Helper()
	engine, err := NewEngine[outbox.Item](store, ports.DelivererFunc[outbox.Item](deliver), oracle, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
