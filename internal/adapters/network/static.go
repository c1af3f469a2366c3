package network

import (
	"slices"
	"sync"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// StaticOracle reports whatever status it was last given.
type StaticOracle struct {
	mu     sync.RWMutex
	status outbox.ConnectionStatus
	subs   *subscribers
}

// NewStaticOracle creates an oracle fixed at status.
func NewStaticOracle(status outbox.ConnectionStatus) *StaticOracle {
	return &StaticOracle{status: status, subs: newSubscribers()}
}

// Status returns the current status.
func (o *StaticOracle) Status() outbox.ConnectionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Set changes the status and notifies subscribers when it differs from the current one.
func (o *StaticOracle) Set(status outbox.ConnectionStatus) {
	o.mu.Lock()
	changed := o.status != status
	o.status = status
	o.mu.Unlock()

	if changed {
		o.subs.notify(status)
	}
}

// Subscribe registers fn for status transitions.
func (o *StaticOracle) Subscribe(fn func(outbox.ConnectionStatus)) func() {
	return o.subs.add(fn)
}

// subscribers is a set of transition callbacks shared by the oracles.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(outbox.ConnectionStatus)
}

func newSubscribers() *subscribers {
	return &subscribers{fns: make(map[int]func(outbox.ConnectionStatus))}
}

func (s *subscribers) add(fn func(outbox.ConnectionStatus)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// notify calls every subscriber in registration order, outside the lock.
func (s *subscribers) notify(status outbox.ConnectionStatus) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	fns := make(map[int]func(outbox.ConnectionStatus), len(s.fns))
	for id, fn := range s.fns {
		fns[id] = fn
	}
	s.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		fns[id](status)
	}
}
