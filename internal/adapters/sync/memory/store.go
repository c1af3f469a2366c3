// Package memory provides an in-memory outbox store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// Store is an ordered in-memory upload queue. It satisfies the same contract
// as the SQLite store but loses its contents when the process exits.
type Store struct {
	mu      sync.RWMutex
	kind    string
	order   []string
	uploads map[string]*outbox.Upload
}

// NewStore creates an empty store for the given queue.
func NewStore(kind string) *Store {
	return &Store{
		kind:    kind,
		order:   make([]string, 0),
		uploads: make(map[string]*outbox.Upload),
	}
}

// Kind returns the queue this store holds.
func (s *Store) Kind() string {
	return s.kind
}

// Enqueue adds an upload. Duplicate ids are rejected.
func (s *Store) Enqueue(ctx context.Context, u *outbox.Upload) error {
	if u == nil {
		return fmt.Errorf("upload is nil")
	}
	if u.ID == "" {
		return domainerrors.NewError(domainerrors.CodeValidation, "upload id is required", nil)
	}
	if u.Kind == "" {
		u.Kind = s.kind
	}
	if u.Kind != s.kind {
		return domainerrors.Errorf(domainerrors.CodeValidation, nil,
			"upload kind %q does not match queue %q", u.Kind, s.kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.uploads[u.ID]; exists {
		return domainerrors.NewError(domainerrors.CodeStorage, "upload already queued: "+u.ID, nil)
	}
	s.uploads[u.ID] = u.Clone()
	s.order = append(s.order, u.ID)
	return nil
}

// Get returns a copy of one upload.
func (s *Store) Get(ctx context.Context, id string) (*outbox.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrItemNotFound, id)
	}
	return u.Clone(), nil
}

// ListPending returns copies of every queued upload in insertion order.
func (s *Store) ListPending(ctx context.Context) ([]*outbox.Upload, error) {
	return s.list(func(*outbox.Upload) bool { return true }), nil
}

// ListExhausted returns uploads whose retry count has reached maxRetries.
func (s *Store) ListExhausted(ctx context.Context, maxRetries int) ([]*outbox.Upload, error) {
	return s.list(func(u *outbox.Upload) bool { return u.Exhausted(maxRetries) }), nil
}

// UpdateItem records retry metadata for an upload.
func (s *Store) UpdateItem(ctx context.Context, id string, patch outbox.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	if !ok {
		return fmt.Errorf("%w: %s", domainerrors.ErrItemNotFound, id)
	}
	u.RetryCount = patch.RetryCount
	u.LastError = patch.LastError
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetRetries clears retry metadata.
func (s *Store) ResetRetries(ctx context.Context, id string) error {
	return s.UpdateItem(ctx, id, outbox.ItemPatch{})
}

// RemoveItem deletes an upload. Removing an absent upload is not an error.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[id]; !ok {
		return nil
	}
	delete(s.uploads, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of queued uploads.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *Store) list(keep func(*outbox.Upload) bool) []*outbox.Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*outbox.Upload, 0, len(s.order))
	for _, id := range s.order {
		if u := s.uploads[id]; keep(u) {
			out = append(out, u.Clone())
		}
	}
	return out
}
