package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	"github.com/jbctechsolutions/scribesync/internal/application/syncengine"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

var _ ports.UploadQueue = (*Store)(nil)

type onlineOracle struct{}

func (onlineOracle) Status() outbox.ConnectionStatus { return outbox.StatusOnline }

func (onlineOracle) Subscribe(func(outbox.ConnectionStatus)) func() { return func() {} }

func TestStore_QueueOperations(t *testing.T) {
	ctx := context.Background()
	s := NewStore("recordings")

	for _, id := range []string{"b", "a", "c"} {
		if err := s.Enqueue(ctx, outbox.NewUpload(id, "recordings", "/r/"+id, "audio/webm", 1)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	if err := s.Enqueue(ctx, outbox.NewUpload("a", "recordings", "/r/a", "audio/webm", 1)); err == nil {
		t.Error("duplicate Enqueue should fail")
	}
	if err := s.Enqueue(ctx, outbox.NewUpload("d", "documents", "/d", "application/pdf", 1)); err == nil {
		t.Error("Enqueue of another kind should fail")
	}

	pending, _ := s.ListPending(ctx)
	if len(pending) != 3 || pending[0].ID != "b" || pending[1].ID != "a" || pending[2].ID != "c" {
		t.Errorf("ListPending() order wrong: %v", pending)
	}

	// Returned items are copies.
	pending[0].RetryCount = 99
	if got, _ := s.Get(ctx, "b"); got.RetryCount != 0 {
		t.Error("ListPending returned a live reference")
	}

	if err := s.UpdateItem(ctx, "a", outbox.ItemPatch{RetryCount: 3, LastError: "x"}); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	exhausted, _ := s.ListExhausted(ctx, 3)
	if len(exhausted) != 1 || exhausted[0].ID != "a" {
		t.Errorf("ListExhausted() = %v, want [a]", exhausted)
	}
	if err := s.ResetRetries(ctx, "a"); err != nil {
		t.Fatalf("ResetRetries() error = %v", err)
	}
	if got, _ := s.Get(ctx, "a"); got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("after reset: %+v", got.Item)
	}

	if err := s.RemoveItem(ctx, "a"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if err := s.RemoveItem(ctx, "a"); err != nil {
		t.Errorf("second RemoveItem() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, domainerrors.ErrItemNotFound) {
		t.Errorf("Get(removed) error = %v, want ErrItemNotFound", err)
	}
	if err := s.UpdateItem(ctx, "a", outbox.ItemPatch{}); !errors.Is(err, domainerrors.ErrItemNotFound) {
		t.Errorf("UpdateItem(removed) error = %v, want ErrItemNotFound", err)
	}
}

func TestStore_DrainedByEngine(t *testing.T) {
	ctx := context.Background()
	s := NewStore("documents")
	for _, id := range []string{"ok-1", "bad", "ok-2"} {
		if err := s.Enqueue(ctx, outbox.NewUpload(id, "documents", "/d/"+id, "application/pdf", 10)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	deliver := ports.DelivererFunc[*outbox.Upload](func(_ context.Context, u *outbox.Upload) (outbox.Result, error) {
		if u.ID == "bad" {
			return outbox.Failed(u.ID, "HTTP 422: unreadable scan"), nil
		}
		return outbox.Succeeded(u.ID), nil
	})

	opts := syncengine.DefaultOptions("documents")
	opts.RetryDelay = 1
	opts.Logger = logging.Nop()
	opts.Tracer = tracing.Noop()
	engine, err := syncengine.NewEngine[*outbox.Upload](s, deliver, onlineOracle{}, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	p, err := engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if p.Total != 3 || p.Completed != 2 || p.Failed != 0 {
		t.Errorf("progress = %+v", p)
	}

	remaining, _ := s.ListPending(ctx)
	if len(remaining) != 1 || remaining[0].ID != "bad" {
		t.Fatalf("remaining = %v, want [bad]", remaining)
	}
	if remaining[0].RetryCount != 1 || remaining[0].LastError != "HTTP 422: unreadable scan" {
		t.Errorf("retry state = %+v", remaining[0].Item)
	}
}
