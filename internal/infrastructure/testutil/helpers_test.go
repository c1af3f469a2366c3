package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path := WriteFile(t, dir, "sub/visit.webm", "audio")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "audio" {
		t.Errorf("expected content %q, got %q", "audio", string(data))
	}
}

func TestNewUpload(t *testing.T) {
	u := NewUpload(t, "id-1", "recordings", "visit.webm", "12345")

	AssertEqual(t, u.ID, "id-1")
	AssertEqual(t, u.Kind, "recordings")
	AssertEqual(t, u.SizeBytes, int64(5))
	if _, err := os.Stat(u.FilePath); err != nil {
		t.Errorf("upload file missing: %v", err)
	}
}

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		n.Store(1)
	}()
	Eventually(t, time.Second, func() bool { return n.Load() == 1 }, "flag never set")
}

func TestAssertions(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", os.ErrNotExist)

	AssertNoError(t, nil)
	AssertErrorIs(t, wrapped, os.ErrNotExist)
	AssertEqual(t, "recordings", "recordings")
	AssertEqual(t, 3, 3)
}
