// Package testutil holds helpers shared by scribesync tests.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// pollInterval is how often Eventually re-checks its condition.
const pollInterval = 5 * time.Millisecond

// WriteFile creates dir/name (and any missing parents) holding content and
// returns its path.
func WriteFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// NewUpload returns an upload for queue backed by a fresh temp file.
func NewUpload(tb testing.TB, id, queue, name, content string) *outbox.Upload {
	tb.Helper()
	path := WriteFile(tb, tb.TempDir(), name, content)
	return outbox.NewUpload(id, queue, path, "application/octet-stream", int64(len(content)))
}

// Eventually fails the test unless cond holds within timeout.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool, msg string) {
	tb.Helper()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			tb.Fatalf("condition not met within %v: %s", timeout, msg)
		case <-tick.C:
		}
	}
}

// AssertNoError stops the test on a non-nil err.
func AssertNoError(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorIs stops the test unless err matches target.
func AssertErrorIs(tb testing.TB, err, target error) {
	tb.Helper()
	if !errors.Is(err, target) {
		tb.Fatalf("error = %v, want %v", err, target)
	}
}

// AssertEqual stops the test when got != want.
func AssertEqual[T comparable](tb testing.TB, got, want T) {
	tb.Helper()
	if got != want {
		tb.Fatalf("got %v, want %v", got, want)
	}
}
