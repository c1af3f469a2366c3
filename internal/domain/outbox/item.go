// Package outbox defines domain models for locally queued work awaiting delivery.
package outbox

import (
	"maps"
	"time"
)

// Syncable is implemented by every queued work type the sync engine can drain.
type Syncable interface {
	SyncID() string
	Retries() int
}

// Item is the unit of queued work. Concrete work types embed it.
type Item struct {
	ID         string // Stable for the item's lifetime
	RetryCount int    // Failed delivery attempts so far
	LastError  string // Last failure description, empty if none
}

// SyncID returns the item identifier.
func (i Item) SyncID() string { return i.ID }

// Retries returns the number of failed delivery attempts.
func (i Item) Retries() int { return i.RetryCount }

// Exhausted reports whether the item has used up maxRetries automatic attempts.
func (i Item) Exhausted(maxRetries int) bool {
	return i.RetryCount >= maxRetries
}

// ItemPatch carries the retry metadata written back to a store after a failed attempt.
type ItemPatch struct {
	RetryCount int
	LastError  string
}

// Upload is a locally captured file waiting to be sent to the remote service.
type Upload struct {
	Item
	Kind        string            // Queue name, e.g. recordings or documents
	FilePath    string            // Absolute path of the captured file
	ContentType string            // MIME type sent with the upload
	SizeBytes   int64             // File size at enqueue time
	Metadata    map[string]string // Forwarded as upload headers
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewUpload creates a queued upload with zero retries.
func NewUpload(id, kind, filePath, contentType string, size int64) *Upload {
	now := time.Now().UTC()
	return &Upload{
		Item:        Item{ID: id},
		Kind:        kind,
		FilePath:    filePath,
		ContentType: contentType,
		SizeBytes:   size,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of the upload.
func (u *Upload) Clone() *Upload {
	c := *u
	c.Metadata = maps.Clone(u.Metadata)
	return &c
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Success bool
	ID      string
	Error   string
}

// Succeeded builds a successful result for id.
func Succeeded(id string) Result {
	return Result{Success: true, ID: id}
}

// Failed builds a failed result for id with the given reason.
func Failed(id, reason string) Result {
	return Result{Success: false, ID: id, Error: reason}
}
