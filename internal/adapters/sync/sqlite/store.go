package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// Store is the durable queue for one kind of upload. Several stores share a
// connection; each sees only rows of its own kind.
type Store struct {
	conn *Connection
	kind string
}

// NewStore creates a store scoped to kind on an open connection.
func NewStore(conn *Connection, kind string) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	if kind == "" {
		return nil, fmt.Errorf("queue kind cannot be empty")
	}
	return &Store{conn: conn, kind: kind}, nil
}

// Kind returns the queue this store is scoped to.
func (s *Store) Kind() string {
	return s.kind
}

const uploadColumns = `id, kind, file_path, content_type, size_bytes, metadata,
	retry_count, last_error, created_at, updated_at`

// Enqueue inserts a new upload. The upload's kind must match the store.
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

	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("could not encode metadata: %w", err)
	}

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox_items (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID,
		u.Kind,
		u.FilePath,
		u.ContentType,
		u.SizeBytes,
		string(metadata),
		u.RetryCount,
		nullString(u.LastError),
		u.CreatedAt.Format(time.RFC3339Nano),
		u.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeStorage, "could not enqueue upload", err)
	}
	return nil
}

// Get returns one upload by id.
func (s *Store) Get(ctx context.Context, id string) (*outbox.Upload, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM outbox_items WHERE kind = ? AND id = ?`, s.kind, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeStorage, "could not read upload", err)
	}
	return u, nil
}

// ListPending returns every queued upload in insertion order.
func (s *Store) ListPending(ctx context.Context) ([]*outbox.Upload, error) {
	return s.query(ctx,
		`SELECT `+uploadColumns+` FROM outbox_items WHERE kind = ? ORDER BY seq`, s.kind)
}

// ListExhausted returns uploads whose retry count has reached maxRetries.
func (s *Store) ListExhausted(ctx context.Context, maxRetries int) ([]*outbox.Upload, error) {
	return s.query(ctx,
		`SELECT `+uploadColumns+` FROM outbox_items WHERE kind = ? AND retry_count >= ? ORDER BY seq`,
		s.kind, maxRetries)
}

// UpdateItem persists retry metadata for an upload.
func (s *Store) UpdateItem(ctx context.Context, id string, patch outbox.ItemPatch) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE outbox_items SET retry_count = ?, last_error = ?, updated_at = ?
		WHERE kind = ? AND id = ?
	`, patch.RetryCount, nullString(patch.LastError), time.Now().UTC().Format(time.RFC3339Nano), s.kind, id)
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeStorage, "could not update upload", err)
	}
	return requireRow(res, id)
}

// ResetRetries clears the retry count and last error so the engine picks the
// upload up again.
func (s *Store) ResetRetries(ctx context.Context, id string) error {
	return s.UpdateItem(ctx, id, outbox.ItemPatch{})
}

// RemoveItem deletes an upload. Removing an absent upload is not an error.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM outbox_items WHERE kind = ? AND id = ?`, s.kind, id); err != nil {
		return domainerrors.NewError(domainerrors.CodeStorage, "could not remove upload", err)
	}
	return nil
}

// Count returns the number of queued uploads.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn.DB()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_items WHERE kind = ?`, s.kind).Scan(&n); err != nil {
		return 0, domainerrors.NewError(domainerrors.CodeStorage, "could not count uploads", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*outbox.Upload, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeStorage, "could not list uploads", err)
	}
	defer rows.Close()

	uploads := make([]*outbox.Upload, 0)
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, domainerrors.NewError(domainerrors.CodeStorage, "could not scan upload", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeStorage, "could not list uploads", err)
	}
	return uploads, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*outbox.Upload, error) {
	var (
		u                    outbox.Upload
		metadata, lastError  sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&u.ID,
		&u.Kind,
		&u.FilePath,
		&u.ContentType,
		&u.SizeBytes,
		&metadata,
		&u.RetryCount,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.LastError = lastError.String
	u.Metadata = make(map[string]string)
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &u.Metadata); err != nil {
			return nil, fmt.Errorf("could not decode metadata for %s: %w", u.ID, err)
		}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &u, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeStorage, "could not read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domainerrors.ErrItemNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
