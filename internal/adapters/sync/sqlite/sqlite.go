// Package sqlite provides the SQLite-backed outbox store.
//
// One database file holds every queue. Each Store sees only the rows of its
// own kind, and the cycle history table lives alongside them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// busyTimeout lets the CLI and a running daemon share the file.
const busyTimeout = 5 * time.Second

// Connection owns the database handle shared by every queue's store.
type Connection struct {
	path string

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewConnection prepares a connection to the database at path. Nothing is
// opened until Open.
func NewConnection(path string) (*Connection, error) {
	if path == "" {
		return nil, domainerrors.NewError(domainerrors.CodeConfiguration, "database path is required", nil)
	}
	return &Connection{path: path}, nil
}

// Open creates the parent directory, opens the database and brings the
// schema up to date. Opening an open connection is a no-op; a closed
// connection cannot be reopened.
func (c *Connection) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return domainerrors.ErrStoreClosed
	case c.db != nil:
		return nil
	}

	if c.path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
			return domainerrors.NewError(domainerrors.CodeStorage, "could not create database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(c.path))
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeStorage, "could not open database", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return domainerrors.NewError(domainerrors.CodeStorage, "could not prepare outbox database", err)
	}

	c.db = db
	return nil
}

// dsn builds the driver connection string for path.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	params.Set("_foreign_keys", "on")
	if path != MemoryPath {
		params.Set("_journal_mode", "WAL")
	}
	return path + "?" + params.Encode()
}

// Close closes the database. Further calls to DB fail with ErrStoreClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.db == nil {
		return nil
	}
	db := c.db
	c.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("could not close database: %w", err)
	}
	return nil
}

// DB returns the open database handle.
func (c *Connection) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.closed:
		return nil, domainerrors.ErrStoreClosed
	case c.db == nil:
		return nil, domainerrors.NewError(domainerrors.CodeStorage, "database not open", nil)
	}
	return c.db, nil
}

// Path returns the database file path.
func (c *Connection) Path() string {
	return c.path
}

// SchemaVersion returns the highest applied migration.
func (c *Connection) SchemaVersion(ctx context.Context) (int, error) {
	db, err := c.DB()
	if err != nil {
		return 0, err
	}
	return schemaVersion(ctx, db)
}
