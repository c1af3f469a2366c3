// Package storage provides SQLite repositories for sync bookkeeping.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
)

// CycleRecord is the persisted summary of one finished sync cycle.
type CycleRecord struct {
	ID         int64
	CycleID    string
	Queue      string
	Total      int
	Completed  int
	Failed     int
	Outcome    outbox.EventType // complete or error
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the cycle ran.
func (r CycleRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CycleHistoryRepository stores cycle summaries in SQLite.
type CycleHistoryRepository struct {
	db *sql.DB
}

// NewCycleHistoryRepository creates a new CycleHistoryRepository.
func NewCycleHistoryRepository(db *sql.DB) *CycleHistoryRepository {
	return &CycleHistoryRepository{db: db}
}

// Save persists a cycle record.
func (r *CycleHistoryRepository) Save(ctx context.Context, rec *CycleRecord) error {
	if rec == nil {
		return fmt.Errorf("cycle record is nil")
	}

	query := `
		INSERT INTO cycle_history (
			cycle_id, queue, total, completed, failed, outcome, error_message,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.ExecContext(ctx, query,
		rec.CycleID,
		rec.Queue,
		rec.Total,
		rec.Completed,
		rec.Failed,
		string(rec.Outcome),
		rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle record: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty queue matches all queues.
func (r *CycleHistoryRepository) Recent(ctx context.Context, queue string, limit int) ([]CycleRecord, error) {
	query := `
		SELECT id, cycle_id, queue, total, completed, failed, outcome,
			COALESCE(error_message, ''), started_at, finished_at
		FROM cycle_history
		WHERE 1=1
	`
	args := make([]any, 0)

	if queue != "" {
		query += " AND queue = ?"
		args = append(args, queue)
	}

	query += " ORDER BY id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle history: %w", err)
	}
	defer rows.Close()

	records := make([]CycleRecord, 0)
	for rows.Next() {
		var rec CycleRecord
		var outcome, startedAt, finishedAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleID,
			&rec.Queue,
			&rec.Total,
			&rec.Completed,
			&rec.Failed,
			&outcome,
			&rec.Error,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle record: %w", err)
		}
		rec.Outcome = outbox.EventType(outcome)
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle history: %w", err)
	}
	return records, nil
}

// Prune deletes records finished before cutoff and returns how many were removed.
func (r *CycleHistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM cycle_history WHERE finished_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycle history: %w", err)
	}
	return res.RowsAffected()
}

// CycleRecorder turns engine events into cycle history rows.
type CycleRecorder struct {
	repo   *CycleHistoryRepository
	logger *logging.Logger

	mu      sync.Mutex
	started map[string]time.Time // cycle id -> start event time
}

// NewCycleRecorder creates a recorder that writes to repo.
func NewCycleRecorder(repo *CycleHistoryRepository, logger *logging.Logger) *CycleRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &CycleRecorder{
		repo:    repo,
		logger:  logger,
		started: make(map[string]time.Time),
	}
}

// Listen is an engine event listener. It saves one record per terminal event.
func (c *CycleRecorder) Listen(ev outbox.Event) {
	switch ev.Type {
	case outbox.EventStart:
		c.mu.Lock()
		c.started[ev.CycleID] = ev.Timestamp
		c.mu.Unlock()
		return
	case outbox.EventProgress:
		return
	}

	c.mu.Lock()
	startedAt, ok := c.started[ev.CycleID]
	delete(c.started, ev.CycleID)
	c.mu.Unlock()
	if !ok {
		// Snapshot failures end a cycle without a start event.
		startedAt = ev.Timestamp
	}

	rec := &CycleRecord{
		CycleID:    ev.CycleID,
		Queue:      ev.Queue,
		Total:      ev.Progress.Total,
		Completed:  ev.Progress.Completed,
		Failed:     ev.Progress.Failed,
		Outcome:    ev.Type,
		StartedAt:  startedAt,
		FinishedAt: ev.Timestamp,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}

	if err := c.repo.Save(context.Background(), rec); err != nil {
		c.logger.Warn("failed to record sync cycle", "queue", ev.Queue, "cycle_id", ev.CycleID, "error", err)
	}
}
