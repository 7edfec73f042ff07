package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultHistoryLimit is used when no limit is requested.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps a single history query.
	MaxHistoryLimit = 200
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Reasons a snapshot was recorded.
const (
	ReasonStatusChange = "status_change"
	ReasonInterval     = "interval"
)

// HistoryRecord is one stored snapshot.
type HistoryRecord struct {
	ID        int64          `json:"id"`
	EntryID   string         `json:"entry_id"`
	Status    string         `json:"status"`
	State     map[string]any `json:"state"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
}

// HistoryRepository stores and retrieves snapshots.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	Record(ctx context.Context, rec *HistoryRecord) error
	// GetHistory returns entries newest first. limit is clamped to
	// [1, MaxHistoryLimit]; zero or negative selects DefaultHistoryLimit.
	GetHistory(ctx context.Context, entryID string, limit int) ([]HistoryRecord, error)
	// Prune deletes records older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on state_history.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)

// NewSQLiteHistoryRepository creates a repository over an open, migrated database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, now: time.Now}
}

// Record inserts rec and fills in its ID. A zero CreatedAt is set to now.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, rec *HistoryRecord) error {
	if rec.EntryID == "" {
		return ErrEntryRequired
	}
	if rec.State == nil {
		rec.State = map[string]any{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (entry_id, status, state, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.EntryID,
		rec.Status,
		string(stateJSON),
		rec.Reason,
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading history id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetHistory returns recent snapshots for an entry, newest first.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, entryID string, limit int) ([]HistoryRecord, error) {
	if entryID == "" {
		return nil, ErrEntryRequired
	}
	limit = ClampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, status, state, reason, created_at
		 FROM state_history
		 WHERE entry_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		entryID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0, limit)
	for rows.Next() {
		var rec HistoryRecord
		var stateJSON, createdAt string

		if err := rows.Scan(&rec.ID, &rec.EntryID, &rec.Status, &stateJSON, &rec.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return records, nil
}

// Prune deletes snapshots older than olderThan.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, `DELETE FROM state_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ClampLimit applies the default and maximum history limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
