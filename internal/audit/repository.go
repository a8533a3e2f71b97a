// Package audit keeps a bounded journal of platform session transitions in
// the agent's SQLite file, so a device can be inspected after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is a single journal record.
type Entry struct {
	ID           string         `json:"id"`
	State        string         `json:"state"`
	Generation   uint64         `json:"generation"`
	Attempts     int            `json:"attempts"`
	Credentialed bool           `json:"credentialed"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	State  string // optional: only entries for this state
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated journal entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the journal operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	credentialed := 0
	if e.Credentialed {
		credentialed = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (id, state, generation, attempts, credentialed, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.State, int64(e.Generation), e.Attempts, credentialed, //nolint:gosec // Generation never exceeds int64
		detailsJSON, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}

	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := ""
	var args []any
	if filter.State != "" {
		where = "WHERE state = ?"
		args = append(args, filter.State)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM session_events " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting session events: %w", err)
	}

	query := "SELECT id, state, generation, attempts, credentialed, details, created_at FROM session_events " +
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var generation int64
		var credentialed int
		var detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.State, &generation, &e.Attempts,
			&credentialed, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		e.Generation = uint64(generation) //nolint:gosec // Stored from a uint64
		e.Credentialed = credentialed != 0

		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				e.Details = details
			}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing session event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes all but the newest keep entries and returns how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM session_events WHERE rowid NOT IN (
			SELECT rowid FROM session_events ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning session events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning session events: %w", err)
	}
	return n, nil
}
