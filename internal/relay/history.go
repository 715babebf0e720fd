package relay

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// historyTimeFormat is fixed width so stored timestamps sort as text.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z"
)

// HistoryEntry is one recorded publish.
type HistoryEntry struct {
	ID          int64
	RunID       string
	Topic       string
	Sequence    uint64
	Message     string
	PublishedAt time.Time
}

// SQLiteHistory stores published envelopes in the relay_history table.
//
// Entries are tagged with a run ID because sequence numbers restart at 0
// every time the process starts.
type SQLiteHistory struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// NewSQLiteHistory creates a history writer for one process run.
//
// Parameters:
//   - db: Open SQLite connection with the relay_history migration applied
//   - runID: Identifier of this process run
func NewSQLiteHistory(db *sql.DB, runID string) *SQLiteHistory {
	return &SQLiteHistory{db: db, runID: runID, now: time.Now}
}

// RunID returns the run identifier attached to new entries.
func (h *SQLiteHistory) RunID() string {
	return h.runID
}

// Record inserts one published envelope.
func (h *SQLiteHistory) Record(ctx context.Context, topic string, env Envelope) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO relay_history (run_id, topic, sequence, message, published_at) VALUES (?, ?, ?, ?, ?)",
		h.runID,
		topic,
		int64(env.Sequence), //nolint:gosec // Sequence fits int64 for any realistic run
		env.Message,
		h.now().UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting relay history: %w", err)
	}
	return nil
}

// Recent returns the newest entries across all runs, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 500)
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, run_id, topic, sequence, message, published_at
		 FROM relay_history
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relay history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var sequence int64
		var publishedAt string

		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Topic, &sequence, &entry.Message, &publishedAt); err != nil {
			return nil, fmt.Errorf("scanning relay history: %w", err)
		}
		entry.Sequence = uint64(sequence) //nolint:gosec // Written from a uint64 by Record

		entry.PublishedAt, err = time.Parse(historyTimeFormat, publishedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing published_at: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relay history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration and returns the count.
func (h *SQLiteHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := h.now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := h.db.ExecContext(ctx, "DELETE FROM relay_history WHERE published_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting relay history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
