package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_notes_unprocessed ON notes(processed, updated_at);
`

// SQLiteSource is a Store kept in the notes table of a SQLite database,
// normally the one the task store already opened.
type SQLiteSource struct {
	db *sql.DB
}

var _ Store = (*SQLiteSource)(nil)

// NewSQLiteSource creates the notes table in db if needed.
func NewSQLiteSource(ctx context.Context, db *sql.DB) (*SQLiteSource, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply notes schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Put adds or replaces a note and marks it unprocessed.
func (s *SQLiteSource) Put(ctx context.Context, n Note) error {
	if n.ID == "" {
		return errNoID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, body, updated_at, processed)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			updated_at = excluded.updated_at,
			processed = 0`,
		n.ID, n.Title, n.Body, formatTime(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save note %s: %w", n.ID, err)
	}
	return nil
}

// ListUnprocessed returns unprocessed notes, oldest update first.
func (s *SQLiteSource) ListUnprocessed(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, body, updated_at FROM notes
		WHERE processed = 0
		ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := []Note{}
	for rows.Next() {
		var (
			n       Note
			updated string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &updated); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if n.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse note timestamp %q: %w", updated, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark note %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark note %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Same fixed-width UTC layout as the task store, so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
