package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/tasks"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	context           TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL,
	source_note_id    TEXT NOT NULL DEFAULT '',
	source_note_title TEXT NOT NULL DEFAULT '',
	extracted_from    TEXT NOT NULL,
	pending_id        TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_tasks (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	context           TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL,
	source_note_id    TEXT NOT NULL DEFAULT '',
	source_note_title TEXT NOT NULL DEFAULT '',
	extracted_from    TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_tasks(created_at);
`

// SQLiteStore is a Store backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if !strings.HasPrefix(path, ":memory:") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Each :memory: connection is its own database, and SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *tasks.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks
			(id, title, description, context, confidence, source_note_id,
			 source_note_title, extracted_from, pending_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Context, t.Confidence, t.SourceNoteID,
		t.SourceNoteTitle, string(t.ExtractedFrom), t.PendingID, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*tasks.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, context, confidence, source_note_id,
		       source_note_title, extracted_from, pending_id, created_at
		FROM tasks
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*tasks.Task
	for rows.Next() {
		var (
			t       tasks.Task
			origin  string
			created string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Context, &t.Confidence,
			&t.SourceNoteID, &t.SourceNoteTitle, &origin, &t.PendingID, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ExtractedFrom = tasks.Origin(origin)
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreatePendingTask(ctx context.Context, p *tasks.PendingTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_tasks
			(id, title, description, context, confidence, source_note_id,
			 source_note_title, extracted_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Context, p.Confidence, p.SourceNoteID,
		p.SourceNoteTitle, string(p.ExtractedFrom), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert pending task %s: %w", p.ID, err)
	}
	return nil
}

const pendingColumns = `id, title, description, context, confidence, source_note_id,
	source_note_title, extracted_from, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPending(row scanner) (*tasks.PendingTask, error) {
	var (
		p       tasks.PendingTask
		origin  string
		created string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Context, &p.Confidence,
		&p.SourceNoteID, &p.SourceNoteTitle, &origin, &created); err != nil {
		return nil, err
	}
	p.ExtractedFrom = tasks.Origin(origin)
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

func (s *SQLiteStore) GetPendingTask(ctx context.Context, id string) (*tasks.PendingTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_tasks WHERE id = ?`, id)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending task %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) DeletePendingTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pending task %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListPendingTasks(ctx context.Context) ([]*tasks.PendingTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pendingColumns+` FROM pending_tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var out []*tasks.PendingTask
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending task: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DB returns the underlying handle so other tables can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as fixed-width UTC text so ORDER BY sorts them
// chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ Store = (*SQLiteStore)(nil)
