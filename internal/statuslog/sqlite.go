package statuslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable status log stored in a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the status log at path, creating any missing
// containing directory.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows only one writer. Keep a single connection so
	// WAL+busy_timeout are consistently applied and writes are serialized
	// within the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	timeout := int((3 * time.Second) / time.Millisecond)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", timeout)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			action TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			exc_text TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_task ON records(task_name, id);
	`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, rec Record) error {
	var excText any
	if rec.ExcText != "" {
		excText = rec.ExcText
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (task_name, action, level, message, exc_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.TaskName, string(rec.Action), string(rec.Level), rec.Message, excText,
		rec.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *SQLite) Latest(ctx context.Context, taskName string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_name, action, level, message, exc_text, created_at
		FROM records
		WHERE task_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, taskName)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLite) All(ctx context.Context, taskName string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_name, action, level, message, exc_text, created_at
		FROM records
		WHERE task_name = ?
		ORDER BY created_at ASC, id ASC
	`, taskName)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*Record, error) {
	var (
		taskName  string
		action    string
		level     string
		message   string
		excText   sql.NullString
		createdAt string
	)
	if err := scanner.Scan(&taskName, &action, &level, &message, &excText, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored time %q: %w", createdAt, err)
	}
	rec := &Record{
		Time:     ts,
		Level:    Level(level),
		Action:   Action(action),
		TaskName: taskName,
		Message:  message,
	}
	if excText.Valid {
		rec.ExcText = excText.String
	}
	return rec, nil
}
