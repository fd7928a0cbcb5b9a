package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// SQLitePersistence implements SessionPersistence on a SQLite database
type SQLitePersistence struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLite opens or creates the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLitePersistence, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLitePersistence{db: db, timeout: 5 * time.Second}, nil
}

// Close closes the database handle
func (sp *SQLitePersistence) Close() error {
	if sp == nil || sp.db == nil {
		return nil
	}
	return sp.db.Close()
}

func (sp *SQLitePersistence) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), sp.timeout)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Save upserts a session record
func (sp *SQLitePersistence) Save(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := ValidateID(rec.ID); err != nil {
		return err
	}
	if len(rec.State) == 0 {
		return fmt.Errorf("session %s: state is required", rec.ID)
	}

	ctx, cancel := sp.ctx()
	defer cancel()
	_, err := sp.db.ExecContext(ctx,
		`INSERT INTO sessions (session_key, id, game, created_at, last_accessed_at, state)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_key) DO UPDATE SET
		   id = excluded.id,
		   game = excluded.game,
		   last_accessed_at = excluded.last_accessed_at,
		   state = excluded.state`,
		strings.ToLower(rec.ID), rec.ID, rec.Game,
		toMillis(rec.CreatedAt), toMillis(rec.LastAccessedAt), rec.State,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// Load retrieves a session record by ID
func (sp *SQLitePersistence) Load(id string) (*Record, error) {
	ctx, cancel := sp.ctx()
	defer cancel()

	var (
		rec                 Record
		created, lastAccess int64
	)
	err := sp.db.QueryRowContext(ctx,
		`SELECT id, game, created_at, last_accessed_at, state FROM sessions WHERE session_key = ?`,
		strings.ToLower(id),
	).Scan(&rec.ID, &rec.Game, &created, &lastAccess, &rec.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.CreatedAt = fromMillis(created)
	rec.LastAccessedAt = fromMillis(lastAccess)
	return &rec, nil
}

// Delete removes a session record
func (sp *SQLitePersistence) Delete(id string) error {
	ctx, cancel := sp.ctx()
	defer cancel()

	res, err := sp.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, strings.ToLower(id))
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns all persisted session IDs, oldest first
func (sp *SQLitePersistence) ListAll() ([]string, error) {
	ctx, cancel := sp.ctx()
	defer cancel()

	rows, err := sp.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at, session_key`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Exists checks if a session record exists
func (sp *SQLitePersistence) Exists(id string) bool {
	ctx, cancel := sp.ctx()
	defer cancel()

	var one int
	err := sp.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_key = ?`, strings.ToLower(id)).Scan(&one)
	return err == nil
}
