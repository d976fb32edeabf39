package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Store persists sessions and their event logs in SQLite. It is also a
// Sink: status events upsert the session row.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database at path and initializes the schema.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		device      TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		status_kind TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		at         INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Write stores e and, for status events, updates the session row.
func (s *Store) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO events (session_id, seq, kind, at, payload) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Seq, string(e.Kind), e.Time.UnixMilli(), string(payload)); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if e.Kind == EventStatus && e.Status != nil {
		status, err := json.Marshal(e.Status)
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		device := []byte("{}")
		if e.Status.Device != nil {
			if device, err = json.Marshal(e.Status.Device); err != nil {
				return fmt.Errorf("failed to marshal device: %w", err)
			}
		}
		at := e.Time.UnixMilli()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (session_id, device, title, status, status_kind, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				status = excluded.status,
				status_kind = excluded.status_kind,
				updated_at = excluded.updated_at`,
			e.SessionID, string(device), e.Status.TestMethod, string(status), string(e.Status.Kind), at, at); err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads one session.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, device, title, status, started_at, updated_at FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

// List returns up to limit sessions, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, device, title, status, started_at, updated_at FROM sessions ORDER BY updated_at DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Events returns the stored events of a session in sequence order.
func (s *Store) Events(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := DecodeEvent([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		sess             Session
		device, status   string
		started, updated int64
	)
	if err := sc.Scan(&sess.ID, &device, &sess.Title, &status, &started, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(device), &sess.Device); err != nil {
		return nil, fmt.Errorf("failed to decode device of %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(status), &sess.Status); err != nil {
		return nil, fmt.Errorf("failed to decode status of %s: %w", sess.ID, err)
	}
	sess.StartedAt = time.UnixMilli(started)
	sess.UpdatedAt = time.UnixMilli(updated)
	return &sess, nil
}
