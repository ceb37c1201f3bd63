// Package store keeps a ledger of preload sessions in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/fetch"
	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/validate"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id       TEXT PRIMARY KEY,
	started  INTEGER NOT NULL,
	finished INTEGER,
	assets   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	media_key  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	locator    TEXT NOT NULL,
	validation TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	bytes      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, media_key)
);`

// Store implements preload.Recorder.
type Store struct {
	db *sql.DB
}

var _ preload.Recorder = (*Store)(nil)

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// sqlite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) BeginSession(ctx context.Context, id string, started time.Time, assets int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started, assets) VALUES (?, ?, ?)`,
		id, started.UnixMilli(), assets)
	return err
}

func (s *Store) RecordOutcome(ctx context.Context, sessionID string, o preload.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes (session_id, media_key, kind, status, locator, validation, reason, bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(o.Key), string(o.Kind), string(o.Status), o.Locator, string(o.Validation), o.Reason, o.Bytes)
	return err
}

func (s *Store) EndSession(ctx context.Context, id string, finished time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET finished = ? WHERE id = ?`, finished.UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: no session %s", id)
	}
	return nil
}

// Session is one row of the history listing.
type Session struct {
	ID       string
	Started  time.Time
	Finished time.Time // zero if the process died mid-session
	Assets   int
	Ready    int
	Fallback int
}

// Sessions lists the most recent sessions first. limit <= 0 means all.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	q := `SELECT s.id, s.started, s.finished, s.assets,
		COALESCE(SUM(o.status = 'ready'), 0), COALESCE(SUM(o.status = 'fallback'), 0)
		FROM sessions s LEFT JOIN outcomes o ON o.session_id = s.id
		GROUP BY s.id ORDER BY s.started DESC, s.id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var ss Session
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&ss.ID, &started, &finished, &ss.Assets, &ss.Ready, &ss.Fallback); err != nil {
			return nil, err
		}
		ss.Started = time.UnixMilli(started)
		if finished.Valid {
			ss.Finished = time.UnixMilli(finished.Int64)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Outcomes returns a session's outcomes ordered by key.
func (s *Store) Outcomes(ctx context.Context, sessionID string) ([]preload.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_key, kind, status, locator, validation, reason, bytes
		 FROM outcomes WHERE session_id = ? ORDER BY media_key`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []preload.Outcome
	for rows.Next() {
		var o preload.Outcome
		var key, kind, status, validation string
		if err := rows.Scan(&key, &kind, &status, &o.Locator, &validation, &o.Reason, &o.Bytes); err != nil {
			return nil, err
		}
		o.Key = catalog.Key(key)
		o.Kind = catalog.Kind(kind)
		o.Status = fetch.Status(status)
		o.Validation = validate.Result(validation)
		out = append(out, o)
	}
	return out, rows.Err()
}
