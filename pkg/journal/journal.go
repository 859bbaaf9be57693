// Package journal records every executed command in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome of one command
const (
	OutcomeOK      = "ok"      // Command completed
	OutcomeFailed  = "failed"  // Filesystem failure after the ACK, session aborted
	OutcomeAborted = "aborted" // Session aborted during the command
)

// Entry is one journal row
type Entry struct {
	ID        int64
	SessionID string
	Command   string
	Argument  string
	Mode      string
	Outcome   string
	Bytes     int64 // Logical bytes moved by pull or push
	Frames    int   // Data frames exchanged after the acknowledgment
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

// Journal wraps the sqlite database
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path and runs migrations. ":memory:" gives a
// private in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			argument TEXT NOT NULL,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id);
	`)
	return err
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts e and returns its row id
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO commands (session_id, command, argument, mode, outcome, bytes, frames, started_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Command, e.Argument, e.Mode, e.Outcome, e.Bytes, e.Frames,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.Duration.Milliseconds(), nullString(e.Error))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns the newest entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, `SELECT id, session_id, command, argument, mode, outcome, bytes, frames, started_at, duration_ms, error
		FROM commands ORDER BY id DESC LIMIT ?`, limit)
}

// BySession returns the entries of one session in execution order
func (j *Journal) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	return j.query(ctx, `SELECT id, session_id, command, argument, mode, outcome, bytes, frames, started_at, duration_ms, error
		FROM commands WHERE session_id = ? ORDER BY id`, sessionID)
}

// Totals aggregates the journal
type Totals struct {
	Commands int
	Failed   int
	Aborted  int
	Bytes    int64
}

// Totals returns aggregate counts over all sessions
func (j *Journal) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := j.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(bytes), 0)
		FROM commands`, OutcomeFailed, OutcomeAborted).Scan(&t.Commands, &t.Failed, &t.Aborted, &t.Bytes)
	return t, err
}

func (j *Journal) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started string
		var durationMs int64
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &e.Argument, &e.Mode, &e.Outcome,
			&e.Bytes, &e.Frames, &started, &durationMs, &errText); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
