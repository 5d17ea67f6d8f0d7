package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
)

// SQLiteRecorder stores session events in SQLite.
type SQLiteRecorder struct {
	db        *sql.DB
	sessionID string
}

// NewSQLiteRecorder opens the database and registers the session.
func NewSQLiteRecorder(path, sessionID string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &SQLiteRecorder{db: db, sessionID: sessionID}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`, sessionID, time.Now()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		target TEXT,
		kind TEXT,
		step INTEGER,
		call_id TEXT,
		tool TEXT,
		args TEXT,
		text TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Publish inserts one event.
func (r *SQLiteRecorder) Publish(ctx context.Context, ev events.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (session_id, turn_id, seq, type, target, kind, step, call_id, tool, args, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.sessionID, ev.TurnID, ev.Seq, string(ev.Type), ev.Target, ev.Kind, ev.Step,
		ev.CallID, ev.Tool, ev.ArgumentsSummary, ev.Text, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Load reads a session back in insertion order.
func (r *SQLiteRecorder) Load(ctx context.Context, sessionID string) (*Recording, error) {
	rec := &Recording{ID: sessionID}
	row := r.db.QueryRowContext(ctx, `SELECT created_at FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT turn_id, seq, type, target, kind, step, call_id, tool, args, text, timestamp
		FROM events WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev events.Event
		var typ string
		var target, kind, callID, tool, args, text sql.NullString
		var step sql.NullInt64
		if err := rows.Scan(&ev.TurnID, &ev.Seq, &typ, &target, &kind, &step, &callID, &tool, &args, &text, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = events.Type(typ)
		ev.Target = target.String
		ev.Kind = kind.String
		ev.Step = int(step.Int64)
		ev.CallID = callID.String
		ev.Tool = tool.String
		ev.ArgumentsSummary = args.String
		ev.Text = text.String
		rec.Events = append(rec.Events, ev)
	}
	return rec, rows.Err()
}

// Sessions lists recorded session IDs, newest first.
func (r *SQLiteRecorder) Sessions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadSQLite reads one session from an existing database without
// registering a new one.
func LoadSQLite(ctx context.Context, path, sessionID string) (*Recording, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	r := &SQLiteRecorder{db: db}
	return r.Load(ctx, sessionID)
}

// Close closes the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
