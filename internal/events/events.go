// Package events is a SQLite-backed operational journal. It records what
// the bot did, never conversation state; session histories stay in memory.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants.
const (
	EventProcessStarted   = "process.started"
	EventMessageReceived  = "message.received"
	EventCommandHandled   = "command.handled"
	EventReplySent        = "reply.sent"
	EventCompletionFailed = "completion.failed"
	EventFallbackSent     = "fallback.sent"
	EventCircuitOpened    = "circuit.opened"
	EventCircuitHalfOpen  = "circuit.half_open"
	EventCircuitClosed    = "circuit.closed"
)

// Log writes parent-linked events to SQLite. A nil *Log is valid and
// discards everything, so call sites stay unconditional when the journal
// is disabled.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the journal at the given path, ensuring the
// parent directory exists.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal at %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
		CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts an event and returns its auto-generated id. parentID may
// be nil for root events. payload is serialized to JSON; nil stores NULL.
func (l *Log) Record(parentID *int64, eventType string, payload map[string]any) (int64, error) {
	if l == nil {
		return 0, nil
	}

	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := l.db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}
