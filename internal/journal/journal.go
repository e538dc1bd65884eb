// Package journal keeps every dialogue turn in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one journaled turn.
type Entry struct {
	DialogueID string
	Turn       int
	User       string
	System     string
	At         time.Time
}

// Journal is safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dialogue_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		user_act TEXT NOT NULL,
		system_act TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_dialogue ON turns(dialogue_id, turn);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: create tables: %w", err)
	}
	return nil
}

// Record appends a turn.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO turns (dialogue_id, turn, user_act, system_act, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.DialogueID, e.Turn, e.User, e.System, e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s/%d: %w", e.DialogueID, e.Turn, err)
	}
	return nil
}

// Turns returns the turns of a dialogue in order.
func (j *Journal) Turns(ctx context.Context, dialogueID string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx,
		`SELECT dialogue_id, turn, user_act, system_act, created_at
		 FROM turns WHERE dialogue_id = ? ORDER BY turn, id`,
		dialogueID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query %s: %w", dialogueID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.DialogueID, &e.Turn, &e.User, &e.System, &ms); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dialogues lists the journaled dialogue ids, most recent first.
func (j *Journal) Dialogues(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx,
		`SELECT dialogue_id FROM turns GROUP BY dialogue_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal: list dialogues: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *Journal) Close() error { return j.db.Close() }
