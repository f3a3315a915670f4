// Package sessionlog keeps an append-only audit trail of accepted commits
// in an in-process SQLite database, so a crashed or restarted session can
// be inspected after the fact without touching the tree persistence
// format itself.
package sessionlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Log is a handle to the session's commit history.
type Log struct {
	db *sql.DB
}

// Open creates an in-memory SQLite database and its schema. Each session
// gets its own database; nothing is written to disk.
func Open() (*Log, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("sessionlog: open: %w", err)
	}
	const schema = `
	CREATE TABLE commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		base_pos INTEGER NOT NULL,
		token INTEGER NOT NULL,
		text TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// RecordCommit appends one accepted-token event to the audit trail.
func (l *Log) RecordCommit(ctx context.Context, correlationID string, basePos int, token int32, text string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO commits (correlation_id, base_pos, token, text) VALUES (?, ?, ?, ?)`,
		correlationID, basePos, token, text,
	)
	if err != nil {
		return fmt.Errorf("sessionlog: record commit: %w", err)
	}
	return nil
}

// CommitEntry is one row of the audit trail.
type CommitEntry struct {
	ID            int64
	CorrelationID string
	BasePos       int
	Token         int32
	Text          string
}

// Recent returns up to limit most-recent commits, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]CommitEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, correlation_id, base_pos, token, text FROM commits ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: query recent: %w", err)
	}
	defer rows.Close()

	var out []CommitEntry
	for rows.Next() {
		var e CommitEntry
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.BasePos, &e.Token, &e.Text); err != nil {
			return nil, fmt.Errorf("sessionlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
