// Package telemetry records per-pass scheduler statistics into an
// in-process DuckDB table, so aggregate questions ("average batch size
// for BRANCH jobs", "how often did snapshots get captured") can be
// answered with SQL instead of ad-hoc counters threaded through the
// scheduler.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// Recorder is a handle to the telemetry database.
type Recorder struct {
	db *sql.DB
}

// Open creates an in-memory DuckDB database and its schema.
func Open() (*Recorder, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("telemetry: open: %w", err)
	}
	const schema = `
	CREATE TABLE passes (
		seq BIGINT,
		job_kind VARCHAR,
		batch_size INTEGER,
		snapshot_taken BOOLEAN,
		duration_micros BIGINT
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// PassStats describes one completed inference pass.
type PassStats struct {
	Seq            int64
	JobKind        string
	BatchSize      int
	SnapshotTaken  bool
	DurationMicros int64
}

// RecordPass appends one pass's statistics to the table.
func (r *Recorder) RecordPass(ctx context.Context, s PassStats) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO passes (seq, job_kind, batch_size, snapshot_taken, duration_micros) VALUES (?, ?, ?, ?, ?)`,
		s.Seq, s.JobKind, s.BatchSize, s.SnapshotTaken, s.DurationMicros,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record pass: %w", err)
	}
	return nil
}

// KindSummary aggregates pass stats for one job kind.
type KindSummary struct {
	JobKind       string
	Passes        int64
	AvgBatchSize  float64
	SnapshotCount int64
}

// SummarizeByKind returns one row per job kind seen so far.
func (r *Recorder) SummarizeByKind(ctx context.Context) ([]KindSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_kind, COUNT(*), AVG(batch_size), SUM(CASE WHEN snapshot_taken THEN 1 ELSE 0 END)
		FROM passes
		GROUP BY job_kind
		ORDER BY job_kind`)
	if err != nil {
		return nil, fmt.Errorf("telemetry: summarize: %w", err)
	}
	defer rows.Close()

	var out []KindSummary
	for rows.Next() {
		var s KindSummary
		if err := rows.Scan(&s.JobKind, &s.Passes, &s.AvgBatchSize, &s.SnapshotCount); err != nil {
			return nil, fmt.Errorf("telemetry: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
