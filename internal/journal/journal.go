// Package journal keeps a local SQLite record of quality-check runs
// so past runs can be summarized without querying the image server.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// StatusOK marks an image whose check and store both succeeded.
	StatusOK = "ok"
	// StatusFailed marks an image whose check or store failed.
	StatusFailed = "failed"
	// StatusSkipped marks an image left unprocessed, e.g. when a
	// fail-fast run aborts before reaching it.
	StatusSkipped = "skipped"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  check_name TEXT NOT NULL,
  check_version TEXT NOT NULL,
  started_at TIMESTAMP NOT NULL,
  finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_images (
  run_id TEXT NOT NULL,
  image_id INTEGER NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  duration_ms INTEGER NOT NULL,
  FOREIGN KEY(run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_run_images_run_id ON run_images(run_id);
`

// Journal is a local run journal backed by SQLite.
type Journal struct {
	db *sql.DB
}

// Run summarizes one engine run.
type Run struct {
	ID           string
	CheckName    string
	CheckVersion string
	StartedAt    time.Time
	FinishedAt   time.Time
	Total        int
	Succeeded    int
	Failed       int
}

// Open opens (creating if needed) the journal at path. Use ":memory:"
// for an ephemeral journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun opens a run record and returns its ID.
func (j *Journal) BeginRun(ctx context.Context, checkName, checkVersion string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, check_name, check_version, started_at) VALUES (?, ?, ?, ?)`,
		id, checkName, checkVersion, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordImage appends one per-image outcome to a run.
func (j *Journal) RecordImage(ctx context.Context, runID string, imageID int64, status, errText string, duration time.Duration) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_images (run_id, image_id, status, error, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		runID, imageID, status, errText, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record image %d: %w", imageID, err)
	}
	return nil
}

// FinishRun stamps the run's end time.
func (j *Journal) FinishRun(ctx context.Context, runID string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// Runs returns the most recent runs with per-status counts, newest
// first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.check_name, r.check_version, r.started_at, COALESCE(r.finished_at, r.started_at),
		       COUNT(i.image_id),
		       COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN run_images i ON i.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, StatusOK, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CheckName, &r.CheckVersion, &r.StartedAt, &r.FinishedAt,
			&r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
