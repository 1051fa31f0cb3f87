// Package checkpoint implements the durable per-job resume records over
// SQLite. Every save is a single transaction so a crash mid-write never
// leaves a torn checkpoint behind.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sptrace/database"
	"sptrace/domain/jobs"
	"sptrace/logging"
)

// SQLiteStore persists checkpoints and scan runs.
type SQLiteStore struct {
	db     *database.Database
	logger *logging.Logger
}

// New creates a checkpoint store over the given database.
func New(db *database.Database) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logging.Default().WithComponent("checkpoint"),
	}
}

// SaveRun records a scan run before its first checkpoint is written.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *jobs.ScanRun) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scan_runs (run_id, started_at, job_count) VALUES (?, ?, ?)
			 ON CONFLICT (run_id) DO UPDATE SET job_count = excluded.job_count`,
			run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.JobCount)
		if err != nil {
			return fmt.Errorf("insert scan run: %w", err)
		}
		return nil
	})
}

// Save upserts the checkpoint for (run, job index) in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, cp *jobs.Checkpoint) error {
	countsJSON, err := json.Marshal(cp.Counts)
	if err != nil {
		return fmt.Errorf("marshal checkpoint counts: %w", err)
	}

	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoints
				(run_id, job_index, job_url, status, last_web_index, last_list_index, last_item_index, counts_json, error, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, job_index) DO UPDATE SET
				job_url = excluded.job_url,
				status = excluded.status,
				last_web_index = excluded.last_web_index,
				last_list_index = excluded.last_list_index,
				last_item_index = excluded.last_item_index,
				counts_json = excluded.counts_json,
				error = excluded.error,
				updated_at = excluded.updated_at`,
			cp.RunID, cp.JobIndex, cp.JobURL, string(cp.Status),
			cp.LastWebIndex, cp.LastListIndex, cp.LastItemIndex, string(countsJSON),
			cp.Error, updatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("upsert checkpoint: %w", err)
		}
		return nil
	})
}

// Load returns the checkpoint for (run, job index) if one exists.
func (s *SQLiteStore) Load(ctx context.Context, runID string, jobIndex int) (*jobs.Checkpoint, bool, error) {
	row := s.db.Read().QueryRowContext(ctx, `
		SELECT job_url, status, last_web_index, last_list_index, last_item_index, counts_json, error, updated_at
		FROM checkpoints
		WHERE run_id = ? AND job_index = ?`,
		runID, jobIndex)

	cp := &jobs.Checkpoint{RunID: runID, JobIndex: jobIndex}
	var (
		status     string
		countsJSON string
		updatedAt  string
	)
	err := row.Scan(&cp.JobURL, &status, &cp.LastWebIndex, &cp.LastListIndex, &cp.LastItemIndex,
		&countsJSON, &cp.Error, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}

	cp.Status = jobs.JobStatus(status)
	if err := json.Unmarshal([]byte(countsJSON), &cp.Counts); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint counts: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		cp.UpdatedAt = t
	}

	return cp, true, nil
}

// LatestIncompleteRun returns the most recent run that still has jobs in a
// non-terminal state, for resume at startup. A run with no checkpoints at
// all also counts as incomplete.
func (s *SQLiteStore) LatestIncompleteRun(ctx context.Context) (*jobs.ScanRun, bool, error) {
	row := s.db.Read().QueryRowContext(ctx, `
		SELECT r.run_id, r.started_at, r.job_count
		FROM scan_runs r
		WHERE (SELECT COUNT(*) FROM checkpoints c
			   WHERE c.run_id = r.run_id AND c.status IN ('completed', 'skipped')) < r.job_count
		ORDER BY r.started_at DESC
		LIMIT 1`)

	run := &jobs.ScanRun{}
	var startedAt string
	err := row.Scan(&run.ID, &startedAt, &run.JobCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query incomplete runs: %w", err)
	}

	if t, perr := time.Parse(time.RFC3339, startedAt); perr == nil {
		run.StartedAt = t
	}

	s.logger.Database("Found incomplete scan run", "run_id", run.ID, "job_count", run.JobCount)
	return run, true, nil
}
