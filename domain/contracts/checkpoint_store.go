package contracts

import (
	"context"

	"sptrace/domain/jobs"
)

// CheckpointStore persists the durable per-job resume records. Save is
// transactional: a torn write must never surface as a partial checkpoint.
type CheckpointStore interface {
	// SaveRun records a scan run before its first checkpoint.
	SaveRun(ctx context.Context, run *jobs.ScanRun) error

	// Save upserts the checkpoint for (run, job index).
	Save(ctx context.Context, cp *jobs.Checkpoint) error

	// Load returns the checkpoint for (run, job index) if one exists.
	Load(ctx context.Context, runID string, jobIndex int) (*jobs.Checkpoint, bool, error)

	// LatestIncompleteRun returns the most recent run that still has
	// non-terminal jobs, for checkpoint-based resume at startup.
	LatestIncompleteRun(ctx context.Context) (*jobs.ScanRun, bool, error)
}
