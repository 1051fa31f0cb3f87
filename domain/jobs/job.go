package jobs

import (
	"time"
)

// Job is one target URL from the externally supplied job list. Jobs are
// consumed in order, exactly once per successful run.
type Job struct {
	Index int    // position in the input list, stable across resumes
	URL   string // target URL, classified at execution time
}

// JobStatus represents the status of a job within a scan run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusSkipped   JobStatus = "skipped" // classification error, advanced past
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true once the job needs no further work in this run.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusSkipped
}

// Counts carries per-job row statistics, persisted with each checkpoint.
type Counts struct {
	Webs         int `json:"webs"`
	Lists        int `json:"lists"`
	Items        int `json:"items"`
	FlaggedNodes int `json:"flagged_nodes"`
	AccessRows   int `json:"access_rows"`
}

// Checkpoint is the durable resume record for one job. It is written
// transactionally at each list and item boundary so an interrupted run
// resumes at the last incomplete unit.
type Checkpoint struct {
	RunID         string
	JobIndex      int
	JobURL        string
	Status        JobStatus
	LastWebIndex  int // index of the last web whose web-level rows went out, -1 when none
	LastListIndex int // index of the last fully processed list, -1 when none
	LastItemIndex int // ordinal of the last processed item in the current list, -1 when none
	Counts        Counts
	Error         string
	UpdatedAt     time.Time
}

// NewCheckpoint returns a fresh checkpoint for a job with nothing processed.
func NewCheckpoint(runID string, job *Job) *Checkpoint {
	return &Checkpoint{
		RunID:         runID,
		JobIndex:      job.Index,
		JobURL:        job.URL,
		Status:        JobStatusPending,
		LastWebIndex:  -1,
		LastListIndex: -1,
		LastItemIndex: -1,
	}
}

// ScanRun identifies one batch execution over a job list. A resumed run
// keeps the original run ID so checkpoints and output rows stay joined.
type ScanRun struct {
	ID        string
	StartedAt time.Time
	JobCount  int
}
