// Package events defines the scan lifecycle events published by the
// orchestrator. Consumers (the status endpoint, log subscribers) observe
// progress without coupling to the scan loop.
package events

import (
	"time"

	"sptrace/domain/jobs"
)

// JobStartedEvent fires when the orchestrator begins a job.
type JobStartedEvent struct {
	RunID     string
	Job       *jobs.Job
	Resumed   bool // true when the job picked up from an earlier checkpoint
	Timestamp time.Time
}

// JobCompletedEvent fires when a job finishes successfully.
type JobCompletedEvent struct {
	RunID     string
	Job       *jobs.Job
	Counts    jobs.Counts
	Timestamp time.Time
}

// JobSkippedEvent fires when a job's URL fails classification and the batch
// advances past it.
type JobSkippedEvent struct {
	RunID     string
	Job       *jobs.Job
	Reason    string
	Timestamp time.Time
}

// RunCompletedEvent fires once every job in the batch reached a terminal
// state.
type RunCompletedEvent struct {
	Run       *jobs.ScanRun
	Completed int
	Skipped   int
	Timestamp time.Time
}
