package contracts

import (
	"context"

	"sptrace/domain/jobs"
)

// JobSource supplies the pre-validated ordered list of target URLs.
type JobSource interface {
	Jobs(ctx context.Context) ([]*jobs.Job, error)
}
