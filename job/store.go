package job

import (
	"context"

	"github.com/vidscribe/vidscribe/id"
)

// Store persists job records.
type Store interface {
	// SaveJob inserts or replaces a job by ID.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob returns a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns a user's jobs, newest first.
	ListJobs(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Job, error)

	// ListRefundPending returns terminal jobs still owing a refund.
	ListRefundPending(ctx context.Context, userID id.UserID) ([]*Job, error)
}

// ListOpts filters and pages job listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
