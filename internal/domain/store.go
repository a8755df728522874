package domain

import "context"

// JobStore is the durable mirror of job state. All calls are best-effort
// from the orchestrator's point of view: a failed write is logged and the
// in-memory state stays authoritative for the life of the process.
type JobStore interface {
	CreateRecord(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, step JobStep, errMsg *string) error
	RequeueRecord(ctx context.Context, jobID string, retryCount int) error
	CompleteRecord(ctx context.Context, jobID string, elapsedSeconds float64, info ArtifactInfo) error
	GetRecord(ctx context.Context, jobID string) (*Job, error)
	ListByStatus(ctx context.Context, status JobStatus) ([]Job, error)
}

// QueueStats is a point-in-time snapshot of the queue.
type QueueStats struct {
	PendingJobs             int      `json:"pending_jobs"`
	ProcessingJobs          int      `json:"processing_jobs"`
	CompletedJobs           int      `json:"completed_jobs"`
	FailedJobs              int      `json:"failed_jobs"`
	CancelledJobs           int      `json:"cancelled_jobs"`
	TotalEnqueued           int      `json:"total_enqueued"`
	OldestPendingAgeSeconds *float64 `json:"oldest_pending_job_age_seconds,omitempty"`
}
