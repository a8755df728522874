package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobStep is the fine-grained progress marker within a job's pipeline,
// tracked independently of JobStatus.
type JobStep string

const (
	JobStepQueued     JobStep = "queued"
	JobStepPreparing  JobStep = "preparing"
	JobStepExecuting  JobStep = "executing"
	JobStepFinalizing JobStep = "finalizing"
	JobStepCompleted  JobStep = "completed"
	JobStepFailed     JobStep = "failed"
)

// ArtifactInfo captures the facts of a finalized artifact, recorded at
// save time.
type ArtifactInfo struct {
	Path            string
	SizeBytes       int64
	DurationSeconds float64
	SampleRate      int
	Channels        int
	Format          string
}

// Job encapsulates the lifecycle of one generation request. The ID is
// assigned at submission and never reused; a terminal status is never
// overwritten.
type Job struct {
	ID                string
	Request           GenerationRequest
	Status            JobStatus
	Step              JobStep
	RetryCount        int
	ErrorMessage      string
	ArtifactPath      string
	ArtifactSizeBytes int64
	ArtifactDuration  float64
	SampleRate        int
	Channels          int
	Format            string
	GenerationSeconds float64
	CreatedAt         time.Time
	EnqueuedAt        time.Time
	CompletedAt       *time.Time
}

// Clone returns a copy safe to hand to callers while the original keeps
// mutating inside the service.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
