package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"soundforge/internal/domain"
)

// SQLExecutor is the contract the repository needs from a pgx pool. The
// indirection keeps the repository testable against stubs.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// JobRepositoryPG implements domain.JobStore on PostgreSQL. Terminal
// statuses are guarded in SQL so a stale writer can never overwrite a
// finished job.
type JobRepositoryPG struct {
	db SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id                  TEXT PRIMARY KEY,
    prompt              TEXT NOT NULL,
    duration            DOUBLE PRECISION NOT NULL,
    temperature         DOUBLE PRECISION NOT NULL,
    model               TEXT NOT NULL,
    status              TEXT NOT NULL,
    step                TEXT NOT NULL,
    retry_count         INTEGER NOT NULL DEFAULT 0,
    error_message       TEXT NOT NULL DEFAULT '',
    artifact_path       TEXT NOT NULL DEFAULT '',
    artifact_size_bytes BIGINT NOT NULL DEFAULT 0,
    artifact_duration   DOUBLE PRECISION NOT NULL DEFAULT 0,
    sample_rate         INTEGER NOT NULL DEFAULT 0,
    channels            INTEGER NOT NULL DEFAULT 0,
    format              TEXT NOT NULL DEFAULT '',
    generation_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    enqueued_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_status_created_idx ON jobs (status, created_at);
`

// EnsureSchema creates the jobs table when it does not exist yet.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// CreateRecord inserts a new job record.
func (r *JobRepositoryPG) CreateRecord(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, prompt, duration, temperature, model, status, step, retry_count, created_at, enqueued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.Request.Prompt,
		job.Request.Duration,
		job.Request.Temperature,
		job.Request.Model,
		job.Status,
		job.Step,
		job.RetryCount,
		job.CreatedAt,
		job.EnqueuedAt,
	)
	return err
}

// UpdateStatus updates job status, step and optionally the error message.
// Terminal records are left untouched, and completed_at is stamped when
// the new status is itself terminal.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, step domain.JobStep, errMsg *string) error {
	query := `
UPDATE jobs
SET status = $2,
    step = $3,
    error_message = COALESCE($4, error_message),
    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	_, err := r.db.Exec(ctx, query, jobID, status, step, errMsg)
	return err
}

// RequeueRecord puts a job back in line with an explicit retry count; the
// persisted count always follows the queue entry rather than being
// inferred from status transitions.
func (r *JobRepositoryPG) RequeueRecord(ctx context.Context, jobID string, retryCount int) error {
	query := `
UPDATE jobs
SET status = 'pending',
    step = 'queued',
    retry_count = $2
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	_, err := r.db.Exec(ctx, query, jobID, retryCount)
	return err
}

// CompleteRecord marks a job completed together with its artifact facts.
func (r *JobRepositoryPG) CompleteRecord(ctx context.Context, jobID string, elapsedSeconds float64, info domain.ArtifactInfo) error {
	query := `
UPDATE jobs
SET status = 'completed',
    step = 'completed',
    generation_seconds = $2,
    artifact_path = $3,
    artifact_size_bytes = $4,
    artifact_duration = $5,
    sample_rate = $6,
    channels = $7,
    format = $8,
    completed_at = NOW()
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	_, err := r.db.Exec(ctx, query, jobID, elapsedSeconds,
		info.Path, info.SizeBytes, info.DurationSeconds, info.SampleRate, info.Channels, info.Format)
	return err
}

// GetRecord fetches a job by its identifier.
func (r *JobRepositoryPG) GetRecord(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, prompt, duration, temperature, model, status, step, retry_count,
       error_message, artifact_path, artifact_size_bytes, artifact_duration,
       sample_rate, channels, format, generation_seconds,
       created_at, enqueued_at, completed_at
FROM jobs
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByStatus returns all jobs with the given status in creation order.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	query := `
SELECT id, prompt, duration, temperature, model, status, step, retry_count,
       error_message, artifact_path, artifact_size_bytes, artifact_duration,
       sample_rate, channels, format, generation_seconds,
       created_at, enqueued_at, completed_at
FROM jobs
WHERE status = $1
ORDER BY created_at ASC;
`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Request.Prompt,
		&job.Request.Duration,
		&job.Request.Temperature,
		&job.Request.Model,
		&job.Status,
		&job.Step,
		&job.RetryCount,
		&job.ErrorMessage,
		&job.ArtifactPath,
		&job.ArtifactSizeBytes,
		&job.ArtifactDuration,
		&job.SampleRate,
		&job.Channels,
		&job.Format,
		&job.GenerationSeconds,
		&job.CreatedAt,
		&job.EnqueuedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
