package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"soundforge/internal/domain"
)

func seedJob(t *testing.T, s *MemoryJobStore, id string, status domain.JobStatus, createdAt time.Time) {
	t.Helper()
	err := s.CreateRecord(context.Background(), &domain.Job{
		ID:        id,
		Request:   domain.GenerationRequest{Prompt: "p-" + id, Duration: 4, Temperature: 1, Model: domain.DefaultModel},
		Status:    status,
		Step:      domain.JobStepQueued,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("CreateRecord(%s) error: %v", id, err)
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	seedJob(t, s, "a", domain.JobStatusPending, time.Now())

	if err := s.CreateRecord(ctx, &domain.Job{ID: "a"}); !errors.Is(err, domain.ErrDuplicateJob) {
		t.Fatalf("duplicate CreateRecord = %v, want ErrDuplicateJob", err)
	}

	job, err := s.GetRecord(ctx, "a")
	if err != nil {
		t.Fatalf("GetRecord error: %v", err)
	}
	// Returned jobs are copies; mutating them must not affect the store.
	job.Status = domain.JobStatusFailed
	again, _ := s.GetRecord(ctx, "a")
	if again.Status != domain.JobStatusPending {
		t.Fatal("GetRecord must return a copy")
	}

	if _, err := s.GetRecord(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRecord(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateStatus(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	seedJob(t, s, "a", domain.JobStatusPending, time.Now())

	msg := "boom"
	if err := s.UpdateStatus(ctx, "a", domain.JobStatusFailed, domain.JobStepFailed, &msg); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	job, _ := s.GetRecord(ctx, "a")
	if job.Status != domain.JobStatusFailed || job.ErrorMessage != "boom" {
		t.Fatalf("job = %s/%q", job.Status, job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Fatal("terminal update must stamp completed_at")
	}

	// Terminal guard: further updates are no-ops.
	if err := s.UpdateStatus(ctx, "a", domain.JobStatusProcessing, domain.JobStepExecuting, nil); err != nil {
		t.Fatalf("UpdateStatus on terminal error: %v", err)
	}
	job, _ = s.GetRecord(ctx, "a")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("terminal job mutated to %s", job.Status)
	}

	if err := s.UpdateStatus(ctx, "missing", domain.JobStatusPending, domain.JobStepQueued, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateStatus(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryRequeueRecord(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	seedJob(t, s, "a", domain.JobStatusPending, time.Now())

	// The persisted retry count follows the caller exactly; it is never
	// inferred from status transitions.
	_ = s.UpdateStatus(ctx, "a", domain.JobStatusProcessing, domain.JobStepExecuting, nil)
	if err := s.RequeueRecord(ctx, "a", 1); err != nil {
		t.Fatalf("RequeueRecord error: %v", err)
	}
	_ = s.UpdateStatus(ctx, "a", domain.JobStatusProcessing, domain.JobStepExecuting, nil)
	if err := s.RequeueRecord(ctx, "a", 2); err != nil {
		t.Fatalf("RequeueRecord error: %v", err)
	}

	job, _ := s.GetRecord(ctx, "a")
	if job.Status != domain.JobStatusPending || job.Step != domain.JobStepQueued {
		t.Fatalf("job = %s/%s, want pending/queued", job.Status, job.Step)
	}
	if job.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", job.RetryCount)
	}

	// Resetting down works the same way.
	if err := s.RequeueRecord(ctx, "a", 0); err != nil {
		t.Fatalf("RequeueRecord error: %v", err)
	}
	job, _ = s.GetRecord(ctx, "a")
	if job.RetryCount != 0 {
		t.Fatalf("retry count after reset = %d, want 0", job.RetryCount)
	}

	if err := s.RequeueRecord(ctx, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RequeueRecord(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateStatusDoesNotTouchRetryCount(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	seedJob(t, s, "a", domain.JobStatusPending, time.Now())

	_ = s.UpdateStatus(ctx, "a", domain.JobStatusProcessing, domain.JobStepExecuting, nil)
	_ = s.UpdateStatus(ctx, "a", domain.JobStatusPending, domain.JobStepQueued, nil)

	job, _ := s.GetRecord(ctx, "a")
	if job.RetryCount != 0 {
		t.Fatalf("retry count = %d, want 0 (status updates must not count retries)", job.RetryCount)
	}
}

func TestMemoryCompleteRecord(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	seedJob(t, s, "a", domain.JobStatusProcessing, time.Now())

	info := domain.ArtifactInfo{
		Path:            "a.wav",
		SizeBytes:       64044,
		DurationSeconds: 2,
		SampleRate:      32000,
		Channels:        2,
		Format:          "wav",
	}
	if err := s.CompleteRecord(ctx, "a", 2.5, info); err != nil {
		t.Fatalf("CompleteRecord error: %v", err)
	}
	job, _ := s.GetRecord(ctx, "a")
	if job.Status != domain.JobStatusCompleted || job.ArtifactPath != "a.wav" || job.ArtifactSizeBytes != 64044 {
		t.Fatalf("job = %+v", job)
	}
	if job.ArtifactDuration != 2 || job.SampleRate != 32000 || job.Channels != 2 || job.Format != "wav" {
		t.Fatalf("artifact metadata = %+v", job)
	}
	if job.GenerationSeconds != 2.5 {
		t.Fatalf("generation seconds = %v", job.GenerationSeconds)
	}
}

func TestMemoryListByStatus(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	base := time.Now()
	seedJob(t, s, "b", domain.JobStatusPending, base.Add(time.Second))
	seedJob(t, s, "a", domain.JobStatusPending, base)
	seedJob(t, s, "c", domain.JobStatusProcessing, base)

	pending, err := s.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		t.Fatalf("ListByStatus error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "a" || pending[1].ID != "b" {
		t.Fatalf("pending = %+v, want [a b] in creation order", pending)
	}
}
