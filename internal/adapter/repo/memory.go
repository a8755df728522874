package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"soundforge/internal/domain"
)

// MemoryJobStore is a map-backed domain.JobStore for deployments without
// a database and for tests. Semantics mirror JobRepositoryPG, including
// the terminal-status guard.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryJobStore constructs an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryJobStore) CreateRecord(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrDuplicateJob
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, step domain.JobStep, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	job.Step = step
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if status.Terminal() {
		t := time.Now()
		job.CompletedAt = &t
	}
	return nil
}

// RequeueRecord puts a job back in line with an explicit retry count; the
// persisted count always follows the queue entry rather than being
// inferred from status transitions.
func (s *MemoryJobStore) RequeueRecord(_ context.Context, jobID string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusPending
	job.Step = domain.JobStepQueued
	job.RetryCount = retryCount
	return nil
}

func (s *MemoryJobStore) CompleteRecord(_ context.Context, jobID string, elapsedSeconds float64, info domain.ArtifactInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusCompleted
	job.Step = domain.JobStepCompleted
	job.GenerationSeconds = elapsedSeconds
	job.ArtifactPath = info.Path
	job.ArtifactSizeBytes = info.SizeBytes
	job.ArtifactDuration = info.DurationSeconds
	job.SampleRate = info.SampleRate
	job.Channels = info.Channels
	job.Format = info.Format
	t := time.Now()
	job.CompletedAt = &t
	return nil
}

func (s *MemoryJobStore) GetRecord(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) ListByStatus(_ context.Context, status domain.JobStatus) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []domain.Job
	for _, job := range s.jobs {
		if job.Status == status {
			jobs = append(jobs, *job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
