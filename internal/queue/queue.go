// Package queue holds the in-memory FIFO of jobs waiting for a worker,
// plus the set of jobs currently being processed. It is the single
// authority on queue order and on which jobs are in flight; durable job
// state lives in the domain.JobStore mirror.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"soundforge/internal/domain"
)

// Entry is one queued unit of work. CreatedAt is the job's original
// submission time; EnqueuedAt is when this entry joined the queue, which
// differs for retried jobs (they rejoin at the tail with a fresh time).
type Entry struct {
	JobID      string
	Request    domain.GenerationRequest
	RetryCount int
	CreatedAt  time.Time
	EnqueuedAt time.Time
}

// BatchEntry is the input to EnqueueBatch.
type BatchEntry struct {
	JobID   string
	Request domain.GenerationRequest
}

// Manager is a mutex-protected FIFO queue with lifetime counters. The
// lock is held only for in-memory list work, never across store I/O.
type Manager struct {
	mu       sync.Mutex
	pending  []*Entry
	inflight map[string]*Entry

	totalEnqueued  int
	totalCompleted int
	totalFailed    int
	totalCancelled int

	logger zerolog.Logger
	now    func() time.Time
}

// NewManager constructs an empty queue.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		inflight: make(map[string]*Entry),
		logger:   logger.With().Str("component", "queue").Logger(),
		now:      time.Now,
	}
}

// Enqueue appends a new entry at the tail. It fails only when the id is
// already pending or in flight, which is a caller error.
func (m *Manager) Enqueue(jobID string, req domain.GenerationRequest, retryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containsLocked(jobID) {
		return fmt.Errorf("enqueue %s: %w", jobID, domain.ErrDuplicateJob)
	}

	now := m.now()
	m.pending = append(m.pending, &Entry{
		JobID:      jobID,
		Request:    req,
		RetryCount: retryCount,
		CreatedAt:  now,
		EnqueuedAt: now,
	})
	m.totalEnqueued++

	m.logger.Info().
		Str("job_id", jobID).
		Int("queue_length", len(m.pending)).
		Int("retry_count", retryCount).
		Msg("job enqueued")
	return nil
}

// EnqueueBatch appends the entries in order. Either all entries join the
// queue or, when any id collides, none do.
func (m *Manager) EnqueueBatch(entries []BatchEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.JobID]; dup {
			return fmt.Errorf("enqueue batch %s: %w", e.JobID, domain.ErrDuplicateJob)
		}
		if m.containsLocked(e.JobID) {
			return fmt.Errorf("enqueue batch %s: %w", e.JobID, domain.ErrDuplicateJob)
		}
		seen[e.JobID] = struct{}{}
	}

	now := m.now()
	for _, e := range entries {
		m.pending = append(m.pending, &Entry{
			JobID:      e.JobID,
			Request:    e.Request,
			CreatedAt:  now,
			EnqueuedAt: now,
		})
		m.totalEnqueued++
	}

	m.logger.Info().
		Int("batch_size", len(entries)).
		Int("queue_length", len(m.pending)).
		Msg("batch enqueued")
	return nil
}

// Dequeue removes and returns the head entry, marking it in flight.
// It returns false when the queue is empty.
func (m *Manager) Dequeue() (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, false
	}

	e := m.pending[0]
	m.pending = m.pending[1:]
	m.inflight[e.JobID] = e

	m.logger.Info().
		Str("job_id", e.JobID).
		Int("queue_length", len(m.pending)).
		Msg("job dequeued")
	return e, true
}

// CompleteCurrent clears the in-flight marker for jobID and counts the
// completion. Stale ids are logged and ignored.
func (m *Manager) CompleteCurrent(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[jobID]; !ok {
		m.logger.Warn().Str("job_id", jobID).Msg("complete for job not in flight")
		return
	}
	delete(m.inflight, jobID)
	m.totalCompleted++
	m.logger.Info().Str("job_id", jobID).Msg("job completed")
}

// FailCurrent clears the in-flight marker for jobID and counts the
// failure. Stale ids are logged and ignored.
func (m *Manager) FailCurrent(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[jobID]; !ok {
		m.logger.Warn().Str("job_id", jobID).Msg("fail for job not in flight")
		return
	}
	delete(m.inflight, jobID)
	m.totalFailed++
	m.logger.Info().Str("job_id", jobID).Msg("job failed")
}

// Cancel removes a pending job from the queue. It returns false for jobs
// that are in flight (processing jobs cannot be cancelled) and for
// unknown ids.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, processing := m.inflight[jobID]; processing {
		m.logger.Warn().Str("job_id", jobID).Msg("cannot cancel job: currently processing")
		return false
	}

	for i, e := range m.pending {
		if e.JobID == jobID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.totalCancelled++
			m.logger.Info().Str("job_id", jobID).Msg("job cancelled")
			return true
		}
	}

	m.logger.Warn().Str("job_id", jobID).Msg("job not found in queue")
	return false
}

// PositionOf returns 0 for in-flight jobs and the 1-based offset from the
// head for pending jobs. The second return is false when the id is not
// tracked by the queue.
func (m *Manager) PositionOf(jobID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[jobID]; ok {
		return 0, true
	}
	for i, e := range m.pending {
		if e.JobID == jobID {
			return i + 1, true
		}
	}
	return 0, false
}

// Len returns the number of pending entries, excluding in-flight jobs.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stats returns a snapshot of queue counters.
func (m *Manager) Stats() domain.QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.QueueStats{
		PendingJobs:    len(m.pending),
		ProcessingJobs: len(m.inflight),
		CompletedJobs:  m.totalCompleted,
		FailedJobs:     m.totalFailed,
		CancelledJobs:  m.totalCancelled,
		TotalEnqueued:  m.totalEnqueued,
	}
	if len(m.pending) > 0 {
		age := m.now().Sub(m.pending[0].EnqueuedAt).Seconds()
		stats.OldestPendingAgeSeconds = &age
	}
	return stats
}

// LoadFromStore rebuilds the queue from the durable mirror after a
// restart. Pending records rejoin the queue in their original creation
// order. Processing records mean the previous run died mid-job; they are
// rewritten as failed rather than resumed, because there is no way to
// know how far the crashed attempt progressed. Returns the number of
// pending jobs recovered.
func (m *Manager) LoadFromStore(ctx context.Context, store domain.JobStore) (int, error) {
	pending, err := store.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}

	interrupted, err := store.ListByStatus(ctx, domain.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}
	for _, job := range interrupted {
		msg := "interrupted by restart"
		if err := store.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, domain.JobStepFailed, &msg); err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark interrupted job")
			continue
		}
		m.logger.Warn().Str("job_id", job.ID).Msg("marked interrupted job as failed")
	}

	// Recovered jobs restart their retry budget. Reset the persisted count
	// so the mirror matches the fresh queue entry.
	for _, job := range pending {
		if job.RetryCount == 0 {
			continue
		}
		if err := store.RequeueRecord(ctx, job.ID, 0); err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to reset retry count")
		}
	}

	now := m.now()
	m.mu.Lock()
	loaded := 0
	for _, job := range pending {
		if m.containsLocked(job.ID) {
			continue
		}
		m.pending = append(m.pending, &Entry{
			JobID:      job.ID,
			Request:    job.Request,
			CreatedAt:  job.CreatedAt,
			EnqueuedAt: now,
		})
		m.totalEnqueued++
		loaded++
	}
	m.mu.Unlock()

	m.logger.Info().
		Int("loaded", loaded).
		Int("interrupted", len(interrupted)).
		Msg("queue recovery complete")
	return loaded, nil
}

// Shutdown logs the final queue state. Pending work is not persisted
// here; the jobs are already mirrored in the store and recovery happens
// on the next startup.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info().
		Int("pending", len(m.pending)).
		Int("in_flight", len(m.inflight)).
		Msg("queue shutting down")
}

func (m *Manager) containsLocked(jobID string) bool {
	if _, ok := m.inflight[jobID]; ok {
		return true
	}
	for _, e := range m.pending {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}
