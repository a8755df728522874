// Package generation orchestrates jobs from submission to a terminal
// state: it owns the worker loops that drain the queue, the pipeline
// progress tracking, and the bounded exponential-backoff retry policy.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soundforge/internal/domain"
	"soundforge/internal/queue"
	"soundforge/internal/synth"
)

// Finalizer post-processes a rendered artifact: normalization, encoding
// and persistence. It returns the save-time artifact facts.
type Finalizer interface {
	Finalize(ctx context.Context, art *synth.Artifact, jobID string) (domain.ArtifactInfo, error)
}

// Config tunes the service. Zero values select the defaults.
type Config struct {
	MaxRetries     int           // retry attempts per job (default 3)
	RetryDelay     time.Duration // base backoff delay (default 1s)
	WorkerCount    int           // concurrent worker loops (default 1)
	PollInterval   time.Duration // idle sleep between dequeue attempts (default 2s)
	RealTimeFactor float64       // estimated seconds of wall time per second of audio (default 1.2)
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RealTimeFactor <= 0 {
		c.RealTimeFactor = 1.2
	}
}

// SubmitReceipt is returned to callers after a job is accepted.
type SubmitReceipt struct {
	JobID            string           `json:"job_id"`
	Status           domain.JobStatus `json:"status"`
	Step             domain.JobStep   `json:"current_step"`
	EstimatedSeconds float64          `json:"estimated_time_seconds"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Service drives jobs through the generation pipeline. The durable store
// is the source of truth for finished jobs; the in-process cache is a
// write-through mirror so status reads do not hit the store for live
// jobs.
type Service struct {
	cfg       Config
	engine    synth.Engine
	finalizer Finalizer
	store     domain.JobStore
	queue     *queue.Manager
	logger    zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*domain.Job

	now func() time.Time
}

// NewService wires the orchestrator. All collaborators are injected;
// there is no ambient global state.
func NewService(cfg Config, engine synth.Engine, finalizer Finalizer, store domain.JobStore, q *queue.Manager, logger zerolog.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:       cfg,
		engine:    engine,
		finalizer: finalizer,
		store:     store,
		queue:     q,
		logger:    logger.With().Str("component", "generation").Logger(),
		jobs:      make(map[string]*domain.Job),
		now:       time.Now,
	}
}

// Recover rebuilds the queue from the store. Intended to run once before
// submissions are accepted; it is the sole crash-recovery mechanism.
func (s *Service) Recover(ctx context.Context) (int, error) {
	return s.queue.LoadFromStore(ctx, s.store)
}

// SubmitJob validates nothing beyond what the transport already checked,
// creates and persists the record, and enqueues the job.
func (s *Service) SubmitJob(ctx context.Context, req domain.GenerationRequest) (*SubmitReceipt, error) {
	jobID := newJobID()
	job := s.newJob(jobID, req)

	s.cacheJob(job)
	if err := s.store.CreateRecord(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to create job record")
	}

	if err := s.queue.Enqueue(jobID, req, 0); err != nil {
		s.dropJob(jobID)
		return nil, err
	}

	s.logger.Info().Str("job_id", jobID).Str("prompt", truncate(req.Prompt, 50)).Msg("job submitted")
	return s.receiptFor(job), nil
}

// SubmitBatch enqueues all requests atomically: if any entry collides,
// no job is created.
func (s *Service) SubmitBatch(ctx context.Context, reqs []domain.GenerationRequest) ([]SubmitReceipt, error) {
	entries := make([]queue.BatchEntry, len(reqs))
	jobs := make([]*domain.Job, len(reqs))
	for i, req := range reqs {
		jobID := newJobID()
		entries[i] = queue.BatchEntry{JobID: jobID, Request: req}
		jobs[i] = s.newJob(jobID, req)
	}

	if err := s.queue.EnqueueBatch(entries); err != nil {
		return nil, err
	}

	receipts := make([]SubmitReceipt, len(jobs))
	for i, job := range jobs {
		s.cacheJob(job)
		if err := s.store.CreateRecord(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to create job record")
		}
		receipts[i] = *s.receiptFor(job)
	}

	s.logger.Info().Int("batch_size", len(jobs)).Msg("batch submitted")
	return receipts, nil
}

// GetStatus reads the write-through cache first and falls back to the
// durable store for jobs from previous runs.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	if ok {
		// Clone under the lock; workers mutate the cached job concurrently.
		clone := job.Clone()
		s.mu.RUnlock()
		return clone, nil
	}
	s.mu.RUnlock()

	stored, err := s.store.GetRecord(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return stored, nil
}

// CancelJob removes a pending job from the queue. Processing and
// terminal jobs cannot be cancelled and yield ErrConflict; unknown ids
// yield ErrNotFound.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	if s.queue.Cancel(jobID) {
		msg := "cancelled by user"
		s.mutateJob(jobID, func(job *domain.Job) {
			job.Status = domain.JobStatusCancelled
			job.Step = domain.JobStepFailed
			job.ErrorMessage = msg
			t := s.now()
			job.CompletedAt = &t
		})
		if err := s.store.UpdateStatus(ctx, jobID, domain.JobStatusCancelled, domain.JobStepFailed, &msg); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist cancellation")
		}
		s.logger.Info().Str("job_id", jobID).Msg("job cancelled")
		return nil
	}

	// Not cancellable; distinguish conflict from unknown for the caller.
	if _, err := s.GetStatus(ctx, jobID); err != nil {
		return domain.ErrNotFound
	}
	return fmt.Errorf("job %s cannot be cancelled: %w", jobID, domain.ErrConflict)
}

// Stats returns queue counters.
func (s *Service) Stats() domain.QueueStats {
	return s.queue.Stats()
}

// QueuePosition reports where a job sits: 0 when in flight, 1-based
// offset from the head otherwise.
func (s *Service) QueuePosition(jobID string) (int, error) {
	pos, ok := s.queue.PositionOf(jobID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	return pos, nil
}

// EstimateSeconds predicts completion time with a linear real-time-factor
// model.
func (s *Service) EstimateSeconds(req domain.GenerationRequest) float64 {
	return req.Duration * s.cfg.RealTimeFactor
}

// Run starts the worker loops and blocks until ctx is done. Each worker
// drains one job at a time: dequeue, run the full pipeline including any
// retry waits, then dequeue the next.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().
		Int("workers", s.cfg.WorkerCount).
		Int("max_retries", s.cfg.MaxRetries).
		Dur("retry_delay", s.cfg.RetryDelay).
		Msg("generation service started")

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()

	s.queue.Shutdown()
	return ctx.Err()
}

func (s *Service) workerLoop(ctx context.Context, worker int) {
	logger := s.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		default:
		}

		if !s.processNext(ctx) {
			if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
				logger.Info().Msg("worker stopped")
				return
			}
		}
	}
}

// processNext runs one job end to end. It returns false when the queue
// was empty.
func (s *Service) processNext(ctx context.Context) bool {
	entry, ok := s.queue.Dequeue()
	if !ok {
		return false
	}

	jobID := entry.JobID
	start := s.now()
	s.logger.Info().Str("job_id", jobID).Int("retry_count", entry.RetryCount).Msg("processing job")

	s.setProgress(ctx, jobID, domain.JobStatusProcessing, domain.JobStepPreparing)

	s.setProgress(ctx, jobID, domain.JobStatusProcessing, domain.JobStepExecuting)
	artifact, err := s.engine.Execute(ctx, entry.Request)
	if err != nil {
		s.handleError(ctx, entry, err)
		return true
	}

	s.setProgress(ctx, jobID, domain.JobStatusProcessing, domain.JobStepFinalizing)
	info, err := s.finalizer.Finalize(ctx, artifact, jobID)
	if err != nil {
		s.handleError(ctx, entry, err)
		return true
	}

	elapsed := s.now().Sub(start).Seconds()
	s.completeJob(ctx, entry, info, elapsed)
	s.queue.CompleteCurrent(jobID)
	return true
}

// outcome classifies a pipeline error so the retry decision is a pure
// function of the result rather than of error-type inspection scattered
// through the pipeline.
type outcome int

const (
	outcomeRetryable outcome = iota
	outcomeFatal
	outcomeInterrupted
)

func classifyOutcome(err error) outcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeInterrupted
	case errors.Is(err, synth.ErrInvalidRequest):
		return outcomeFatal
	default:
		return outcomeRetryable
	}
}

func shouldRetry(o outcome, retryCount, maxRetries int) bool {
	return o == outcomeRetryable && retryCount < maxRetries
}

func (s *Service) handleError(ctx context.Context, entry *queue.Entry, cause error) {
	jobID := entry.JobID
	o := classifyOutcome(cause)

	if o == outcomeInterrupted {
		// Shutdown mid-job. Leave the record as Processing; the next
		// startup's recovery resolves it to Failed.
		s.logger.Warn().Str("job_id", jobID).Msg("job interrupted by shutdown")
		s.queue.FailCurrent(jobID)
		return
	}

	s.logger.Error().Err(cause).Str("job_id", jobID).Msg("job processing failed")

	if shouldRetry(o, entry.RetryCount, s.cfg.MaxRetries) {
		s.retryJob(ctx, entry, cause)
		return
	}
	s.failJob(ctx, entry, cause)
}

// retryJob frees the in-flight slot, waits out the backoff and re-enqueues
// the job at the tail with an incremented retry count. The wait blocks
// this worker on purpose; the job is absent from the queue for its whole
// duration.
func (s *Service) retryJob(ctx context.Context, entry *queue.Entry, cause error) {
	jobID := entry.JobID
	delay := retryDelay(s.cfg.RetryDelay, entry.RetryCount)

	s.logger.Warn().
		Str("job_id", jobID).
		Int("attempt", entry.RetryCount+1).
		Int("max_retries", s.cfg.MaxRetries).
		Dur("delay", delay).
		Msg("job failed, will retry")

	s.queue.FailCurrent(jobID)

	// An interrupted backoff skips the remaining wait so the job is
	// re-enqueued (and therefore Pending, not stranded) before shutdown.
	if err := sleepCtx(ctx, delay); err != nil {
		s.logger.Warn().Str("job_id", jobID).Msg("backoff interrupted, re-enqueueing immediately")
	}

	if err := s.queue.Enqueue(jobID, entry.Request, entry.RetryCount+1); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to re-enqueue job")
		s.failJob(ctx, entry, cause)
		return
	}

	s.mutateJob(jobID, func(job *domain.Job) {
		job.RetryCount = entry.RetryCount + 1
		job.Status = domain.JobStatusPending
		job.Step = domain.JobStepQueued
	})
	if err := s.store.RequeueRecord(ctx, jobID, entry.RetryCount+1); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist retry state")
	}
}

func (s *Service) failJob(ctx context.Context, entry *queue.Entry, cause error) {
	jobID := entry.JobID
	msg := fmt.Sprintf("failed after %d retries: %v", entry.RetryCount, cause)

	s.logger.Error().Str("job_id", jobID).Int("retry_count", entry.RetryCount).Msg("job failed permanently")

	s.mutateJob(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Step = domain.JobStepFailed
		job.ErrorMessage = msg
		job.RetryCount = entry.RetryCount
		t := s.now()
		job.CompletedAt = &t
	})
	if err := s.store.UpdateStatus(ctx, jobID, domain.JobStatusFailed, domain.JobStepFailed, &msg); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist failure")
	}
	s.queue.FailCurrent(jobID)
}

func (s *Service) completeJob(ctx context.Context, entry *queue.Entry, info domain.ArtifactInfo, elapsed float64) {
	jobID := entry.JobID

	s.mutateJob(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Step = domain.JobStepCompleted
		job.RetryCount = entry.RetryCount
		job.ArtifactPath = info.Path
		job.ArtifactSizeBytes = info.SizeBytes
		job.ArtifactDuration = info.DurationSeconds
		job.SampleRate = info.SampleRate
		job.Channels = info.Channels
		job.Format = info.Format
		job.GenerationSeconds = elapsed
		t := s.now()
		job.CompletedAt = &t
	})
	if err := s.store.CompleteRecord(ctx, jobID, elapsed, info); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist completion")
	}

	s.logger.Info().
		Str("job_id", jobID).
		Float64("elapsed_seconds", elapsed).
		Str("location", info.Path).
		Msg("job completed")
}

// setProgress advances status and step, writing through to the store.
// Store failures are logged and never abort the pipeline.
func (s *Service) setProgress(ctx context.Context, jobID string, status domain.JobStatus, step domain.JobStep) {
	s.mutateJob(jobID, func(job *domain.Job) {
		job.Status = status
		job.Step = step
	})
	if err := s.store.UpdateStatus(ctx, jobID, status, step, nil); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist progress")
	}
}

func (s *Service) newJob(jobID string, req domain.GenerationRequest) *domain.Job {
	now := s.now()
	return &domain.Job{
		ID:         jobID,
		Request:    req,
		Status:     domain.JobStatusPending,
		Step:       domain.JobStepQueued,
		CreatedAt:  now,
		EnqueuedAt: now,
	}
}

func (s *Service) receiptFor(job *domain.Job) *SubmitReceipt {
	return &SubmitReceipt{
		JobID:            job.ID,
		Status:           job.Status,
		Step:             job.Step,
		EstimatedSeconds: s.EstimateSeconds(job.Request),
		CreatedAt:        job.CreatedAt,
	}
}

func (s *Service) cacheJob(job *domain.Job) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}

func (s *Service) dropJob(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}

// mutateJob applies fn to the cached job under the lock. Terminal jobs
// are never mutated again.
func (s *Service) mutateJob(jobID string, fn func(*domain.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	fn(job)
}

func newJobID() string {
	return "gen_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate shortens s for log fields without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
