package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"soundforge/internal/audio"
	"soundforge/internal/domain"
)

// maxBatchSize caps one batch submission.
const maxBatchSize = 10

type batchRequest struct {
	Requests []domain.GenerationRequest `json:"requests"`
}

type batchResponse struct {
	JobIDs                []string `json:"job_ids"`
	TotalJobs             int      `json:"total_jobs"`
	EstimatedTotalSeconds float64  `json:"estimated_total_time_seconds"`
}

type jobResponse struct {
	JobID             string           `json:"job_id"`
	Status            domain.JobStatus `json:"status"`
	CurrentStep       domain.JobStep   `json:"current_step"`
	Prompt            string           `json:"prompt"`
	Title             string           `json:"title"`
	Model             string           `json:"model"`
	RetryCount        int              `json:"retry_count"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	FileURL           string           `json:"file_url,omitempty"`
	FileSizeBytes     int64            `json:"file_size_bytes,omitempty"`
	Duration          float64          `json:"duration,omitempty"`
	SampleRate        int              `json:"sample_rate,omitempty"`
	Channels          int              `json:"channels,omitempty"`
	Format            string           `json:"format,omitempty"`
	GenerationSeconds float64          `json:"generation_time_seconds,omitempty"`
	QueuePosition     *int             `json:"queue_position,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// Generate accepts a single generation request and queues it.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	receipt, err := a.Service.SubmitJob(r.Context(), req)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to submit job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}
	a.json(w, http.StatusAccepted, receipt)
}

// GenerateBatch accepts up to maxBatchSize requests and queues them
// atomically.
func (a *App) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Requests) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one request is required")
		return
	}
	if len(req.Requests) > maxBatchSize {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d requests per batch", maxBatchSize))
		return
	}
	for i := range req.Requests {
		if err := req.Requests[i].Validate(); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("request %d: %v", i, err))
			return
		}
	}

	receipts, err := a.Service.SubmitBatch(r.Context(), req.Requests)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to submit batch")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue batch")
		return
	}

	resp := batchResponse{TotalJobs: len(receipts)}
	for _, receipt := range receipts {
		resp.JobIDs = append(resp.JobIDs, receipt.JobID)
		resp.EstimatedTotalSeconds += receipt.EstimatedSeconds
	}
	a.json(w, http.StatusAccepted, resp)
}

// JobStatus returns the current state of one job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	job, err := a.Service.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	resp := jobResponse{
		JobID:             job.ID,
		Status:            job.Status,
		CurrentStep:       job.Step,
		Prompt:            job.Request.Prompt,
		Title:             audio.DisplayTitle(job.Request.Prompt),
		Model:             job.Request.Model,
		RetryCount:        job.RetryCount,
		ErrorMessage:      job.ErrorMessage,
		FileSizeBytes:     job.ArtifactSizeBytes,
		Duration:          job.ArtifactDuration,
		SampleRate:        job.SampleRate,
		Channels:          job.Channels,
		Format:            job.Format,
		GenerationSeconds: job.GenerationSeconds,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
	}
	if job.ArtifactPath != "" {
		resp.FileURL = "/api/v1/files/" + job.ArtifactPath
	}
	if pos, err := a.Service.QueuePosition(jobID); err == nil {
		resp.QueuePosition = &pos
	}
	a.json(w, http.StatusOK, resp)
}

// CancelJob cancels a pending job. Processing and finished jobs yield a
// conflict.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	err := a.Service.CancelJob(r.Context(), jobID)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{
			"message":      "job cancelled",
			"job_id":       jobID,
			"cancelled_at": time.Now().UTC().Format(time.RFC3339),
		})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", "job cannot be cancelled")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("failed to cancel job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
	}
}

// QueueStats returns queue counters.
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Service.Stats())
}
