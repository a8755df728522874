// Package audio finalizes rendered artifacts: peak normalization, WAV
// framing, persistence to the artifact store, and metadata extraction.
package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"soundforge/internal/domain"
	"soundforge/internal/storage"
	"soundforge/internal/synth"
)

// defaultTargetPeak leaves 1 dB of headroom below full scale.
const defaultTargetPeak = 0.891 // -1 dBFS

// Exporter writes finalized WAV artifacts into a FileStore.
type Exporter struct {
	store      *storage.FileStore
	targetPeak float64
	logger     zerolog.Logger
}

// NewExporter constructs an exporter targeting the default peak level.
func NewExporter(store *storage.FileStore, logger zerolog.Logger) *Exporter {
	return &Exporter{
		store:      store,
		targetPeak: defaultTargetPeak,
		logger:     logger.With().Str("component", "exporter").Logger(),
	}
}

// Finalize normalizes the artifact, encodes it as WAV and persists it
// under "<jobID>.wav". It returns the save-time artifact facts.
func (e *Exporter) Finalize(ctx context.Context, art *synth.Artifact, jobID string) (domain.ArtifactInfo, error) {
	if art == nil || len(art.Samples) == 0 {
		return domain.ArtifactInfo{}, errors.New("audio: empty artifact")
	}

	normalized := normalizePeak(art.Samples, e.targetPeak)
	data, err := EncodeWAV(normalized, art.SampleRate, art.Channels)
	if err != nil {
		return domain.ArtifactInfo{}, err
	}

	key := fmt.Sprintf("%s.wav", jobID)
	location, err := e.store.Write(ctx, key, data)
	if err != nil {
		return domain.ArtifactInfo{}, fmt.Errorf("audio: persist artifact: %w", err)
	}

	meta := ExtractMetadata(&synth.Artifact{
		Samples:    normalized,
		SampleRate: art.SampleRate,
		Channels:   art.Channels,
	}, int64(len(data)))

	e.logger.Info().
		Str("job_id", jobID).
		Str("location", location).
		Int64("size_bytes", meta.FileSizeBytes).
		Float64("duration", meta.Duration).
		Float64("peak_level", meta.PeakLevel).
		Msg("artifact finalized")

	return domain.ArtifactInfo{
		Path:            location,
		SizeBytes:       meta.FileSizeBytes,
		DurationSeconds: meta.Duration,
		SampleRate:      meta.SampleRate,
		Channels:        meta.Channels,
		Format:          meta.Format,
	}, nil
}

// normalizePeak rescales samples so the loudest one sits at target.
// Silent artifacts are returned untouched; there is nothing to scale.
func normalizePeak(samples []float64, target float64) []float64 {
	p := peak(samples)
	if p == 0 {
		return samples
	}
	gain := target / p
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}
