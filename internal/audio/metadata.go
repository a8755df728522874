package audio

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"soundforge/internal/synth"
)

// Metadata describes a finalized artifact as saved.
type Metadata struct {
	Duration      float64 `json:"duration"`
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	FileSizeBytes int64   `json:"file_size_bytes"`
	FileSizeMB    float64 `json:"file_size_mb"`
	Format        string  `json:"format"`
	PeakLevel     float64 `json:"peak_level"`
}

var titleCaser = cases.Title(language.English)

// ExtractMetadata computes save-time metadata for an encoded artifact.
func ExtractMetadata(art *synth.Artifact, sizeBytes int64) Metadata {
	return Metadata{
		Duration:      art.Duration(),
		SampleRate:    art.SampleRate,
		Channels:      art.Channels,
		FileSizeBytes: sizeBytes,
		FileSizeMB:    float64(sizeBytes) / (1024 * 1024),
		Format:        "wav",
		PeakLevel:     peak(art.Samples),
	}
}

const maxTitleLength = 60

// DisplayTitle derives a human-facing artifact title from the prompt.
// Truncation is rune-aware so multi-byte prompts are never split mid-rune.
func DisplayTitle(prompt string) string {
	title := titleCaser.String(prompt)
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title
}

func peak(samples []float64) float64 {
	var p float64
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}
