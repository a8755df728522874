package audio

import (
	"context"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"soundforge/internal/storage"
	"soundforge/internal/synth"
)

func TestFinalize(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	exp := NewExporter(store, zerolog.Nop())

	art := &synth.Artifact{
		Samples:    []float64{0, 0.25, -0.25, 0.1},
		SampleRate: 4,
		Channels:   1,
	}
	info, err := exp.Finalize(context.Background(), art, "gen_abc")
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if info.Path != "gen_abc.wav" {
		t.Fatalf("path = %q, want gen_abc.wav", info.Path)
	}
	if want := int64(44 + len(art.Samples)*2); info.SizeBytes != want {
		t.Fatalf("size = %d, want %d", info.SizeBytes, want)
	}
	if info.DurationSeconds != 1 || info.SampleRate != 4 || info.Channels != 1 || info.Format != "wav" {
		t.Fatalf("artifact info = %+v", info)
	}

	data, err := store.Read(context.Background(), info.Path)
	if err != nil {
		t.Fatalf("stored artifact not readable: %v", err)
	}
	if int64(len(data)) != info.SizeBytes {
		t.Fatalf("stored size = %d, want %d", len(data), info.SizeBytes)
	}
}

func TestFinalizeEmptyArtifact(t *testing.T) {
	store, _ := storage.NewFileStore(t.TempDir())
	exp := NewExporter(store, zerolog.Nop())

	if _, err := exp.Finalize(context.Background(), nil, "gen_abc"); err == nil {
		t.Fatal("expected error for nil artifact")
	}
	if _, err := exp.Finalize(context.Background(), &synth.Artifact{}, "gen_abc"); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}

func TestNormalizePeak(t *testing.T) {
	out := normalizePeak([]float64{0.1, -0.2, 0.05}, 0.891)
	if got := peak(out); math.Abs(got-0.891) > 1e-9 {
		t.Fatalf("peak after normalization = %v, want 0.891", got)
	}

	// Relative levels are preserved.
	if math.Abs(out[0]/out[1]+0.5) > 1e-9 {
		t.Fatalf("ratio distorted: %v / %v", out[0], out[1])
	}

	silent := []float64{0, 0, 0}
	if got := normalizePeak(silent, 0.891); got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Fatal("silence must pass through unchanged")
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"rainy jazz cafe", "Rainy Jazz Cafe"},
		{"lofi beats", "Lofi Beats"},
	}
	for _, tc := range tests {
		if got := DisplayTitle(tc.prompt); got != tc.want {
			t.Errorf("DisplayTitle(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}

	long := DisplayTitle("a very long prompt that keeps going and going and going well past the tag limit")
	if got := len([]rune(long)); got != maxTitleLength {
		t.Fatalf("long title length = %d runes, want %d", got, maxTitleLength)
	}

	// Truncation never splits a multi-byte rune.
	wide := DisplayTitle(strings.Repeat("日本語のプロンプト", 10))
	if got := len([]rune(wide)); got != maxTitleLength {
		t.Fatalf("wide title length = %d runes, want %d", got, maxTitleLength)
	}
	if !utf8.ValidString(wide) {
		t.Fatalf("truncated title is not valid UTF-8: %q", wide)
	}
}

func TestExtractMetadata(t *testing.T) {
	art := &synth.Artifact{
		Samples:    []float64{0, 0.5, -0.25, 0},
		SampleRate: 4,
		Channels:   1,
	}
	meta := ExtractMetadata(art, 2048)
	if meta.Duration != 1 {
		t.Fatalf("duration = %v, want 1", meta.Duration)
	}
	if meta.SampleRate != 4 || meta.Channels != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.PeakLevel != 0.5 {
		t.Fatalf("peak = %v, want 0.5", meta.PeakLevel)
	}
	if meta.Format != "wav" || meta.FileSizeBytes != 2048 {
		t.Fatalf("meta = %+v", meta)
	}
}
