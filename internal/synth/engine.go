// Package synth renders audio for generation requests. The engine is the
// opaque long-running routine the orchestrator drives; it knows nothing
// about queues or retries.
package synth

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"soundforge/internal/domain"
)

// ErrInvalidRequest marks requests the engine can never render. Unlike
// transient generation errors, these are not worth retrying.
var ErrInvalidRequest = errors.New("synth: invalid request")

// Artifact is the raw rendered audio before finalization: interleaved
// float samples in [-1, 1].
type Artifact struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Duration returns the rendered length in seconds.
func (a *Artifact) Duration() float64 {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate*a.Channels)
}

// Engine turns a generation request into an audio artifact. Execute may
// block for a long time; any error is surfaced to the orchestrator's
// retry machinery.
type Engine interface {
	Execute(ctx context.Context, req domain.GenerationRequest) (*Artifact, error)
}

// WaveEngine is a deterministic additive synthesizer: the prompt seeds a
// small bank of oscillators whose mix is perturbed by temperature-scaled
// noise. The same request always renders the same audio.
type WaveEngine struct {
	sampleRate int
	channels   int
}

const (
	defaultSampleRate = 32000
	defaultChannels   = 2

	oscillatorCount = 4
	// Render is chunked so a cancelled context is noticed between chunks.
	chunkFrames = 8192
)

// NewWaveEngine constructs an engine. Zero values select 32 kHz stereo.
func NewWaveEngine(sampleRate, channels int) *WaveEngine {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = defaultChannels
	}
	return &WaveEngine{sampleRate: sampleRate, channels: channels}
}

// SampleRate returns the engine's output rate in Hz.
func (e *WaveEngine) SampleRate() int { return e.sampleRate }

// Execute renders the request into PCM samples.
func (e *WaveEngine) Execute(ctx context.Context, req domain.GenerationRequest) (*Artifact, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidRequest)
	}
	if req.Duration < domain.MinDuration || req.Duration > domain.MaxDuration {
		return nil, fmt.Errorf("%w: duration %.1fs out of range", ErrInvalidRequest, req.Duration)
	}

	seed := promptSeed(req.Prompt, req.Model)
	rng := rand.New(rand.NewPCG(seed, seed>>7|1))

	freqs := make([]float64, oscillatorCount)
	gains := make([]float64, oscillatorCount)
	for i := range freqs {
		// Pitches drawn from two octaves above A2.
		freqs[i] = 110.0 * math.Pow(2, rng.Float64()*2)
		gains[i] = 0.4 + 0.6*rng.Float64()
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = domain.DefaultTemperature
	}
	noiseGain := 0.05 * temperature

	frames := int(req.Duration * float64(e.sampleRate))
	samples := make([]float64, 0, frames*e.channels)

	for start := 0; start < frames; start += chunkFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunkFrames
		if end > frames {
			end = frames
		}
		for f := start; f < end; f++ {
			t := float64(f) / float64(e.sampleRate)
			env := envelope(t, req.Duration)
			var v float64
			for i := range freqs {
				v += gains[i] * math.Sin(2*math.Pi*freqs[i]*t)
			}
			v = v/float64(oscillatorCount)*env + noiseGain*(2*rng.Float64()-1)
			for c := 0; c < e.channels; c++ {
				samples = append(samples, clamp(v))
			}
		}
	}

	return &Artifact{
		Samples:    samples,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}, nil
}

// envelope applies a 50 ms attack and 250 ms release so renders do not
// click at the edges.
func envelope(t, duration float64) float64 {
	const attack, release = 0.05, 0.25
	switch {
	case t < attack:
		return t / attack
	case t > duration-release:
		return math.Max(0, (duration-t)/release)
	default:
		return 1
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func promptSeed(prompt, model string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return h.Sum64()
}
