package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Request limits enforced at the transport edge. The orchestrator itself
// treats the request as opaque input to the engine.
const (
	MinPromptLength = 3
	MaxPromptLength = 500
	MinDuration     = 1.0
	MaxDuration     = 30.0
	MinTemperature  = 0.1
	MaxTemperature  = 2.0

	DefaultDuration    = 16.0
	DefaultTemperature = 1.0
	DefaultModel       = "wavegen-small"
)

// GenerationRequest describes the work for one job: a text prompt plus
// synthesis parameters. Immutable once submitted.
type GenerationRequest struct {
	Prompt      string  `json:"prompt"`
	Duration    float64 `json:"duration"`
	Temperature float64 `json:"temperature"`
	Model       string  `json:"model"`
}

// Validate normalizes the request in place and reports the first
// constraint violation.
func (r *GenerationRequest) Validate() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if len(r.Prompt) < MinPromptLength {
		return fmt.Errorf("prompt must be at least %d characters", MinPromptLength)
	}
	if len(r.Prompt) > MaxPromptLength {
		return fmt.Errorf("prompt must be at most %d characters", MaxPromptLength)
	}
	if r.Duration == 0 {
		r.Duration = DefaultDuration
	}
	if r.Duration < MinDuration || r.Duration > MaxDuration {
		return errors.New("duration must be between 1 and 30 seconds")
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return errors.New("temperature must be between 0.1 and 2.0")
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
	return nil
}
