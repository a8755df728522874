package generation

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range tests {
		if got := retryDelay(time.Second, tc.retryCount); got != tc.want {
			t.Errorf("retryDelay(1s, %d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func TestRetryDelayShiftCap(t *testing.T) {
	got := retryDelay(time.Millisecond, 100)
	want := retryDelay(time.Millisecond, maxBackoffShift)
	if got != want {
		t.Fatalf("retryDelay(1ms, 100) = %v, want capped %v", got, want)
	}
	if got <= 0 {
		t.Fatalf("capped delay overflowed: %v", got)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		o          outcome
		retryCount int
		max        int
		want       bool
	}{
		{"retryable under limit", outcomeRetryable, 0, 3, true},
		{"retryable at last attempt", outcomeRetryable, 2, 3, true},
		{"retryable at limit", outcomeRetryable, 3, 3, false},
		{"fatal never retries", outcomeFatal, 0, 3, false},
		{"interrupted never retries", outcomeInterrupted, 0, 3, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldRetry(tc.o, tc.retryCount, tc.max); got != tc.want {
				t.Fatalf("shouldRetry(%v, %d, %d) = %v, want %v", tc.o, tc.retryCount, tc.max, got, tc.want)
			}
		})
	}
}
