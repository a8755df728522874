package generation

import "time"

// maxBackoffShift keeps the doubling from overflowing time.Duration for
// absurd retry counts.
const maxBackoffShift = 31

// retryDelay returns the pure exponential backoff for a job that has
// already failed retryCount times: base * 2^retryCount. No jitter; the
// single-queue model has no thundering herd to spread out.
func retryDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxBackoffShift {
		retryCount = maxBackoffShift
	}
	return base * time.Duration(int64(1)<<retryCount)
}
