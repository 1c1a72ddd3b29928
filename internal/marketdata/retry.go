package marketdata

import (
	"time"
)

// RetryPolicy retries a single fallible operation with exponential backoff.
// Retries are local to the wrapped call; they never restart an enclosing
// rebalance.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64

	// Retryable classifies errors; nil means every error is retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy mirrors the provider defaults: 3 attempts, 1s initial
// delay, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

// Do runs fn until it succeeds, the error is not retryable, or attempts are
// exhausted. The last error is returned.
func (p RetryPolicy) Do(fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * p.BackoffFactor)
		}
	}
	return err
}
