package helper

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrMaxAttempts = errors.New("max attempts reached")

// Retry calls fn until it succeeds, returns an error retryable rejects, or
// maxAttempts calls have failed. attempt starts at 1. A nil retryable
// retries every error.
func Retry(maxAttempts int, retryable func(error) bool, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %d, %w", ErrMaxAttempts, maxAttempts, err)
}

// Backoff is an exponential delay schedule.
type Backoff struct {
	Initial time.Duration
	// Max caps every delay. Zero means uncapped.
	Max time.Duration
	// Factor below 1 is treated as 1, i.e. a constant delay.
	Factor float64
}

// Delay is the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Initial <= 0 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
