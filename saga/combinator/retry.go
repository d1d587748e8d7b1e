package combinator

import (
	"errors"

	"github.com/on-the-ground/saga_ive_go/saga"
	"github.com/on-the-ground/saga_ive_go/shared/helper"
)

var (
	ErrNoEffects   = errors.New("no effects to race")
	ErrMaxAttempts = helper.ErrMaxAttempts
)

// Retry performs eff up to attempts times, sleeping backoff.Delay(n) after
// the n-th failure. Cancellation is never retried.
func Retry[S, E, R any](attempts int, backoff helper.Backoff, eff saga.Effect[S, E, R]) saga.Effect[S, E, R] {
	return saga.Compose(saga.KindRetry, func(s *saga.Saga[S, E]) (R, error) {
		var result R
		err := helper.Retry(attempts, retryable, func(attempt int) error {
			if attempt > 1 {
				if err := s.Sleep(backoff.Delay(attempt - 1)); err != nil {
					return err
				}
			}
			v, err := saga.Perform(s, eff)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
		return result, err
	})
}

func retryable(err error) bool {
	return !saga.IsCancellation(err)
}
