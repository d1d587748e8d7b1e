package combinator

import (
	"sync/atomic"
	"time"

	"github.com/on-the-ground/saga_ive_go/saga"
)

// Debounce runs handler for a matching event once interval has passed
// without a newer matching event. An interval of zero or less runs handler
// for every event.
func Debounce[S, E any](pred saga.Predicate[E], interval time.Duration, handler Handler[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindDebounce, func(s *saga.Saga[S, E]) (struct{}, error) {
		var (
			generation atomic.Uint64
			pending    *saga.Handle
		)
		defer func() {
			if pending != nil {
				pending.Cancel()
			}
		}()
		for {
			ev, err := s.Take(pred)
			if err != nil {
				return struct{}{}, err
			}
			if interval <= 0 {
				if _, err := s.Fork(bind(handler, ev)); err != nil {
					return struct{}{}, err
				}
				continue
			}
			mine := generation.Add(1)
			pending, err = s.Fork(func(s *saga.Saga[S, E]) error {
				if err := s.Sleep(interval); err != nil {
					return err
				}
				if generation.Load() != mine {
					return nil
				}
				return handler(s, ev)
			})
			if err != nil {
				return struct{}{}, err
			}
		}
	})
}

// Throttle runs handler for a matching event and ignores matching events for
// the following interval. An interval of zero or less runs handler for
// every event.
func Throttle[S, E any](pred saga.Predicate[E], interval time.Duration, handler Handler[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindThrottle, func(s *saga.Saga[S, E]) (struct{}, error) {
		var (
			busy  atomic.Bool
			timer *saga.Handle
		)
		defer func() {
			if timer != nil {
				timer.Cancel()
			}
		}()
		for {
			ev, err := s.Take(pred)
			if err != nil {
				return struct{}{}, err
			}
			if interval > 0 && !busy.CompareAndSwap(false, true) {
				continue
			}
			if _, err := s.Fork(bind(handler, ev)); err != nil {
				return struct{}{}, err
			}
			if interval <= 0 {
				continue
			}
			timer, err = s.Fork(func(s *saga.Saga[S, E]) error {
				defer busy.Store(false)
				return s.Sleep(interval)
			})
			if err != nil {
				return struct{}{}, err
			}
		}
	})
}

// Delay performs eff after d.
func Delay[S, E, R any](d time.Duration, eff saga.Effect[S, E, R]) saga.Effect[S, E, R] {
	return saga.Compose(saga.KindDelay, func(s *saga.Saga[S, E]) (R, error) {
		if err := s.Sleep(d); err != nil {
			var zero R
			return zero, err
		}
		return saga.Perform(s, eff)
	})
}
