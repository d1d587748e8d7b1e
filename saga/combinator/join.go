package combinator

import (
	"context"

	"github.com/on-the-ground/saga_ive_go/saga"
	"go.uber.org/multierr"
)

type outcome[R any] struct {
	index int
	value R
	err   error
}

// forkEach forks one owned sub-saga per effect. Each reports its outcome on
// the returned channel instead of failing, so nothing is reported as a
// detached failure.
func forkEach[S, E, R any](s *saga.Saga[S, E], effs []saga.Effect[S, E, R]) ([]*saga.Handle, <-chan outcome[R], error) {
	outcomes := make(chan outcome[R], len(effs))
	handles := make([]*saga.Handle, 0, len(effs))
	for i, eff := range effs {
		h, err := s.Fork(func(s *saga.Saga[S, E]) error {
			v, err := saga.Perform(s, eff)
			outcomes <- outcome[R]{index: i, value: v, err: err}
			return nil
		})
		if err != nil {
			cancelAll(handles)
			return nil, nil, err
		}
		handles = append(handles, h)
	}
	return handles, outcomes, nil
}

func cancelAll(handles []*saga.Handle) {
	for _, h := range handles {
		h.Cancel()
	}
}

func next[S, E, R any](s *saga.Saga[S, E], outcomes <-chan outcome[R]) (outcome[R], error) {
	return saga.Await(s, func(ctx context.Context) (outcome[R], error) {
		select {
		case out := <-outcomes:
			return out, nil
		case <-ctx.Done():
			return outcome[R]{}, ctx.Err()
		}
	})
}

// All performs every effect concurrently and returns their results in input
// order. On the first failure the remaining effects are cancelled and every
// failure observed is returned.
func All[S, E, R any](effs ...saga.Effect[S, E, R]) saga.Effect[S, E, []R] {
	return saga.Compose(saga.KindAll, func(s *saga.Saga[S, E]) ([]R, error) {
		results := make([]R, len(effs))
		if len(effs) == 0 {
			return results, nil
		}
		handles, outcomes, err := forkEach(s, effs)
		if err != nil {
			return nil, err
		}
		defer cancelAll(handles)

		var errs error
		for range effs {
			out, err := next(s, outcomes)
			if err != nil {
				return nil, err
			}
			if out.err != nil {
				if !saga.IsCancellation(out.err) {
					errs = multierr.Append(errs, out.err)
				}
				cancelAll(handles)
				continue
			}
			results[out.index] = out.value
		}
		if errs != nil {
			return nil, errs
		}
		return results, nil
	})
}

// Winner is the outcome of First.
type Winner[R any] struct {
	Index int
	Value R
}

// First performs every effect concurrently and returns the first one to
// finish, cancelling the rest. A failure finishes the race too and is
// returned. First of no effects fails with ErrNoEffects.
func First[S, E, R any](effs ...saga.Effect[S, E, R]) saga.Effect[S, E, Winner[R]] {
	return saga.Compose(saga.KindFirst, func(s *saga.Saga[S, E]) (Winner[R], error) {
		if len(effs) == 0 {
			return Winner[R]{}, ErrNoEffects
		}
		handles, outcomes, err := forkEach(s, effs)
		if err != nil {
			return Winner[R]{}, err
		}
		defer cancelAll(handles)

		out, err := next(s, outcomes)
		if err != nil {
			return Winner[R]{}, err
		}
		cancelAll(handles)
		if out.err != nil {
			return Winner[R]{Index: out.index}, out.err
		}
		return Winner[R]{Index: out.index, Value: out.value}, nil
	})
}

// Run forks body and waits for it, returning its failure. The fork is
// cancelled if the caller is cancelled first.
func Run[S, E any](body saga.Body[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindRun, func(s *saga.Saga[S, E]) (struct{}, error) {
		var bodyErr error
		h, err := s.Fork(func(s *saga.Saga[S, E]) error {
			bodyErr = body(s)
			return nil
		})
		if err != nil {
			return struct{}{}, err
		}
		if err := s.Join(h); err != nil {
			h.Cancel()
			return struct{}{}, err
		}
		if saga.IsCancellation(bodyErr) {
			return struct{}{}, nil
		}
		return struct{}{}, bodyErr
	})
}
