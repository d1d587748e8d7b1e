package combinator

import (
	"context"

	"github.com/on-the-ground/saga_ive_go/saga"
)

// TakeEvery forks handler for every matching event. Handlers may overlap
// and never cancel each other.
func TakeEvery[S, E any](pred saga.Predicate[E], handler Handler[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindTakeEvery, func(s *saga.Saga[S, E]) (struct{}, error) {
		for {
			ev, err := s.Take(pred)
			if err != nil {
				return struct{}{}, err
			}
			if _, err := s.Fork(bind(handler, ev)); err != nil {
				return struct{}{}, err
			}
		}
	})
}

// TakeLatest forks handler for every matching event after cancelling the
// handler forked for the previous one. The running handler is cancelled
// when TakeLatest ends.
func TakeLatest[S, E any](pred saga.Predicate[E], handler Handler[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindTakeLatest, func(s *saga.Saga[S, E]) (struct{}, error) {
		var latest *saga.Handle
		defer func() {
			if latest != nil {
				latest.Cancel()
			}
		}()
		for {
			ev, err := s.Take(pred)
			if err != nil {
				return struct{}{}, err
			}
			if latest != nil {
				if err := s.Cancel(latest); err != nil {
					return struct{}{}, err
				}
			}
			if latest, err = s.Fork(bind(handler, ev)); err != nil {
				return struct{}{}, err
			}
		}
	})
}

// TakeLeading runs handler to completion for a matching event, then takes
// the next one. Events that arrived while the handler ran are dropped. The
// handler is cancelled with TakeLeading, and its failure ends TakeLeading.
func TakeLeading[S, E any](pred saga.Predicate[E], handler Handler[S, E]) saga.Effect[S, E, struct{}] {
	return saga.Compose(saga.KindTakeLeading, func(s *saga.Saga[S, E]) (struct{}, error) {
		for {
			ev, err := s.Take(pred)
			if err != nil {
				return struct{}{}, err
			}
			if _, err := saga.Perform(s, Run(bind(handler, ev))); err != nil {
				return struct{}{}, err
			}
			if _, err := saga.Perform[S, E, struct{}](s, dropPending[S, E]{}); err != nil {
				return struct{}{}, err
			}
		}
	})
}

// dropPending discards the event held in the saga's conflated view.
type dropPending[S, E any] struct{}

func (dropPending[S, E]) Kind() saga.Kind { return saga.KindTake }

func (dropPending[S, E]) Interpret(_ context.Context, env *saga.Env[S, E]) (struct{}, error) {
	events, err := env.Events()
	if err != nil {
		return struct{}{}, err
	}
	events.TryReceive()
	return struct{}{}, nil
}
