package saga

import (
	"context"
	"errors"
)

// Effect is an immutable description of work a saga asks the runtime to do.
// R is the value the saga is resumed with.
type Effect[S, E, R any] interface {
	Kind() Kind
	// Interpret performs the effect. ctx is cancelled when the performing
	// saga is cancelled.
	Interpret(ctx context.Context, env *Env[S, E]) (R, error)
}

// instruction is what a saga body yields: an effect with its result type
// erased behind a closure that stores the typed result on the body's side.
type instruction[S, E any] struct {
	kind Kind
	run  func(ctx context.Context, env *Env[S, E]) error
}

// Perform suspends the saga until eff has been interpreted and returns its
// result. Errors from the interpretation are returned as-is; ErrCancelled
// means the saga was cancelled and should return.
func Perform[S, E, R any](s *Saga[S, E], eff Effect[S, E, R]) (R, error) {
	var zero, result R
	ins := instruction[S, E]{
		kind: eff.Kind(),
		run: func(ctx context.Context, env *Env[S, E]) error {
			r, err := eff.Interpret(ctx, env)
			result = r
			return err
		},
	}
	interpErr, err := s.y.Yield(ins)
	if err != nil {
		return zero, err
	}
	if interpErr != nil {
		if s.ctx.Err() != nil && errors.Is(interpErr, context.Canceled) {
			return zero, ErrCancelled
		}
		return zero, interpErr
	}
	return result, nil
}

// Compose builds an effect out of other effects. fn runs as an inline saga
// that shares the performer's environment and event view; cancelling the
// performer cancels it.
func Compose[S, E, R any](kind Kind, fn func(s *Saga[S, E]) (R, error)) Effect[S, E, R] {
	return composite[S, E, R]{kind: kind, fn: fn}
}

type composite[S, E, R any] struct {
	kind Kind
	fn   func(s *Saga[S, E]) (R, error)
}

func (c composite[S, E, R]) Kind() Kind { return c.kind }

func (c composite[S, E, R]) Interpret(ctx context.Context, env *Env[S, E]) (R, error) {
	var zero, result R
	gen := newSagaGenerator(ctx, handleFrom(ctx), func(s *Saga[S, E]) error {
		r, err := c.fn(s)
		result = r
		return err
	})
	if err := gen.Run(env.Executor); err != nil {
		return zero, err
	}
	if err := drive(gen, env); err != nil {
		return zero, err
	}
	return result, nil
}

// Erase hides an effect's result type so effects of different result types
// can be combined.
func Erase[S, E, R any](eff Effect[S, E, R]) Effect[S, E, any] {
	return erased[S, E, R]{inner: eff}
}

type erased[S, E, R any] struct {
	inner Effect[S, E, R]
}

func (e erased[S, E, R]) Kind() Kind { return e.inner.Kind() }

func (e erased[S, E, R]) Interpret(ctx context.Context, env *Env[S, E]) (any, error) {
	r, err := e.inner.Interpret(ctx, env)
	return r, err
}
