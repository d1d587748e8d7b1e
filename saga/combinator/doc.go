// Package combinator implements the standard event-handling and joining
// patterns on top of the primitive saga effects.
//
// Every combinator is itself an effect built with saga.Compose, so it is
// performed like any other effect and stops when the performing saga is
// cancelled. Sub-sagas a combinator starts on the caller's behalf are owned
// by it: they are cancelled when the combinator ends, and their failures
// are returned rather than reported as detached fork failures. Handler
// forks of the Take* family are the exception: they are ordinary detached
// forks, except for TakeLatest's current handler.
package combinator

import "github.com/on-the-ground/saga_ive_go/saga"

// Handler reacts to one event inside its own forked saga.
type Handler[S, E any] func(s *saga.Saga[S, E], ev E) error

func bind[S, E any](h Handler[S, E], ev E) saga.Body[S, E] {
	return func(s *saga.Saga[S, E]) error { return h(s, ev) }
}
