// Package pattern builds event predicates for Take and the Take* combinators.
package pattern

import (
	"github.com/on-the-ground/saga_ive_go/saga"
)

// Any matches every event.
func Any[E any]() saga.Predicate[E] {
	return func(E) bool { return true }
}

// Equal matches events equal to want.
func Equal[E comparable](want E) saga.Predicate[E] {
	return func(ev E) bool { return ev == want }
}

// OneOf matches events equal to any of wants.
func OneOf[E comparable](wants ...E) saga.Predicate[E] {
	set := make(map[E]struct{}, len(wants))
	for _, w := range wants {
		set[w] = struct{}{}
	}
	return func(ev E) bool {
		_, ok := set[ev]
		return ok
	}
}

func Not[E any](p saga.Predicate[E]) saga.Predicate[E] {
	return func(ev E) bool { return !matches(p, ev) }
}

// And matches when every predicate does. No predicates match everything.
func And[E any](ps ...saga.Predicate[E]) saga.Predicate[E] {
	return func(ev E) bool {
		for _, p := range ps {
			if !matches(p, ev) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate does. No predicates match nothing.
func Or[E any](ps ...saga.Predicate[E]) saga.Predicate[E] {
	return func(ev E) bool {
		for _, p := range ps {
			if matches(p, ev) {
				return true
			}
		}
		return false
	}
}

// A nil predicate matches everything, as it does for Take.
func matches[E any](p saga.Predicate[E], ev E) bool {
	return p == nil || p(ev)
}
