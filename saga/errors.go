package saga

import (
	"errors"

	"github.com/on-the-ground/saga_ive_go/saga/generator"
)

var (
	// ErrCancelled is returned from Perform once the saga has been
	// cancelled. It is a normal termination and never counted as a failure.
	ErrCancelled = generator.ErrCancelled

	ErrNoSnapshot    = errors.New("environment has no state snapshot")
	ErrNoDispatch    = errors.New("environment has no dispatch function")
	ErrNoEventSource = errors.New("environment has no event source")
)

// IsCancellation reports whether err only signals that a saga was cancelled.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled)
}
