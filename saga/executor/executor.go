// Package executor provides the scheduling contexts sagas run on.
//
// An Executor decides where independently scheduled work starts and owns
// the timer facility used by Sleep. Work started through a Supervisor is
// tracked so that a caller can wait for every goroutine it started, and a
// panic in one of them is recovered, logged and reported from Wait instead
// of crashing the process.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/on-the-ground/saga_ive_go/effects/log"
	"go.uber.org/multierr"
)

// Executor is a scheduling context.
type Executor interface {
	// Go starts fn as an independently scheduled flow.
	Go(fn func())
	// AfterFunc runs fn once d has elapsed. The returned stop function
	// cancels the timer and reports whether it did so before fn started.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
	// Name identifies the executor in logs and metrics.
	Name() string
}

// ErrPanic wraps a value recovered from a panicking goroutine.
var ErrPanic = errors.New("recovered panic")

// PanicError converts a recovered value into an error wrapping ErrPanic.
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, r)
}

var _ Executor = (*Supervisor)(nil)

// Supervisor runs every flow in its own goroutine and counts it until it
// returns. Timers are backed by time.AfterFunc, so a pending timer holds no
// goroutine. Go, AfterFunc and Wait may be called concurrently.
type Supervisor struct {
	ctx  context.Context
	name string

	mu     sync.Mutex
	active int
	idle   chan struct{}
	panics error
}

// NewSupervisor creates a Supervisor. ctx is only used to reach the log
// effect handler; cancelling it does not stop supervised work.
func NewSupervisor(ctx context.Context, name string) *Supervisor {
	return &Supervisor{
		ctx:  log.WithFields(ctx, map[string]interface{}{"executor": name}),
		name: name,
	}
}

var (
	defaultOnce sync.Once
	defaultExec *Supervisor
)

// Default returns the process-wide Supervisor used when an environment does
// not name one.
func Default() *Supervisor {
	defaultOnce.Do(func() {
		defaultExec = NewSupervisor(context.Background(), "default")
	})
	return defaultExec
}

func (s *Supervisor) Name() string {
	return s.name
}

func (s *Supervisor) Go(fn func()) {
	s.track()
	ready := make(chan struct{})
	go func() {
		defer s.untrack()
		close(ready)
		s.run(fn)
	}()
	<-ready
}

func (s *Supervisor) AfterFunc(d time.Duration, fn func()) func() bool {
	s.track()
	t := time.AfterFunc(d, func() {
		defer s.untrack()
		s.run(fn)
	})
	var once sync.Once
	return func() bool {
		stopped := false
		once.Do(func() {
			if stopped = t.Stop(); stopped {
				s.untrack()
			}
		})
		return stopped
	}
}

// Wait blocks until every flow and pending timer started through s has
// finished, or ctx ends. It returns the recovered panics, combined.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-s.idleCh():
		log.Effect(s.ctx, log.LogDebug, "all supervised routines finished", nil)
	case <-ctx.Done():
		return multierr.Append(ctx.Err(), s.recovered())
	}
	return s.recovered()
}

func (s *Supervisor) track() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == 0 {
		s.idle = make(chan struct{})
	}
	s.active++
}

func (s *Supervisor) untrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
}

// idleCh is closed once no flow or timer is pending.
func (s *Supervisor) idleCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == 0 {
		return closedCh
	}
	return s.idle
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (s *Supervisor) recovered() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panics
}

func (s *Supervisor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := PanicError(r)
			s.mu.Lock()
			s.panics = multierr.Append(s.panics, err)
			s.mu.Unlock()
			log.Effect(s.ctx, log.LogError, "panic in supervised routine", map[string]interface{}{
				"error": err,
			})
		}
	}()
	fn()
}
