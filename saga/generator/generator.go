// Package generator implements a suspendable sequential computation.
//
// A Generator runs its body in its own goroutine. The body hands values out
// with Yielder.Yield and is suspended until the consumer calls Next, which
// maps the yielded value to a resume value and hands it back. Both
// directions are rendezvous channels, so the body and the consumer strictly
// alternate: while the consumer is working on a yielded value the body is
// parked, and vice versa.
package generator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/on-the-ground/saga_ive_go/shared/channel"
)

// State of a Generator.
type State int32

const (
	Idle State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	// ErrCancelled is returned from Yield once the generator is cancelled,
	// and from Next when the body stopped because of it.
	ErrCancelled = errors.New("generator cancelled")
	// ErrNotRunning is returned by Next before Run.
	ErrNotRunning = errors.New("generator is not running")
	// ErrAlreadyStarted is returned by a second Run.
	ErrAlreadyStarted = errors.New("generator already started")
	// ErrPanic wraps a panic raised by the body.
	ErrPanic = executor.ErrPanic
)

// Body is the computation driven by a Generator. ctx is cancelled by
// Generator.Cancel so blocking work inside the body can observe it too.
type Body[Y, R any] func(ctx context.Context, y *Yielder[Y, R]) error

// Yielder is the body's handle on its generator.
type Yielder[Y, R any] struct {
	g *Generator[Y, R]
}

// Yield suspends the body until the consumer resumes it with a value.
// It returns ErrCancelled if the generator is cancelled while suspended.
func (y *Yielder[Y, R]) Yield(v Y) (R, error) {
	var zero R
	g := y.g
	if g.ctx.Err() != nil {
		return zero, ErrCancelled
	}
	if err := g.yields.Send(g.ctx, v); err != nil {
		return zero, g.suspensionErr(err)
	}
	r, err := g.resumes.Receive(g.ctx)
	if err != nil {
		return zero, g.suspensionErr(err)
	}
	return r, nil
}

// Generator yields values of type Y and is resumed with values of type R.
type Generator[Y, R any] struct {
	body   Body[Y, R]
	ctx    context.Context
	cancel context.CancelFunc

	yields  *channel.Channel[Y]
	resumes *channel.Channel[R]

	state    atomic.Int32
	err      error
	errTaken atomic.Bool
	done     chan struct{}
}

// New creates an idle generator. The body's context derives from ctx.
func New[Y, R any](ctx context.Context, body Body[Y, R]) *Generator[Y, R] {
	ctx, cancel := context.WithCancel(ctx)
	return &Generator[Y, R]{
		body:    body,
		ctx:     ctx,
		cancel:  cancel,
		yields:  channel.New[Y](channel.Rendezvous),
		resumes: channel.New[R](channel.Rendezvous),
		done:    make(chan struct{}),
	}
}

// Run starts the body on exec.
func (g *Generator[Y, R]) Run(exec executor.Executor) error {
	if !g.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyStarted
	}
	exec.Go(g.execute)
	return nil
}

func (g *Generator[Y, R]) execute() {
	defer func() {
		if r := recover(); r != nil {
			g.err = executor.PanicError(r)
		}
		g.state.Store(int32(Completed))
		g.yields.Close()
		g.resumes.Close()
		g.cancel()
		close(g.done)
	}()

	err := g.body(g.ctx, &Yielder[Y, R]{g: g})
	if err != nil && g.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = ErrCancelled
	}
	g.err = err
}

// Next advances the body by one step. It waits for the next yielded value,
// resumes the body with resume(value) and returns the value. Once the body
// has finished Next returns ok == false; the body's error is returned by the
// first such call only. ctx bounds the wait for the body.
func (g *Generator[Y, R]) Next(ctx context.Context, resume func(Y) R) (value Y, ok bool, err error) {
	var zero Y
	if g.State() == Idle {
		return zero, false, ErrNotRunning
	}

	y, err := g.yields.Receive(ctx)
	if err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return zero, false, g.takeErr()
		}
		return zero, false, err
	}

	// If the body was cancelled meanwhile it is no longer waiting; it will
	// finish at its suspension point and close the channels.
	_ = g.resumes.Send(g.ctx, resume(y))
	return y, true, nil
}

// Cancel asks the body to stop at its next suspension point. Idempotent.
func (g *Generator[Y, R]) Cancel() {
	g.cancel()
}

// Context is cancelled by Cancel and once the body has finished.
func (g *Generator[Y, R]) Context() context.Context {
	return g.ctx
}

// Done is closed when the body has finished.
func (g *Generator[Y, R]) Done() <-chan struct{} {
	return g.done
}

func (g *Generator[Y, R]) State() State {
	return State(g.state.Load())
}

func (g *Generator[Y, R]) takeErr() error {
	if g.errTaken.CompareAndSwap(false, true) {
		return g.err
	}
	return nil
}

func (g *Generator[Y, R]) suspensionErr(err error) error {
	if g.ctx.Err() != nil {
		return ErrCancelled
	}
	return err
}
