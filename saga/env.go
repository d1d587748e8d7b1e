package saga

import (
	"context"
	"sync"

	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/on-the-ground/saga_ive_go/shared/channel"
	"github.com/uber-go/tally/v4"
)

// EventSource is the external event stream sagas Take from.
type EventSource[E any] interface {
	// Subscribe registers fn for every future event until unsubscribe is
	// called. fn must not block.
	Subscribe(fn func(E)) (unsubscribe func())
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc[E any] func(fn func(E)) func()

func (f EventSourceFunc[E]) Subscribe(fn func(E)) func() {
	return f(fn)
}

// Env is the context effects are interpreted against. It is shared by a saga
// and its forks; a Fork with its own executor only changes the child's copy.
//
// Snapshot must be safe to call from any goroutine and Dispatch must
// serialise writes itself: the runtime takes no locks around either.
type Env[S, E any] struct {
	// Executor runs saga bodies and timers. Defaults to executor.Default().
	Executor executor.Executor
	Snapshot func() S
	Source   EventSource[E]
	Dispatch func(E)
	// Metrics defaults to tally.NoopScope.
	Metrics tally.Scope
	// OnError receives the failure of a detached fork. Optional.
	OnError func(h *Handle, err error)
	// OnEffect is called before every effect a saga performs. Optional.
	OnEffect func(sagaID string, kind Kind)

	events *eventSlot[E]
}

// derive copies env for a new saga, optionally retargeted to exec. The
// copy gets its own event view.
func (env *Env[S, E]) derive(exec executor.Executor) *Env[S, E] {
	child := *env
	if exec != nil {
		child.Executor = exec
	}
	if child.Executor == nil {
		child.Executor = executor.Default()
	}
	if child.Metrics == nil {
		child.Metrics = tally.NoopScope
	}
	child.events = &eventSlot[E]{}
	return &child
}

// Events returns the saga's conflated event view, subscribing to Source on
// first use. The subscription lasts until the saga finishes.
//
// Conflation is intentional: events dispatched while the saga is not
// waiting in Take overwrite each other and only the latest is observed.
func (env *Env[S, E]) Events() (*channel.Channel[E], error) {
	if env.events == nil {
		env.events = &eventSlot[E]{}
	}
	return env.events.open(env.Source)
}

func (env *Env[S, E]) closeEvents() {
	if env.events != nil {
		env.events.close()
	}
}

type eventSlot[E any] struct {
	mu          sync.Mutex
	ch          *channel.Channel[E]
	unsubscribe func()
	closed      bool
}

func (s *eventSlot[E]) open(src EventSource[E]) (*channel.Channel[E], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return s.ch, nil
	}
	if s.closed {
		return nil, channel.ErrClosed
	}
	if src == nil {
		return nil, ErrNoEventSource
	}
	ch := channel.New[E](channel.Conflated)
	s.unsubscribe = src.Subscribe(func(ev E) {
		// ErrClosed after the saga finished is expected and ignored.
		_ = ch.Send(context.Background(), ev)
	})
	s.ch = ch
	return ch, nil
}

func (s *eventSlot[E]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ch == nil {
		return
	}
	s.unsubscribe()
	s.ch.Close()
}
