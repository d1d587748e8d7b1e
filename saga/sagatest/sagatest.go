// Package sagatest provides an in-memory event source and a dispatch
// recorder for testing sagas without a store.
package sagatest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/on-the-ground/saga_ive_go/effects/log"
	"github.com/on-the-ground/saga_ive_go/saga"
	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/stretchr/testify/require"
)

// Bus is a synchronous saga.EventSource.
type Bus[E any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(E)
}

func NewBus[E any]() *Bus[E] {
	return &Bus[E]{subs: map[int]func(E){}}
}

func (b *Bus[E]) Subscribe(fn func(E)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers ev to every current subscriber before returning.
func (b *Bus[E]) Publish(ev E) {
	b.mu.Lock()
	fns := make([]func(E), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (b *Bus[E]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// AwaitSubscribers fails t unless at least n subscribers show up within a
// second.
func (b *Bus[E]) AwaitSubscribers(t testing.TB, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Subscribers() >= n }, time.Second, time.Millisecond)
}

// Recorder collects dispatched events.
type Recorder[E any] struct {
	mu     sync.Mutex
	events []E
}

func (r *Recorder[E]) Dispatch(ev E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder[E]) Events() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Fixture bundles what a saga test usually needs.
type Fixture[S, E any] struct {
	Ctx      context.Context
	Env      saga.Env[S, E]
	Bus      *Bus[E]
	Recorder *Recorder[E]
	Exec     *executor.Supervisor
}

// New builds a Fixture whose Env reads state from snapshot, takes events from
// a Bus and records every Put. A test log handler is registered on Ctx.
func New[S, E any](t testing.TB, snapshot func() S) *Fixture[S, E] {
	t.Helper()
	ctx, endOfLogHandler := log.WithTestEffectHandler(context.Background())
	t.Cleanup(func() { endOfLogHandler() })

	f := &Fixture[S, E]{
		Ctx:      ctx,
		Bus:      NewBus[E](),
		Recorder: &Recorder[E]{},
		Exec:     executor.NewSupervisor(ctx, t.Name()),
	}
	f.Env = saga.Env[S, E]{
		Executor: f.Exec,
		Snapshot: snapshot,
		Source:   f.Bus,
		Dispatch: f.Recorder.Dispatch,
	}
	return f
}
