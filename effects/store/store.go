// Package store is a single-writer state container: a state value, a pure
// reducer applied to dispatched events one at a time, and subscribers that
// receive every applied event. A Store is the event source and dispatch
// target sagas run against; Env binds one to a saga environment.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/on-the-ground/saga_ive_go/effects/internal/handlers"
	"github.com/on-the-ground/saga_ive_go/effects/log"
	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/rickb777/date/v2/timespan"
	"github.com/uber-go/tally/v4"
)

var ErrClosed = errors.New("store is closed")

// Reducer computes the next state. It must not block or retain the event.
type Reducer[S, E any] func(state S, ev E) S

type Store[S, E any] struct {
	reducer Reducer[S, E]
	state   atomic.Pointer[S]
	seq     atomic.Uint64
	history *history[S, E]
	metrics tally.Scope

	reduce handlers.ResumableHandler[E, S]
	notify handlers.FireAndForgetHandler[notification[E]]

	mu     sync.RWMutex
	subs   map[string]func(E)
	closed atomic.Bool
}

type notification[E any] struct {
	subscriber string
	event      E
}

func (n notification[E]) PartitionKey() string {
	return n.subscriber
}

// New starts a store holding initial. Dispatch and delivery workers run
// until Close; cancelling ctx closes the store. ctx also carries the log
// handler.
func New[S, E any](ctx context.Context, initial S, reducer Reducer[S, E], opts ...Option) *Store[S, E] {
	o := newOptions(opts)
	st := &Store[S, E]{
		reducer: reducer,
		history: newHistory[S, E](o.HistorySize),
		metrics: o.Metrics,
		subs:    map[string]func(E){},
	}
	st.state.Store(&initial)
	st.notify = handlers.NewPartitionableFireAndForgetHandler(ctx, o.scopeConfig(), st.deliver, func() {})
	st.reduce = handlers.NewResumableHandler(ctx, o.BufferSize, st.apply, func() {})
	context.AfterFunc(ctx, st.Close)
	return st
}

// Dispatch applies ev and returns the resulting state. Events are applied
// in the order their Dispatch calls were accepted. Subscribers are notified
// asynchronously.
func (st *Store[S, E]) Dispatch(ctx context.Context, ev E) (S, error) {
	var zero S
	if st.closed.Load() {
		return zero, ErrClosed
	}
	select {
	case res := <-st.reduce.PerformEffect(ctx, ev):
		if errors.Is(res.Err, handlers.ErrScopeClosed) {
			return zero, ErrClosed
		}
		return res.Value, res.Err
	case <-st.reduce.Done():
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Snapshot is safe to call from any goroutine.
func (st *Store[S, E]) Snapshot() S {
	return *st.state.Load()
}

// Subscribe registers fn for every event applied from now on. Each
// subscriber receives events in the order they were applied. fn runs on a
// delivery worker shared with other subscribers and must not block.
func (st *Store[S, E]) Subscribe(fn func(E)) (unsubscribe func()) {
	id := uuid.NewString()
	st.mu.Lock()
	st.subs[id] = fn
	n := len(st.subs)
	st.mu.Unlock()
	st.metrics.Gauge("store.subscribers").Update(float64(n))

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.subs, id)
			n := len(st.subs)
			st.mu.Unlock()
			st.metrics.Gauge("store.subscribers").Update(float64(n))
		})
	}
}

func (st *Store[S, E]) Subscribers() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.subs)
}

// History returns the retained records applied within span, oldest first.
// It is empty unless the store was created WithHistory.
func (st *Store[S, E]) History(span timespan.TimeSpan) []Record[S, E] {
	return st.history.between(span.Start(), span.End())
}

// Close stops the workers. Pending dispatches fail with ErrClosed and
// undelivered notifications are dropped. Idempotent.
func (st *Store[S, E]) Close() {
	if !st.closed.CompareAndSwap(false, true) {
		return
	}
	st.reduce.Close()
	st.notify.Close()
	st.mu.Lock()
	clear(st.subs)
	st.mu.Unlock()
}

func (st *Store[S, E]) apply(ctx context.Context, ev E) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = executor.PanicError(r)
			log.Effect(ctx, log.LogError, "reducer panicked", map[string]interface{}{"error": err.Error()})
		}
	}()

	began := time.Now()
	next = st.reducer(*st.state.Load(), ev)
	st.state.Store(&next)
	rec := Record[S, E]{
		Seq:      st.seq.Add(1),
		Event:    ev,
		State:    next,
		TimeSpan: timespan.BetweenTimes(began, time.Now()),
	}
	st.history.add(rec)
	st.metrics.Counter("store.dispatched").Inc(1)

	st.mu.RLock()
	ids := make([]string, 0, len(st.subs))
	for id := range st.subs {
		ids = append(ids, id)
	}
	st.mu.RUnlock()

	log.Effect(ctx, log.LogDebug, "event applied", map[string]interface{}{
		"seq":         rec.Seq,
		"subscribers": len(ids),
	})
	for _, id := range ids {
		if err := st.notify.FireAndForgetEffect(ctx, notification[E]{subscriber: id, event: ev}); err != nil {
			log.Effect(ctx, log.LogWarn, "event not delivered", map[string]interface{}{
				"subscriber": id,
				"error":      err.Error(),
			})
		}
	}
	return next, nil
}

// deliver skips subscribers that unsubscribed after the event was queued.
func (st *Store[S, E]) deliver(_ context.Context, n notification[E]) {
	st.mu.RLock()
	fn, ok := st.subs[n.subscriber]
	st.mu.RUnlock()
	if ok {
		fn(n.event)
	}
}
