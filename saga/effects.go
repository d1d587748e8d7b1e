package saga

import (
	"context"
	"sync"
	"time"

	"github.com/on-the-ground/saga_ive_go/saga/executor"
)

// Predicate filters events for Take.
type Predicate[E any] func(E) bool

// --- select ---

type SelectEffect[S, E, R any] struct {
	Projection func(S) R
}

// Select reads a projection of the current state snapshot.
func Select[S, E, R any](projection func(S) R) Effect[S, E, R] {
	return SelectEffect[S, E, R]{Projection: projection}
}

func (SelectEffect[S, E, R]) Kind() Kind { return KindSelect }

func (e SelectEffect[S, E, R]) Interpret(_ context.Context, env *Env[S, E]) (R, error) {
	var zero R
	if env.Snapshot == nil {
		return zero, ErrNoSnapshot
	}
	return e.Projection(env.Snapshot()), nil
}

// --- put ---

type PutEffect[S, E any] struct {
	Event E
}

// Put dispatches an event to the store.
func Put[S, E any](ev E) Effect[S, E, struct{}] {
	return PutEffect[S, E]{Event: ev}
}

func (PutEffect[S, E]) Kind() Kind { return KindPut }

func (e PutEffect[S, E]) Interpret(_ context.Context, env *Env[S, E]) (struct{}, error) {
	if env.Dispatch == nil {
		return struct{}{}, ErrNoDispatch
	}
	env.Dispatch(e.Event)
	return struct{}{}, nil
}

// --- call ---

type CallEffect[S, E, R any] struct {
	Operation func(ctx context.Context, done func(R, error))
}

// Call starts an asynchronous operation and suspends until it invokes done.
// Only the first invocation of done counts; one arriving after the saga was
// cancelled is ignored.
func Call[S, E, R any](op func(ctx context.Context, done func(R, error))) Effect[S, E, R] {
	return CallEffect[S, E, R]{Operation: op}
}

func (CallEffect[S, E, R]) Kind() Kind { return KindCall }

func (e CallEffect[S, E, R]) Interpret(ctx context.Context, _ *Env[S, E]) (R, error) {
	type outcome struct {
		value R
		err   error
	}
	var zero R
	results := make(chan outcome, 1)
	var once sync.Once
	e.Operation(ctx, func(v R, err error) {
		once.Do(func() { results <- outcome{value: v, err: err} })
	})
	select {
	case out := <-results:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type CallFuncEffect[S, E, R any] struct {
	Fn func(ctx context.Context) (R, error)
}

// CallFunc runs a blocking function on the saga's executor and suspends
// until it returns.
func CallFunc[S, E, R any](fn func(ctx context.Context) (R, error)) Effect[S, E, R] {
	return CallFuncEffect[S, E, R]{Fn: fn}
}

func (CallFuncEffect[S, E, R]) Kind() Kind { return KindCall }

func (e CallFuncEffect[S, E, R]) Interpret(ctx context.Context, env *Env[S, E]) (R, error) {
	return Call[S, E](func(ctx context.Context, done func(R, error)) {
		env.Executor.Go(func() {
			var (
				v   R
				err error
			)
			defer func() {
				if r := recover(); r != nil {
					err = executor.PanicError(r)
				}
				done(v, err)
			}()
			v, err = e.Fn(ctx)
		})
	}).Interpret(ctx, env)
}

// --- sleep ---

type SleepEffect[S, E any] struct {
	Duration time.Duration
}

// Sleep suspends the saga for d using the executor's timers.
func Sleep[S, E any](d time.Duration) Effect[S, E, struct{}] {
	return SleepEffect[S, E]{Duration: d}
}

func (SleepEffect[S, E]) Kind() Kind { return KindSleep }

func (e SleepEffect[S, E]) Interpret(ctx context.Context, env *Env[S, E]) (struct{}, error) {
	if e.Duration <= 0 {
		return struct{}{}, ctx.Err()
	}
	fired := make(chan struct{})
	stop := env.Executor.AfterFunc(e.Duration, func() { close(fired) })
	select {
	case <-fired:
		return struct{}{}, nil
	case <-ctx.Done():
		stop()
		return struct{}{}, ctx.Err()
	}
}

// --- fork ---

type ForkEffect[S, E any] struct {
	Body     Body[S, E]
	Executor executor.Executor
}

type ForkOption func(*forkOptions)

type forkOptions struct {
	exec executor.Executor
}

// OnExecutor schedules the forked saga, and everything it forks, on exec.
func OnExecutor(exec executor.Executor) ForkOption {
	return func(o *forkOptions) { o.exec = exec }
}

// Fork starts body as a detached saga and resumes immediately with its
// handle. The child is not cancelled with its parent; its failure goes to
// Env.OnError instead of the parent.
func Fork[S, E any](body Body[S, E], opts ...ForkOption) Effect[S, E, *Handle] {
	var o forkOptions
	for _, opt := range opts {
		opt(&o)
	}
	return ForkEffect[S, E]{Body: body, Executor: o.exec}
}

func (ForkEffect[S, E]) Kind() Kind { return KindFork }

func (e ForkEffect[S, E]) Interpret(ctx context.Context, env *Env[S, E]) (*Handle, error) {
	parent := ""
	if h := handleFrom(ctx); h != nil {
		parent = h.id
	}
	return start(context.WithoutCancel(ctx), env.derive(e.Executor), parent, e.Body, true), nil
}

// --- take ---

type TakeEffect[S, E any] struct {
	Predicate Predicate[E]
}

// Take suspends until an event matching pred arrives. A nil pred matches
// every event. Events arriving while the saga is busy elsewhere are
// conflated, so only the latest of them can be taken.
func Take[S, E any](pred Predicate[E]) Effect[S, E, E] {
	return TakeEffect[S, E]{Predicate: pred}
}

func (TakeEffect[S, E]) Kind() Kind { return KindTake }

func (e TakeEffect[S, E]) Interpret(ctx context.Context, env *Env[S, E]) (E, error) {
	var zero E
	events, err := env.Events()
	if err != nil {
		return zero, err
	}
	for {
		ev, err := events.Receive(ctx)
		if err != nil {
			return zero, err
		}
		if e.Predicate == nil || e.Predicate(ev) {
			return ev, nil
		}
	}
}

// --- join / cancel ---

type JoinEffect[S, E any] struct {
	Handle *Handle
}

// Join suspends until h finishes and returns its failure, if any. Joining
// a cancelled saga returns nil.
func Join[S, E any](h *Handle) Effect[S, E, struct{}] {
	return JoinEffect[S, E]{Handle: h}
}

func (JoinEffect[S, E]) Kind() Kind { return KindJoin }

func (e JoinEffect[S, E]) Interpret(ctx context.Context, _ *Env[S, E]) (struct{}, error) {
	return struct{}{}, e.Handle.Wait(ctx)
}

type CancelEffect[S, E any] struct {
	Handle *Handle
}

// Cancel cancels h. Idempotent.
func Cancel[S, E any](h *Handle) Effect[S, E, struct{}] {
	return CancelEffect[S, E]{Handle: h}
}

func (CancelEffect[S, E]) Kind() Kind { return KindCancel }

func (e CancelEffect[S, E]) Interpret(context.Context, *Env[S, E]) (struct{}, error) {
	e.Handle.Cancel()
	return struct{}{}, nil
}

// --- shorthands ---

func (s *Saga[S, E]) Put(ev E) error {
	_, err := Perform[S, E, struct{}](s, Put[S](ev))
	return err
}

func (s *Saga[S, E]) Take(pred Predicate[E]) (E, error) {
	return Perform[S, E, E](s, Take[S](pred))
}

func (s *Saga[S, E]) Sleep(d time.Duration) error {
	_, err := Perform[S, E, struct{}](s, Sleep[S, E](d))
	return err
}

func (s *Saga[S, E]) Fork(body Body[S, E], opts ...ForkOption) (*Handle, error) {
	return Perform[S, E, *Handle](s, Fork(body, opts...))
}

func (s *Saga[S, E]) Join(h *Handle) error {
	_, err := Perform[S, E, struct{}](s, Join[S, E](h))
	return err
}

func (s *Saga[S, E]) Cancel(h *Handle) error {
	_, err := Perform[S, E, struct{}](s, Cancel[S, E](h))
	return err
}

// Query performs Select.
func Query[S, E, R any](s *Saga[S, E], projection func(S) R) (R, error) {
	return Perform[S, E, R](s, Select[S, E](projection))
}

// Await performs CallFunc.
func Await[S, E, R any](s *Saga[S, E], fn func(ctx context.Context) (R, error)) (R, error) {
	return Perform[S, E, R](s, CallFunc[S, E](fn))
}
