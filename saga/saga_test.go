package saga_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/on-the-ground/saga_ive_go/saga"
	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/on-the-ground/saga_ive_go/saga/sagatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

type counterState struct {
	Count int
}

func newFixture(t *testing.T) (*sagatest.Fixture[counterState, string], *atomic.Int64) {
	t.Helper()
	var count atomic.Int64
	f := sagatest.New[counterState, string](t, func() counterState {
		return counterState{Count: int(count.Load())}
	})
	return f, &count
}

func waitDone(t *testing.T, h *saga.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("saga %s did not finish", h.ID())
	}
}

func counterValue(scope tally.TestScope, name string) int64 {
	var n int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			n += c.Value()
		}
	}
	return n
}

func TestSaga_SelectAndPut(t *testing.T) {
	f, count := newFixture(t)
	count.Store(41)

	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		n, err := saga.Query(s, func(st counterState) int { return st.Count + 1 })
		if err != nil {
			return err
		}
		if n != 42 {
			return errors.New("unexpected snapshot")
		}
		return s.Put("answered")
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"answered"}, f.Recorder.Events())
}

func TestSaga_MissingEnvironment(t *testing.T) {
	f, _ := newFixture(t)
	env := saga.Env[counterState, string]{Executor: f.Exec}

	var selectErr, putErr, takeErr error
	err := saga.RunSync(f.Ctx, env, func(s *saga.Saga[counterState, string]) error {
		_, selectErr = saga.Query(s, func(st counterState) int { return st.Count })
		putErr = s.Put("x")
		_, takeErr = s.Take(nil)
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, selectErr, saga.ErrNoSnapshot)
	assert.ErrorIs(t, putErr, saga.ErrNoDispatch)
	assert.ErrorIs(t, takeErr, saga.ErrNoEventSource)
}

func TestSaga_TakeFiltersAndConflates(t *testing.T) {
	f, _ := newFixture(t)
	busy := make(chan struct{})

	var taken []string
	h := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		ev, err := s.Take(func(ev string) bool { return ev != "ignored" })
		if err != nil {
			return err
		}
		taken = append(taken, ev)
		close(busy)
		if err := s.Sleep(50 * time.Millisecond); err != nil {
			return err
		}
		ev, err = s.Take(nil)
		if err != nil {
			return err
		}
		taken = append(taken, ev)
		return nil
	})

	f.Bus.AwaitSubscribers(t, 1)
	f.Bus.Publish("ignored")
	f.Bus.Publish("a")
	<-busy
	f.Bus.Publish("b")
	f.Bus.Publish("c")
	f.Bus.Publish("d")

	waitDone(t, h)
	require.NoError(t, h.Err())
	assert.Equal(t, []string{"a", "d"}, taken, "events sent while busy collapse to the latest")
	assert.Zero(t, f.Bus.Subscribers(), "the event view is released when the saga ends")
}

func TestSaga_CallFirstCallbackWins(t *testing.T) {
	f, _ := newFixture(t)

	var got string
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		got, err = saga.Perform(s, saga.Call[counterState, string](func(ctx context.Context, done func(string, error)) {
			go func() {
				done("first", nil)
				done("second", errors.New("ignored"))
			}()
		}))
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestSaga_CallIgnoresLateCallbackAfterCancel(t *testing.T) {
	f, _ := newFixture(t)
	started := make(chan func(int, error), 1)

	h := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, err := saga.Perform(s, saga.Call[counterState, string](func(ctx context.Context, done func(int, error)) {
			started <- done
		}))
		return err
	})

	done := <-started
	h.Cancel()
	waitDone(t, h)
	assert.NotPanics(t, func() { done(1, nil) })
	assert.Equal(t, saga.StatusCancelled, h.Status())
	assert.NoError(t, h.Err())
}

func TestSaga_AwaitRecoversPanics(t *testing.T) {
	f, _ := newFixture(t)

	var callErr error
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, callErr = saga.Await(s, func(ctx context.Context) (int, error) {
			panic("call boom")
		})
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, callErr, executor.ErrPanic)
}

func TestSaga_InterpretationPanicIsReturnedToBody(t *testing.T) {
	f, _ := newFixture(t)

	var selectErr error
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, selectErr = saga.Query(s, func(counterState) int { panic("projection boom") })
		return s.Put("still running")
	})

	require.NoError(t, err)
	assert.ErrorIs(t, selectErr, executor.ErrPanic)
	assert.Equal(t, []string{"still running"}, f.Recorder.Events())
}

func TestSaga_BodyPanicFailsSaga(t *testing.T) {
	f, _ := newFixture(t)

	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		panic("body boom")
	})

	assert.ErrorIs(t, err, executor.ErrPanic)
}

func TestSaga_CancelStopsSleep(t *testing.T) {
	f, _ := newFixture(t)

	h := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		if err := s.Sleep(time.Hour); err != nil {
			return err
		}
		return s.Put("unreachable")
	})

	time.Sleep(10 * time.Millisecond)
	begin := time.Now()
	h.Cancel()
	waitDone(t, h)

	assert.Less(t, time.Since(begin), time.Second)
	assert.Equal(t, saga.StatusCancelled, h.Status())
	assert.NoError(t, h.Err())
	assert.Empty(t, f.Recorder.Events())
}

func TestHandle_CancelIsIdempotent(t *testing.T) {
	f, _ := newFixture(t)

	h := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, err := s.Take(nil)
		return err
	})
	h.Cancel()
	h.Cancel()
	waitDone(t, h)
	assert.Equal(t, saga.StatusCancelled, h.Status())

	finished := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error { return nil })
	waitDone(t, finished)
	finished.Cancel()
	assert.Equal(t, saga.StatusCompleted, finished.Status())
	assert.False(t, finished.CancelRequested())
}

// cancelSelf cancels the performing saga and fails with the raw context
// error, the way an interpretation racing a cancellation does.
type cancelSelf struct {
	handle *atomic.Pointer[saga.Handle]
}

func (cancelSelf) Kind() saga.Kind { return "cancel_self" }

func (c cancelSelf) Interpret(ctx context.Context, _ *saga.Env[counterState, string]) (struct{}, error) {
	c.handle.Load().Cancel()
	<-ctx.Done()
	return struct{}{}, ctx.Err()
}

func TestSaga_CancelledInterpretationReportsCancellation(t *testing.T) {
	f, _ := newFixture(t)

	for i := 0; i < 50; i++ {
		var h atomic.Pointer[saga.Handle]
		gate := make(chan struct{})
		got := make(chan error, 1)
		started := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
			<-gate
			_, err := saga.Perform[counterState, string, struct{}](s, cancelSelf{handle: &h})
			got <- err
			return err
		})
		h.Store(started)
		close(gate)

		waitDone(t, started)
		assert.True(t, saga.IsCancellation(<-got))
		assert.Equal(t, saga.StatusCancelled, started.Status())
	}
}

func TestRunSync_ContextCancellation(t *testing.T) {
	f, _ := newFixture(t)
	ctx, cancel := context.WithTimeout(f.Ctx, 20*time.Millisecond)
	defer cancel()

	err := saga.RunSync(ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, err := s.Take(nil)
		return err
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFork_IsDetachedFromParent(t *testing.T) {
	f, _ := newFixture(t)

	var child *saga.Handle
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		child, err = s.Fork(func(s *saga.Saga[counterState, string]) error {
			if err := s.Sleep(100 * time.Millisecond); err != nil {
				return err
			}
			return s.Put("child done")
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRunning, child.Status())

	waitDone(t, child)
	assert.Equal(t, saga.StatusCompleted, child.Status())
	assert.NotEmpty(t, child.ParentID())
	assert.Equal(t, []string{"child done"}, f.Recorder.Events())
}

func TestFork_FailureGoesToOnError(t *testing.T) {
	f, _ := newFixture(t)
	scope := tally.NewTestScope("", nil)
	boom := errors.New("boom")

	reported := make(chan error, 1)
	f.Env.Metrics = scope
	f.Env.OnError = func(h *saga.Handle, err error) { reported <- err }

	var child *saga.Handle
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		child, err = s.Fork(func(s *saga.Saga[counterState, string]) error { return boom })
		return err
	})
	require.NoError(t, err, "a detached failure does not fail the parent")

	select {
	case got := <-reported:
		assert.ErrorIs(t, got, boom)
	case <-time.After(time.Second):
		t.Fatal("fork failure was not reported")
	}
	assert.Equal(t, saga.StatusFailed, child.Status())
	assert.ErrorIs(t, child.Err(), boom)
	assert.Equal(t, int64(1), counterValue(scope, "saga.failed"))
}

// countingExecutor counts the flows started through it.
type countingExecutor struct {
	executor.Executor
	started atomic.Int32
}

func (c *countingExecutor) Go(fn func()) {
	c.started.Add(1)
	c.Executor.Go(fn)
}

// executorName resumes the saga with the name of the executor its
// environment runs on.
type executorName struct{}

func (executorName) Kind() saga.Kind { return "executor_name" }

func (executorName) Interpret(_ context.Context, env *saga.Env[counterState, string]) (string, error) {
	return env.Executor.Name(), nil
}

func TestFork_OnExecutor(t *testing.T) {
	f, _ := newFixture(t)
	other := &countingExecutor{Executor: executor.NewSupervisor(f.Ctx, "other")}

	var parentBefore, parentAfter, childName string
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		if parentBefore, err = saga.Perform[counterState, string, string](s, executorName{}); err != nil {
			return err
		}
		child, err := s.Fork(func(s *saga.Saga[counterState, string]) error {
			name, err := saga.Perform[counterState, string, string](s, executorName{})
			childName = name
			return err
		}, saga.OnExecutor(other))
		if err != nil {
			return err
		}
		if err := s.Join(child); err != nil {
			return err
		}
		parentAfter, err = saga.Perform[counterState, string, string](s, executorName{})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, "other", childName)
	assert.Positive(t, other.started.Load(), "the child is scheduled on its own executor")
	assert.Equal(t, f.Exec.Name(), parentBefore)
	assert.Equal(t, f.Exec.Name(), parentAfter, "the parent keeps its executor")
}

func TestJoin_PropagatesChildFailure(t *testing.T) {
	f, _ := newFixture(t)
	boom := errors.New("boom")

	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		child, err := s.Fork(func(s *saga.Saga[counterState, string]) error { return boom })
		if err != nil {
			return err
		}
		return s.Join(child)
	})

	assert.ErrorIs(t, err, boom)
}

func TestCancelEffect_StopsChild(t *testing.T) {
	f, _ := newFixture(t)

	var child *saga.Handle
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		child, err = s.Fork(func(s *saga.Saga[counterState, string]) error {
			_, err := s.Take(nil)
			return err
		})
		if err != nil {
			return err
		}
		if err := s.Cancel(child); err != nil {
			return err
		}
		return s.Join(child)
	})

	require.NoError(t, err)
	assert.Equal(t, saga.StatusCancelled, child.Status())
}

func TestCompose_SharesEnvironmentAndTrace(t *testing.T) {
	f, count := newFixture(t)
	count.Store(7)

	var mu sync.Mutex
	var kinds []saga.Kind
	f.Env.OnEffect = func(_ string, kind saga.Kind) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}

	doubled := saga.Compose("double", func(s *saga.Saga[counterState, string]) (int, error) {
		n, err := saga.Query(s, func(st counterState) int { return st.Count })
		if err != nil {
			return 0, err
		}
		return n * 2, s.Put("doubled")
	})

	var got int
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		got, err = saga.Perform(s, doubled)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 14, got)
	assert.Equal(t, []string{"doubled"}, f.Recorder.Events())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []saga.Kind{"double", saga.KindSelect, saga.KindPut}, kinds)
}

func TestErase_KeepsResult(t *testing.T) {
	f, count := newFixture(t)
	count.Store(3)

	var got any
	err := saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		var err error
		got, err = saga.Perform(s, saga.Erase(saga.Select[counterState, string](func(st counterState) int {
			return st.Count
		})))
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestSaga_SameInputsSameEffects(t *testing.T) {
	body := func(s *saga.Saga[counterState, string]) error {
		for i := 0; i < 3; i++ {
			n, err := saga.Query(s, func(st counterState) int { return st.Count })
			if err != nil {
				return err
			}
			if n%2 == 0 {
				if err := s.Put("even"); err != nil {
					return err
				}
			}
			if err := s.Sleep(time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	}

	trace := func() []saga.Kind {
		f, count := newFixture(t)
		count.Store(2)
		var kinds []saga.Kind
		f.Env.OnEffect = func(_ string, kind saga.Kind) { kinds = append(kinds, kind) }
		require.NoError(t, saga.RunSync(f.Ctx, f.Env, body))
		return kinds
	}

	first := trace()
	assert.Len(t, first, 9)
	assert.Equal(t, first, trace())
}

func TestSaga_Metrics(t *testing.T) {
	f, _ := newFixture(t)
	scope := tally.NewTestScope("", nil)
	f.Env.Metrics = scope

	require.NoError(t, saga.RunSync(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		return s.Put("x")
	}))
	h := saga.Start(f.Ctx, f.Env, func(s *saga.Saga[counterState, string]) error {
		_, err := s.Take(nil)
		return err
	})
	h.Cancel()
	waitDone(t, h)

	assert.Equal(t, int64(2), counterValue(scope, "saga.started"))
	assert.Equal(t, int64(1), counterValue(scope, "saga.completed"))
	assert.Equal(t, int64(1), counterValue(scope, "saga.cancelled"))
	assert.GreaterOrEqual(t, counterValue(scope, "effect.performed"), int64(1))
}
