package saga

import (
	"context"
	"errors"
	"time"

	"github.com/on-the-ground/saga_ive_go/effects/log"
	"github.com/on-the-ground/saga_ive_go/saga/executor"
	"github.com/on-the-ground/saga_ive_go/saga/generator"
)

// Body is the code of a saga. Returning nil completes it normally; returning
// ErrCancelled (as Perform hands it out) marks it cancelled; anything else
// is a failure.
type Body[S, E any] func(s *Saga[S, E]) error

// Saga is a body's view of the saga running it.
type Saga[S, E any] struct {
	ctx    context.Context
	handle *Handle
	y      *generator.Yielder[instruction[S, E], error]
}

// Context is cancelled when the saga is. Blocking work done directly in the
// body, outside of effects, should observe it.
func (s *Saga[S, E]) Context() context.Context { return s.ctx }

func (s *Saga[S, E]) ID() string { return s.handle.ID() }

type handleKey struct{}

func handleFrom(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}

type sagaGenerator[S, E any] = generator.Generator[instruction[S, E], error]

func newSagaGenerator[S, E any](ctx context.Context, h *Handle, body Body[S, E]) *sagaGenerator[S, E] {
	ctx = context.WithValue(ctx, handleKey{}, h)
	return generator.New(ctx, func(ctx context.Context, y *generator.Yielder[instruction[S, E], error]) error {
		return body(&Saga[S, E]{ctx: ctx, handle: h, y: y})
	})
}

// Start runs body as a root saga on env.Executor and returns immediately.
// Cancelling ctx cancels the saga.
func Start[S, E any](ctx context.Context, env Env[S, E], body Body[S, E]) *Handle {
	return start(ctx, env.derive(nil), "", body, false)
}

// RunSync starts body and waits for it to finish.
func RunSync[S, E any](ctx context.Context, env Env[S, E], body Body[S, E]) error {
	h := Start(ctx, env, body)
	<-h.Done()
	if h.Status() == StatusCancelled && ctx.Err() != nil {
		return ctx.Err()
	}
	return h.Err()
}

func start[S, E any](ctx context.Context, env *Env[S, E], parent string, body Body[S, E], forked bool) *Handle {
	h := newHandle(parent)
	gen := newSagaGenerator(ctx, h, body)
	h.cancel = gen.Cancel

	// Logging must outlive the saga's own cancellation.
	logCtx := log.WithFields(context.WithoutCancel(ctx), map[string]interface{}{
		"saga":   h.id,
		"parent": parent,
	})
	m := newMetrics(env.Metrics)
	m.started()
	log.Effect(logCtx, log.LogDebug, "saga started", map[string]interface{}{
		"executor": env.Executor.Name(),
	})

	began := time.Now()
	// A fresh generator cannot already be started.
	_ = gen.Run(env.Executor)
	env.Executor.Go(func() {
		err := drive(gen, env)
		env.closeEvents()
		m.latency(time.Since(began))
		settle(logCtx, env, m, h, err, forked)
	})
	return h
}

// drive interprets every instruction the body yields until it finishes.
// Waiting on the body is not bounded: cancellation is cooperative.
func drive[S, E any](gen *sagaGenerator[S, E], env *Env[S, E]) error {
	ctx := gen.Context()
	id := ""
	if h := handleFrom(ctx); h != nil {
		id = h.id
	}
	for {
		_, ok, err := gen.Next(context.Background(), func(ins instruction[S, E]) error {
			return interpret(ctx, env, id, ins)
		})
		if !ok {
			return err
		}
	}
}

func interpret[S, E any](ctx context.Context, env *Env[S, E], id string, ins instruction[S, E]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = executor.PanicError(r)
		}
	}()
	if env.OnEffect != nil {
		env.OnEffect(id, ins.kind)
	}
	newMetrics(env.Metrics).performed(ins.kind)
	return ins.run(ctx, env)
}

func settle[S, E any](ctx context.Context, env *Env[S, E], m metrics, h *Handle, err error, forked bool) {
	switch {
	case err == nil:
		m.completed()
		log.Effect(ctx, log.LogDebug, "saga completed", nil)
		h.finish(StatusCompleted, nil)
	case IsCancellation(err) || (h.CancelRequested() && errors.Is(err, context.Canceled)):
		m.cancelled()
		log.Effect(ctx, log.LogDebug, "saga cancelled", nil)
		h.finish(StatusCancelled, nil)
	default:
		m.failed()
		fields := map[string]interface{}{"error": err.Error()}
		h.finish(StatusFailed, err)
		if !forked {
			log.Effect(ctx, log.LogWarn, "saga failed", fields)
			return
		}
		// Nobody may ever join a detached fork, so its failure is always
		// reported here.
		log.Effect(ctx, log.LogError, "forked saga failed", fields)
		if env.OnError != nil {
			env.OnError(h, err)
		}
	}
}
