package effects

import (
	"context"
	"fmt"

	"github.com/on-the-ground/saga_ive_go/effects/internal/handlers"
	effectmodel "github.com/on-the-ground/saga_ive_go/effects/internal/model"
)

// WithFireAndForgetEffectHandler registers a fire-and-forget effect handler for a given effect enum.
//
// Suitable for one-shot effects like logging or telemetry. Payloads are handled
// in order on a single worker and no result is returned.
//
// Usage:
//
//	ctx, end := WithFireAndForgetEffectHandler(ctx, 10, MyEffectEnum, handleFn)
//	defer end()
func WithFireAndForgetEffectHandler[P any](
	ctx context.Context,
	bufferSize int,
	enum effectmodel.EffectEnum,
	handleFn func(context.Context, P),
	teardown ...func(),
) (context.Context, func() context.Context) {
	td := normalizeTeardown(teardown)
	handler := handlers.NewFireAndForgetHandler(ctx, bufferSize, handleFn, td)
	ctxWith := context.WithValue(ctx, enum, handler)

	return ctxWith, func() context.Context {
		handler.Close()
		return ctx
	}
}

// FireAndForgetEffect triggers a fire-and-forget effect for the given enum and payload.
//
// Returns ErrNoEffectHandler if nothing is registered for enum, or the
// handler's error if the payload could not be enqueued.
func FireAndForgetEffect[P any](
	ctx context.Context,
	enum effectmodel.EffectEnum,
	payload P,
) error {
	raw := ctx.Value(enum)
	if raw == nil {
		return fmt.Errorf("%w: %v", effectmodel.ErrNoEffectHandler, enum)
	}
	handler, ok := raw.(handlers.FireAndForgetHandler[P])
	if !ok {
		return fmt.Errorf("unexpected handler type for %v: %T", enum, raw)
	}
	return handler.FireAndForgetEffect(ctx, payload)
}

// normalizeTeardown flattens optional teardown functions into a single callable.
//
// Accepts either 0 or 1 teardown functions. Panics if more than one is passed.
func normalizeTeardown(teardown []func()) func() {
	switch len(teardown) {
	case 1:
		return teardown[0]
	case 0:
		return func() {}
	default:
		panic("normalizeTeardown: only one or zero teardown functions allowed")
	}
}
