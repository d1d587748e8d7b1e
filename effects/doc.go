// Package effects scopes effect handlers to a context.Context.
//
// A handler is registered with WithFireAndForgetEffectHandler, which returns
// a derived context carrying the handler and a teardown function. Code
// running under that context performs the effect through
// FireAndForgetEffect without knowing how it is handled, so tests can swap
// the handler and libraries stay free of global state.
//
// The saga runtime uses this to route its structured logging (see the log
// subpackage); the store subpackage reuses the same worker machinery to
// serialise state transitions and notify subscribers.
//
// Example:
//
//	ctx, end := log.WithZapEffectHandler(ctx, 10, zap.NewExample())
//	defer end()
//
//	log.Effect(ctx, log.LogInfo, "saga started", map[string]interface{}{"id": id})
package effects
