package store

import (
	"context"

	"github.com/on-the-ground/saga_ive_go/effects/log"
	"github.com/on-the-ground/saga_ive_go/saga"
)

var _ saga.EventSource[struct{}] = (*Store[struct{}, struct{}])(nil)

// Env returns a saga environment reading from and dispatching to st. A Put
// returns once its event has been applied. Dispatch failures are logged.
// Executor, Metrics and the hooks are left for the caller to set.
func Env[S, E any](ctx context.Context, st *Store[S, E]) saga.Env[S, E] {
	return saga.Env[S, E]{
		Snapshot: st.Snapshot,
		Source:   st,
		Dispatch: func(ev E) {
			if _, err := st.Dispatch(ctx, ev); err != nil {
				log.Effect(ctx, log.LogWarn, "saga dispatch failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		},
	}
}
