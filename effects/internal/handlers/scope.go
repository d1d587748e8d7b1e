package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrScopeClosed is reported when an effect is performed on a closed handler.
var ErrScopeClosed = errors.New("effect handler scope is closed")

// effectScope owns the workers behind one handler. Close is idempotent and
// safe from any goroutine; sends racing with Close are dropped.
type effectScope[T any] struct {
	EffectId   string
	dispatcher WorkerDispatcher[T]
	done       chan struct{}
	closeOnce  sync.Once
	closeFn    func()
}

func newEffectScope[T any](
	dispatcher WorkerDispatcher[T],
	teardown func(),
) *effectScope[T] {
	return &effectScope[T]{
		EffectId:   uuid.New().String(),
		dispatcher: dispatcher,
		done:       make(chan struct{}),
		closeFn:    teardown,
	}
}

func (es *effectScope[T]) Close() {
	es.closeOnce.Do(func() {
		close(es.done)
		es.closeFn()
	})
}

// Done is closed once the scope is closed.
func (es *effectScope[T]) Done() <-chan struct{} {
	return es.done
}

func (es *effectScope[T]) send(ctx context.Context, msg T) error {
	select {
	case <-es.done:
		return ErrScopeClosed
	default:
	}
	select {
	case <-es.done:
		return ErrScopeClosed
	case <-ctx.Done():
		return ctx.Err()
	case es.dispatcher.ChannelOf(msg) <- msg:
		return nil
	}
}
