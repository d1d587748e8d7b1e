package saga

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status of a saga as seen through its Handle.
type Status int32

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Handle refers to a started saga.
type Handle struct {
	id     string
	parent string

	status    atomic.Int32
	requested atomic.Bool
	cancel    func()

	finishOnce sync.Once
	err        error
	done       chan struct{}
}

func newHandle(parent string) *Handle {
	return &Handle{
		id:     uuid.NewString(),
		parent: parent,
		done:   make(chan struct{}),
	}
}

// ID is unique per saga.
func (h *Handle) ID() string { return h.id }

// ParentID is the ID of the saga that forked this one, empty for a root.
func (h *Handle) ParentID() string { return h.parent }

// Cancel requests cooperative cancellation. The saga stops at its next
// suspension point. Cancelling a finished saga, or cancelling twice, does
// nothing.
func (h *Handle) Cancel() {
	if h.Status() != StatusRunning {
		return
	}
	if h.requested.CompareAndSwap(false, true) {
		h.cancel()
	}
}

// Done is closed once the saga has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the saga's failure. It is nil while running, and after a normal
// completion or a cancellation.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the saga finishes and returns Err, or until ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) Status() Status { return Status(h.status.Load()) }

// CancelRequested reports whether Cancel took effect on a running saga.
func (h *Handle) CancelRequested() bool { return h.requested.Load() }

func (h *Handle) finish(status Status, err error) {
	h.finishOnce.Do(func() {
		h.err = err
		h.status.Store(int32(status))
		close(h.done)
	})
}
