package handlers

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	effectmodel "github.com/on-the-ground/saga_ive_go/effects/internal/model"
)

// WorkerDispatcher picks the worker queue a message is handled on.
type WorkerDispatcher[T any] interface {
	ChannelOf(msg T) chan<- T
}

// --- single queue ---

type singleQueue[T any] struct {
	effectCh chan T
}

func (q singleQueue[T]) ChannelOf(_ T) chan<- T {
	return q.effectCh
}

// NewSingleQueue starts one worker; messages are handled strictly in
// arrival order.
func NewSingleQueue[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	ready := sync.WaitGroup{}
	ready.Add(1)
	ch := make(chan T, bufferSize)
	go runWorker(ctx, ch, handleFn, &ready)
	ready.Wait()
	return singleQueue[T]{effectCh: ch}
}

// --- partitioned queue ---

type partitionedQueue[T effectmodel.Partitionable] struct {
	effectChs []chan T
}

func (pq partitionedQueue[T]) ChannelOf(msg T) chan<- T {
	return pq.effectChs[indexByHash(msg, len(pq.effectChs))]
}

// NewPartitionedQueue starts numWorkers workers. Messages with the same
// PartitionKey always land on the same worker.
func NewPartitionedQueue[T effectmodel.Partitionable](
	ctx context.Context,
	numWorkers, bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	channels := make([]chan T, numWorkers)
	ready := sync.WaitGroup{}
	for i := range channels {
		ready.Add(1)
		channels[i] = make(chan T, bufferSize)
		go runWorker(ctx, channels[i], handleFn, &ready)
	}
	ready.Wait()
	return partitionedQueue[T]{effectChs: channels}
}

// The channel is never closed: senders select on the scope's done channel
// instead, so a late send cannot panic. Messages received after ctx ends
// are dropped.
func runWorker[T any](ctx context.Context, ch chan T, handleFn func(context.Context, T), ready *sync.WaitGroup) {
	ready.Done()
	for {
		select {
		case msg := <-ch:
			if ctx.Err() != nil {
				return
			}
			handleFn(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func indexByHash(payload effectmodel.Partitionable, numChs int) int {
	switch numChs {
	case 0:
		panic("number of channels cannot be 0")
	case 1:
		return 0
	default:
		return int(xxhash.Sum64String(payload.PartitionKey()) % uint64(numChs))
	}
}
