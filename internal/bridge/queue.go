package bridge

import (
	"context"
	"sync/atomic"
)

// queue is a bounded single-consumer queue. Items from one source are
// handled in arrival order; a full queue drops new items.
type queue[T any] struct {
	name    string
	items   chan T
	handle  func(T)
	onPanic func(name string, r any)
	dropped atomic.Uint64
}

func newQueue[T any](name string, size int, handle func(T), onPanic func(string, any)) *queue[T] {
	return &queue[T]{
		name:    name,
		items:   make(chan T, size),
		handle:  handle,
		onPanic: onPanic,
	}
}

// push enqueues without blocking. It returns false when the item was dropped.
func (q *queue[T]) push(item T) bool {
	select {
	case q.items <- item:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// run consumes items until ctx is done.
func (q *queue[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			q.process(item)
		}
	}
}

func (q *queue[T]) process(item T) {
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(q.name, r)
		}
	}()
	q.handle(item)
}

func (q *queue[T]) len() int {
	return len(q.items)
}
