package stream

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO between the stream consumer and the worker
// pool. Push never blocks; backpressure comes from the fixed worker count,
// not from the enqueue side. The queue is process-wide state and survives
// consumer reconnects.
type queue struct {
	mu    sync.Mutex
	items [][]byte
	wake  chan struct{} // cap 1
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) Push(item []byte) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop blocks until an item is available or ctx is done.
func (q *queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			remaining := len(q.items)
			if remaining == 0 {
				q.items = nil
			}
			q.mu.Unlock()

			// Re-signal so sibling workers drain the backlog.
			if remaining > 0 {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
