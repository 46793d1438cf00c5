// Package memory provides the bounded in-process item queue used by a crawl run.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations. Tasks
// enqueued before Close are still handed out; Dequeue reports
// crawler.ErrQueueClosed once the queue is closed and drained.
type Queue struct {
	ch        chan crawler.ItemTask
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:     make(chan crawler.ItemTask, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue pushes a task into the queue, blocking while it is full.
func (q *Queue) Enqueue(ctx context.Context, task crawler.ItemTask) error {
	select {
	case <-q.closed:
		return crawler.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.closed:
		return crawler.ErrQueueClosed
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.ItemTask, error) {
	select {
	case <-ctx.Done():
		return crawler.ItemTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.ch:
		return task, nil
	case <-q.closed:
		select {
		case task := <-q.ch:
			return task, nil
		default:
			return crawler.ItemTask{}, crawler.ErrQueueClosed
		}
	}
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting tasks. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
