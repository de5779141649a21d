package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Queue is an unbounded, FIFO, multi-producer/single-consumer queue of job
// ids. It holds only identifiers; the authoritative job record lives in the
// job store and is read fresh on every dispatch.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []uuid.UUID
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job id. It never blocks the producer and never drops an
// id. Enqueue after Close is a programming error and panics.
func (q *Queue) Enqueue(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		panic("queue: enqueue on closed job queue")
	}

	q.items = append(q.items, id)
	q.cond.Signal()
}

// Dequeue removes and returns the oldest id, blocking until one is available.
// It returns ok=false when the context is canceled or when the queue is
// closed and fully drained.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, bool) {
	// Wake the waiter if the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}

	if ctx.Err() != nil || len(q.items) == 0 {
		return uuid.Nil, false
	}

	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

// Close marks the queue as end-of-stream. Ids already enqueued are still
// delivered; once drained, all pending and future Dequeue calls return
// ok=false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of buffered ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
