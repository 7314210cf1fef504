package realtime

import (
	"sync"

	"github.com/roach88/livedoc/internal/docstore"
)

// Mutation is a post-write document published by a writer.
type Mutation struct {
	Seq      int64
	Table    string
	Document docstore.Document
}

// mutationQueue is an unbounded FIFO fed by Publish from any goroutine and
// drained by the Run loop. signal has a buffer of one so bursts coalesce
// into a single wake-up.
type mutationQueue struct {
	mu     sync.Mutex
	items  []Mutation
	closed bool
	signal chan struct{}
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		items:  make([]Mutation, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends m. Returns false once the queue is closed.
func (q *mutationQueue) Enqueue(m Mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, m)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Mutation{}, false
	}
	m := q.items[0]
	// Clear the slot so the document can be collected.
	q.items[0] = Mutation{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return m, true
}

// Wait signals that mutations may be available. Closed by Close.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued mutations.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues and wakes the consumer.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
