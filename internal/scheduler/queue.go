package scheduler

import "sync"

// Queue is an unbounded, multi-producer/multi-consumer FIFO of Slots. Growth
// is intentional per spec: large batches enqueue their full size at once,
// and Enqueue must never fail a caller — only ever block transiently on the
// internal lock.
type Queue struct {
	mu    sync.Mutex
	items []*Slot
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends slot to the tail.
func (q *Queue) Enqueue(slot *Slot) {
	q.mu.Lock()
	q.items = append(q.items, slot)
	q.mu.Unlock()
}

// TryDequeue pops the head without blocking. ok is false if the queue is
// currently empty.
func (q *Queue) TryDequeue() (slot *Slot, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	slot = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return slot, true
}

// Len reports the current queue depth, for metrics only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
