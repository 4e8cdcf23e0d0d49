package traffic

import "sync"

// Sink receives observations. Queue and the remote publishers implement it.
type Sink interface {
	Send(Observation)
}

// Queue carries observations from the capture goroutine to the simulation loop.
// It is unbounded: Send never waits for the consumer, and Drain never waits for
// the producer.
type Queue struct {
	mu      sync.Mutex
	pending []Observation
}

func NewQueue() *Queue {
	return &Queue{pending: make([]Observation, 0, 1024)}
}

// Send appends o to the tail of the queue.
func (q *Queue) Send(o Observation) {
	q.mu.Lock()
	q.pending = append(q.pending, o)
	q.mu.Unlock()
}

// Drain takes everything queued so far, in the order it was sent. buf is handed
// to the producer side as the next pending buffer, so callers should pass back
// the slice returned by the previous Drain once they are done with it.
func (q *Queue) Drain(buf []Observation) []Observation {
	q.mu.Lock()
	out := q.pending
	q.pending = buf[:0]
	q.mu.Unlock()
	return out
}

// Len reports how many observations are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
