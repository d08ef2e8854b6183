package msgq

import "time"

// Publisher posts messages to a named Queue. Any number of Publishers may
// share one Queue; each Post call is independent, so concurrent publishers
// need no coordination beyond the Queue's own locking.
type Publisher struct {
	q *Queue
}

// Post enqueues data, waiting up to timeout for room if the queue is full.
// Pass 0 for a non-blocking attempt, or NoTimeout to block indefinitely.
func (p *Publisher) Post(data []byte, timeout time.Duration) (State, error) {
	return p.q.post(data, timeout)
}

// PostString is a convenience wrapper for text payloads.
func (p *Publisher) PostString(s string, timeout time.Duration) (State, error) {
	return p.Post([]byte(s), timeout)
}

// Queue returns the underlying Queue this Publisher posts to.
func (p *Publisher) Queue() *Queue { return p.q }
