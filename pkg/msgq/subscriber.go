package msgq

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber reads messages from a named Queue through its own cursor. Two
// Subscribers on the same Queue never see each other's read position: every
// message posted while a Subscriber is attached is delivered to it exactly
// once (Confidence) or at most once, possibly skipped (Opportunity).
type Subscriber struct {
	q      *Queue
	c      *cursor
	closed bool

	attachmentID uuid.UUID
}

// AttachmentID tags this Subscriber with a unique identifier for log
// correlation, lazily generated on first use.
func (s *Subscriber) AttachmentID() uuid.UUID {
	if s.attachmentID == uuid.Nil {
		s.attachmentID = uuid.New()
	}
	return s.attachmentID
}

// Receive returns the next message for this Subscriber, waiting up to
// timeout if none is yet available. Pass 0 for a non-blocking poll, or
// NoTimeout to block indefinitely.
func (s *Subscriber) Receive(timeout time.Duration) ([]byte, State, error) {
	return s.q.receive(s.c, timeout)
}

// Dropped returns the number of messages this Subscriber has skipped
// because it fell behind the queue's retained window. Always 0 for a
// Confidence subscriber, since the queue never discards a message such a
// subscriber has not yet read.
func (s *Subscriber) Dropped() uint64 {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.c.dropped
}

// Kind reports whether this Subscriber is Confidence or Opportunity.
func (s *Subscriber) Kind() SubscriberType { return s.c.kind }

// Queue returns the underlying Queue this Subscriber reads from.
func (s *Subscriber) Queue() *Queue { return s.q }

// Close unregisters the Subscriber, releasing any back-pressure a
// Confidence subscriber was holding on unread slots.
func (s *Subscriber) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.q.removeCursor(s.c)
}

// Drain reads and discards every message currently available without
// blocking, returning the count discarded. It is the Go analogue of the
// original's drain operation used to resynchronize a subscriber that only
// cares about the latest state.
func (s *Subscriber) Drain() int {
	n := 0
	for {
		_, state, _ := s.Receive(0)
		if state != StateOK {
			return n
		}
		n++
	}
}
