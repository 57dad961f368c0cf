package stream

import "sync"

// Subscriber is one connected admin.
//
// Send is never closed by the hub, so a concurrent Write cannot panic on it;
// done signals shutdown instead. Close is idempotent.
type Subscriber struct {
	ID         string
	IdentityID string
	Send       chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(id, identityID string, queue int) *Subscriber {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	return &Subscriber{
		ID:         id,
		IdentityID: identityID,
		Send:       make(chan Envelope, queue),
		done:       make(chan struct{}),
	}
}

// Done is closed once the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
