package stream

import (
	"context"
	"log/slog"
	"sync"

	"warden/internal/auth/audit"
)

// Hub holds the live subscribers and implements audit.Sink.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	subs     map[string]*Subscriber
	shutdown bool
}

var _ audit.Sink = (*Hub)(nil)

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, subs: make(map[string]*Subscriber)}
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		s.Close()
		return
	}
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Info("audit.stream.subscribe", "subscriber_id", s.ID, "identity_id", s.IdentityID, "subscribers", n)
}

// Unregister removes the subscriber and signals it to stop.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		s.Close()
		h.log.Info("audit.stream.unsubscribe", "subscriber_id", id)
	}
}

// Shutdown disconnects every subscriber and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	h.log.Info("audit.stream.shutdown", "subscribers", len(subs))
}

// ShuttingDown reports whether Shutdown was called.
func (h *Hub) ShuttingDown() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shutdown
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Name() string { return "stream" }

// Write broadcasts e. It never blocks on a subscriber and never fails because of one.
func (h *Hub) Write(_ context.Context, e audit.Entry) error {
	env, err := entryEnvelope(e)
	if err != nil {
		return err
	}
	h.Broadcast(env)
	return nil
}

// Broadcast queues env for every subscriber. Subscribers with a full queue are
// disconnected.
func (h *Hub) Broadcast(env Envelope) {
	var slow []string

	h.mu.RLock()
	for id, s := range h.subs {
		select {
		case <-s.Done():
			continue
		default:
		}
		select {
		case s.Send <- env:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.log.Warn("audit.stream.slow_consumer", "subscriber_id", id)
		h.Unregister(id)
	}
}
