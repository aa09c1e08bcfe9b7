package broadcast

import (
	"context"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Hub is the in-process driver for single-instance deployments.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{} // roomID -> subscriptions
	buffer int
}

func NewHub(buffer int) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Publish(_ context.Context, roomID string, msg domain.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[roomID] {
		s.deliver(msg) // best-effort
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	s := newSubscription(roomID, h.buffer)
	h.add(s)
	s.bind(ctx, func() { h.remove(s) })
	return s, nil
}

// Subscribers reports how many live subscriptions roomID has.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Ping(context.Context) error { return nil }

// Close cancels every subscription.
func (h *Hub) Close() error {
	h.mu.RLock()
	var all []*Subscription
	for _, rs := range h.rooms {
		for s := range rs {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Cancel()
	}
	return nil
}

func (h *Hub) add(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[s.roomID]
	if !ok {
		rs = make(map[*Subscription]struct{})
		h.rooms[s.roomID] = rs
	}
	rs[s] = struct{}{}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[s.roomID]; ok {
		delete(rs, s)
		if len(rs) == 0 {
			delete(h.rooms, s.roomID)
		}
	}
}
