// Package broadcast fans stored messages out to live subscribers of a room topic.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"
)

//go:generate go run go.uber.org/mock/mockgen -source=broadcaster.go -destination=mocks/mock_broadcaster.go -package=mocks

// Broadcaster delivers at least once per subscriber with no ordering across topics.
// Subscribers must tolerate both duplicates and gaps. A subscription that
// cannot keep up is closed, never left open with a hole in it.
type Broadcaster interface {
	Publish(ctx context.Context, roomID string, msg domain.Message) error
	Subscribe(ctx context.Context, roomID string) (*Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

const DefaultBuffer = 64

// Topic is the per-room channel name shared by every driver.
func Topic(roomID string) string {
	return "room-" + roomID
}

// Subscription is a cancelable stream of one room's messages.
type Subscription struct {
	roomID string
	ch     chan domain.Message

	mu       sync.Mutex
	closed   bool
	overflow bool
	stop     func() bool
	releases []func()
}

func newSubscription(roomID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscription{
		roomID: roomID,
		ch:     make(chan domain.Message, buffer),
	}
}

// bind ties the subscription to ctx and registers the driver's release func.
func (s *Subscription) bind(ctx context.Context, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if release != nil {
		s.releases = append(s.releases, release)
	}
	s.stop = context.AfterFunc(ctx, s.Cancel)
}

// OnCancel registers fn to run once the subscription is canceled.
// If it is already canceled, fn runs immediately.
func (s *Subscription) OnCancel(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.releases = append(s.releases, fn)
	s.mu.Unlock()
}

func (s *Subscription) RoomID() string { return s.roomID }

// C is closed after Cancel.
func (s *Subscription) C() <-chan domain.Message { return s.ch }

// Cancel is idempotent; when it returns the driver holds no resources for s.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop, releases := s.stop, s.releases
	s.releases = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// deliver never blocks. A subscriber that falls a whole buffer behind is
// canceled rather than left with a silent gap; its consumer reconnects and
// catches up from the store.
func (s *Subscription) deliver(msg domain.Message) bool {
	s.mu.Lock()
	if s.closed || s.overflow {
		s.mu.Unlock()
		return false
	}
	select {
	case s.ch <- msg:
		s.mu.Unlock()
		return true
	default:
	}
	s.overflow = true
	s.mu.Unlock()

	metrics.BroadcastOverflows.Inc()
	slog.Warn("broadcast subscriber overflow, canceling", "room", s.roomID, "message_id", msg.ID)
	// Drivers call deliver under their own locks or from the goroutine the
	// release func waits on, so cancel asynchronously.
	go s.Cancel()
	return false
}
