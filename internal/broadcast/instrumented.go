package broadcast

import (
	"context"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"
)

type instrumented struct {
	next   Broadcaster
	driver string
}

// Instrument records publish results and open subscriptions for driver.
func Instrument(next Broadcaster, driver string) Broadcaster {
	return &instrumented{next: next, driver: driver}
}

func (b *instrumented) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	start := time.Now()
	err := b.next.Publish(ctx, roomID, msg)
	metrics.BroadcastLatency.WithLabelValues(b.driver).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BroadcastPublished.WithLabelValues(b.driver, result).Inc()
	return err
}

func (b *instrumented) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	s, err := b.next.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	gauge := metrics.ActiveSubscriptions.WithLabelValues(b.driver)
	gauge.Inc()
	s.OnCancel(gauge.Dec)
	return s, nil
}

func (b *instrumented) Ping(ctx context.Context) error { return b.next.Ping(ctx) }

func (b *instrumented) Close() error { return b.next.Close() }
