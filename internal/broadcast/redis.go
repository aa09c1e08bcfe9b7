package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Redis fans out through Redis pub/sub so several instances share topics.
type Redis struct {
	client *redis.Client
	buffer int
}

func NewRedis(ctx context.Context, url string, buffer int) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	r := &Redis{client: redis.NewClient(opts), buffer: buffer}
	if err := r.Ping(ctx); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return r, nil
}

func (r *Redis) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Topic(roomID), data).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %v", domain.ErrTransientDelivery, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, Topic(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: redis subscribe: %v", domain.ErrTransientDelivery, err)
	}

	s := newSubscription(roomID, r.buffer)
	ch := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range ch {
			var msg domain.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				slog.Warn("broadcast.redis.decode failed", "topic", m.Channel, slog.Any("err", err))
				continue
			}
			s.deliver(msg)
		}
	}()

	s.bind(ctx, func() {
		_ = ps.Close()
		<-done
	})
	return s, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
