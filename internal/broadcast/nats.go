package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATS publishes each room on its own subject.
type NATS struct {
	nc     *nats.Conn
	buffer int
}

func NewNATS(url string, buffer int) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("chat-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("broadcast.nats disconnected", slog.Any("err", err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("broadcast.nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return &NATS{nc: nc, buffer: buffer}, nil
}

func (n *NATS) Publish(_ context.Context, roomID string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(Topic(roomID), data); err != nil {
		return fmt.Errorf("%w: nats publish: %v", domain.ErrTransientDelivery, err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	s := newSubscription(roomID, n.buffer)
	sub, err := n.nc.Subscribe(Topic(roomID), func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Warn("broadcast.nats.decode failed", "subject", m.Subject, slog.Any("err", err))
			return
		}
		s.deliver(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: nats subscribe: %v", domain.ErrTransientDelivery, err)
	}
	// Make sure the server registered interest before the caller relies on it.
	if err := n.nc.FlushTimeout(2 * time.Second); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: nats flush: %v", domain.ErrTransientDelivery, err)
	}

	s.bind(ctx, func() { _ = sub.Unsubscribe() })
	return s, nil
}

func (n *NATS) Ping(context.Context) error {
	if !n.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
