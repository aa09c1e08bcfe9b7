package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	frameReady   = "ready"
	frameMessage = "message"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Realtime is one room's live channel. It is owned by whoever calls Run and
// lives exactly as long as that call.
type Realtime struct {
	url    string
	roomID string
	token  TokenSource
	dialer *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	events chan Event
}

type RealtimeOption func(*Realtime)

func WithBackoff(lo, hi time.Duration) RealtimeOption {
	return func(r *Realtime) {
		if lo > 0 && hi >= lo {
			r.minBackoff, r.maxBackoff = lo, hi
		}
	}
}

func WithDialer(d *websocket.Dialer) RealtimeOption {
	return func(r *Realtime) { r.dialer = d }
}

// NewRealtime targets baseURL (http:// or ws:// origin) + /ws/rooms/{roomID}.
func NewRealtime(baseURL, roomID string, token TokenSource, opts ...RealtimeOption) *Realtime {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	r := &Realtime{
		url:        u + "/ws/rooms/" + url.PathEscape(roomID),
		roomID:     roomID,
		token:      token,
		dialer:     websocket.DefaultDialer,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 15 * time.Second,
		events:     make(chan Event, 64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Events yields Inbound and RealtimeStatus events. It is closed when Run returns.
func (r *Realtime) Events() <-chan Event { return r.events }

// Run keeps the channel connected until ctx is done, reconnecting with
// jittered exponential backoff.
func (r *Realtime) Run(ctx context.Context) {
	defer close(r.events)

	backoff := r.minBackoff
	for {
		healthy, err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		r.emit(ctx, RealtimeStatus{Healthy: false, Err: err})
		if healthy {
			backoff = r.minBackoff
		}
		slog.Debug("chatclient realtime disconnected", "room", r.roomID, "retry_in", backoff, slog.Any("err", err))

		wait := backoff/2 + rand.N(backoff/2+1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

// session runs one connection; healthy reports whether it reached ready.
func (r *Realtime) session(ctx context.Context) (healthy bool, err error) {
	u := r.url + "?access_token=" + url.QueryEscape(r.token())
	conn, resp, err := r.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return healthy, err
		}
		if !healthy && f.Type != frameReady {
			return false, errors.New("chatclient: frame before ready")
		}
		switch f.Type {
		case frameReady:
			healthy = true
			r.emit(ctx, RealtimeStatus{Healthy: true})
		case frameMessage:
			var m Message
			if err := json.Unmarshal(f.Payload, &m); err != nil {
				slog.Debug("chatclient realtime bad message", slog.Any("err", err))
				continue
			}
			r.emit(ctx, Inbound{Message: m})
		}
	}
}

func (r *Realtime) emit(ctx context.Context, ev Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}
