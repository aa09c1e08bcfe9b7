package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/internal/transport/http/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type ChatSvc interface {
	Live(ctx context.Context, roomID, requesterID string) (*broadcast.Subscription, error)
	Send(ctx context.Context, in service.SendInput) (domain.Message, error)
}

type Server struct {
	upgrader websocket.Upgrader
	chat     ChatSvc
	verifier httpmw.Verifier

	pingEvery   time.Duration
	sendTimeout time.Duration
}

func NewServer(chat ChatSvc, verifier httpmw.Verifier) *Server {
	return &Server{
		chat:     chat,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:   15 * time.Second,
		sendTimeout: 10 * time.Second,
	}
}

// HandleWS serves GET /ws/rooms/{roomId}?access_token=...
// Authorization happens before the upgrade so failures are plain HTTP statuses.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token, _ = httpmw.Bearer(r)
	}
	user, err := s.verifier.Verify(token)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	roomID := chi.URLParam(r, "roomId")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.chat.Live(ctx, roomID, user.ID)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	defer sub.Cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "room", roomID, "user", user.ID, slog.Any("err", err))
		return
	}

	c := newWsConn(conn, roomID, user.ID)
	defer func() { _ = c.Close() }()

	if err := c.Send(Message{Type: TypeReady, Payload: ReadyPayload{RoomID: roomID, UserID: user.ID}}); err != nil {
		slog.Debug("ws send ready failed", "room", roomID, "user", user.ID, slog.Any("err", err))
		return
	}
	slog.Debug("ws session opened", "room", roomID, "user", user.ID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, c, sub)
	}()
	s.readLoop(ctx, c)

	cancel()
	_ = c.Close()
	wg.Wait()
	slog.Debug("ws session closed", "room", roomID, "user", user.ID)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Message: "malformed frame"}})
			continue
		}

		switch in.Type {
		case TypeSend:
			var p SendPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Message: "malformed send payload"}})
				continue
			}
			s.handleSend(ctx, c, p)
		default:
			// ignore
		}
	}
}

// handleSend runs to completion even if the connection drops mid-send.
func (s *Server) handleSend(ctx context.Context, c *wsConn, p SendPayload) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	defer cancel()

	msg, err := s.chat.Send(ctx, service.SendInput{
		RoomID:      c.roomID,
		RequesterID: c.userID,
		Kind:        p.Kind,
		Content:     p.Content,
		Attachment:  p.Attachment,
	})
	if err != nil {
		status, code := httputil.Status(err)
		text := err.Error()
		if status >= http.StatusInternalServerError {
			slog.Warn("ws send failed", "room", c.roomID, "user", c.userID, slog.Any("err", err))
			text = http.StatusText(status)
		}
		_ = c.Send(Message{Type: TypeSendError, Payload: SendErrorPayload{TempID: p.TempID, Code: code, Message: text}})
		return
	}
	_ = c.Send(Message{Type: TypeSendAck, Payload: SendAckPayload{TempID: p.TempID, Message: msg}})
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn, sub *broadcast.Subscription) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				// Subscription ended (overflow or shutdown); the client reconnects and catches up.
				_ = c.Close()
				return
			}
			if err := c.Send(Message{Type: TypeMessage, Payload: msg}); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				_ = c.Close()
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- connection ---

type wsConn struct {
	conn   *websocket.Conn
	roomID string
	userID string

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newWsConn(c *websocket.Conn, roomID, userID string) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		userID: userID,
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
