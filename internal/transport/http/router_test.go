package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/badgerstore"
	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	chathttp "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv    *httptest.Server
	signer *security.Signer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	products := badgerstore.NewProductRepository(db)
	messages := badgerstore.NewMessageRepository(db)
	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	rooms := service.NewRoomService(badgerstore.NewRoomRepository(db), products, messages)
	chat := service.NewChatService(rooms, messages, hub)

	require.NoError(t, products.PutProduct(context.Background(), domain.Product{ID: "P1", SellerID: "seller", Name: "bike"}))

	keys := security.Keys{Secret: []byte("test-secret")}
	verifier, err := security.NewVerifier(keys, "auth", "chat", time.Second)
	require.NoError(t, err)

	router := chathttp.NewRouter(
		chathttp.RouterConfig{MetricsEnabled: true},
		chathttp.NewHandler(rooms, chat),
		verifier,
		ws.NewServer(chat, verifier).HandleWS,
		map[string]chathttp.Pinger{"store": chathttp.PingFunc(func(context.Context) error { return db.Ping() })},
	)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		chat.Wait()
		_ = hub.Close()
	})
	return &env{srv: srv, signer: security.NewSigner(keys, "auth", "chat", time.Hour)}
}

func (e *env) token(t *testing.T, userID string) string {
	tok, err := e.signer.Sign(domain.User{ID: userID}, time.Now())
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, user string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func decodeData[T any](t *testing.T, body map[string]json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body["data"], &v))
	return v
}

func errorCode(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body["error"], &e))
	return e.Code
}

func openRoom(t *testing.T, e *env) string {
	status, body := e.do(t, http.MethodPost, "/rooms", "buyer", map[string]string{"productId": "P1"})
	require.Equal(t, http.StatusCreated, status)
	return decodeData[chathttp.CreateRoomResponse](t, body).RoomID
}

func TestRooms(t *testing.T) {
	e := newEnv(t)
	roomID := openRoom(t, e)

	status, body := e.do(t, http.MethodPost, "/rooms", "buyer", map[string]string{"productId": "P1"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, roomID, decodeData[chathttp.CreateRoomResponse](t, body).RoomID)

	status, body = e.do(t, http.MethodGet, "/rooms/"+roomID, "seller", nil)
	require.Equal(t, http.StatusOK, status)
	room := decodeData[chathttp.RoomResponse](t, body)
	require.Equal(t, domain.RoleSeller, room.ViewerRole)
	require.Equal(t, "buyer", room.OtherParticipant)

	status, body = e.do(t, http.MethodGet, "/rooms", "seller", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decodeData[chathttp.RoomsListResponse](t, body).Items, 1)

	status, body = e.do(t, http.MethodGet, "/rooms/"+roomID, "stranger", nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", errorCode(t, body))

	status, _ = e.do(t, http.MethodGet, "/rooms/00000000-0000-0000-0000-000000000000", "buyer", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, body = e.do(t, http.MethodPost, "/rooms", "buyer", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", errorCode(t, body))

	status, _ = e.do(t, http.MethodPost, "/rooms", "seller", map[string]string{"productId": "P1"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPost, "/rooms", "buyer", map[string]string{"productId": "nope"})
	require.Equal(t, http.StatusNotFound, status)

	status, body = e.do(t, http.MethodGet, "/rooms", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthenticated", errorCode(t, body))
}

func TestMessages(t *testing.T) {
	e := newEnv(t)
	roomID := openRoom(t, e)

	status, body := e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"roomId": roomID, "kind": "TEXT", "content": "is it available?"})
	require.Equal(t, http.StatusCreated, status)
	first := decodeData[domain.Message](t, body)
	require.Equal(t, "buyer", first.AuthorID)

	status, body = e.do(t, http.MethodPost, "/messages", "seller", map[string]any{"roomId": roomID, "kind": "CONFIRM"})
	require.Equal(t, http.StatusCreated, status)
	confirm := decodeData[domain.Message](t, body)
	require.Equal(t, service.DefaultConfirmContent, *confirm.Content)

	status, _ = e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"roomId": roomID, "kind": "CONFIRM"})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"roomId": roomID, "kind": "IMAGE"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"kind": "TEXT", "content": "x"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"roomId": roomID, "kind": "GIF", "content": "x"})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = e.do(t, http.MethodGet, "/messages?roomId="+roomID+"&limit=1", "seller", nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeData[service.Page](t, body)
	require.Len(t, page.Messages, 1)
	require.Equal(t, first.ID, page.Messages[0].ID)

	status, body = e.do(t, http.MethodGet, "/messages?roomId="+roomID+"&after="+page.NextCursor, "seller", nil)
	require.Equal(t, http.StatusOK, status)
	page = decodeData[service.Page](t, body)
	require.Len(t, page.Messages, 1)
	require.Equal(t, confirm.ID, page.Messages[0].ID)

	status, _ = e.do(t, http.MethodGet, "/messages?roomId="+roomID+"&after=bogus", "seller", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/messages", "seller", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/messages?roomId="+roomID, "stranger", nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func dialWS(t *testing.T, e *env, roomID, user string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/rooms/" + roomID + "?access_token=" + e.token(t, user)
	return websocket.DefaultDialer.Dial(u, nil)
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestWebsocket_LiveAndSend(t *testing.T) {
	e := newEnv(t)
	roomID := openRoom(t, e)

	seller, _, err := dialWS(t, e, roomID, "seller")
	require.NoError(t, err)
	defer seller.Close()
	require.Equal(t, ws.TypeReady, readFrame(t, seller).Type)

	buyer, _, err := dialWS(t, e, roomID, "buyer")
	require.NoError(t, err)
	defer buyer.Close()
	require.Equal(t, ws.TypeReady, readFrame(t, buyer).Type)

	// HTTP send reaches the live seller.
	status, body := e.do(t, http.MethodPost, "/messages", "buyer", map[string]any{"roomId": roomID, "kind": "TEXT", "content": "hi"})
	require.Equal(t, http.StatusCreated, status)
	sent := decodeData[domain.Message](t, body)

	f := readFrame(t, seller)
	require.Equal(t, ws.TypeMessage, f.Type)
	var got domain.Message
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	require.Equal(t, sent.ID, got.ID)

	// Websocket send: the sender gets an ack, the other side gets the message.
	require.NoError(t, seller.WriteJSON(map[string]any{
		"type":    ws.TypeSend,
		"payload": map[string]any{"tempId": "t-1", "kind": "TEXT", "content": "yes"},
	}))

	var ack ws.SendAckPayload
	for ack.TempID == "" {
		f := readFrame(t, seller)
		if f.Type == ws.TypeSendAck {
			require.NoError(t, json.Unmarshal(f.Payload, &ack))
		}
	}
	require.Equal(t, "t-1", ack.TempID)
	require.Equal(t, "seller", ack.Message.AuthorID)

	for {
		f := readFrame(t, buyer)
		if f.Type != ws.TypeMessage {
			continue
		}
		var m domain.Message
		require.NoError(t, json.Unmarshal(f.Payload, &m))
		if m.ID == ack.Message.ID {
			break
		}
	}

	// Rejected send is reported to the sender only.
	require.NoError(t, buyer.WriteJSON(map[string]any{
		"type":    ws.TypeSend,
		"payload": map[string]any{"tempId": "t-2", "kind": "CONFIRM"},
	}))
	for {
		f := readFrame(t, buyer)
		if f.Type != ws.TypeSendError {
			continue
		}
		var se ws.SendErrorPayload
		require.NoError(t, json.Unmarshal(f.Payload, &se))
		require.Equal(t, "t-2", se.TempID)
		require.Equal(t, "forbidden", se.Code)
		break
	}
}

func TestWebsocket_RejectsBeforeUpgrade(t *testing.T) {
	e := newEnv(t)
	roomID := openRoom(t, e)

	_, resp, err := dialWS(t, e, roomID, "stranger")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/rooms/" + roomID
	_, resp, err = websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
