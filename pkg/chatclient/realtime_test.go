package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no realtime event")
		return nil
	}
}

func TestRealtime_ReconnectsAndReportsHealth(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/rooms/R1" || r.URL.Query().Get("access_token") != "tok" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := conns.Add(1)
		_ = c.WriteJSON(map[string]any{"type": "ready", "payload": map[string]string{"roomId": "R1"}})
		if n == 1 {
			_ = c.WriteJSON(map[string]any{"type": "message", "payload": msgAt("m1", 0, "S")})
			return // drop the connection
		}
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rt := NewRealtime(srv.URL, "R1", StaticToken("tok"), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Run(ctx)
	}()

	require.Equal(t, RealtimeStatus{Healthy: true}, nextEvent(t, rt.Events()))
	in, ok := nextEvent(t, rt.Events()).(Inbound)
	require.True(t, ok)
	require.Equal(t, "m1", in.Message.ID)

	down, ok := nextEvent(t, rt.Events()).(RealtimeStatus)
	require.True(t, ok)
	require.False(t, down.Healthy)

	require.Equal(t, RealtimeStatus{Healthy: true}, nextEvent(t, rt.Events()))
	require.EqualValues(t, 2, conns.Load())

	cancel()
	<-done
	_, open := <-rt.Events()
	require.False(t, open)
}

func TestRoomView(t *testing.T) {
	room := Room{ID: "R1", BuyerID: "B", SellerID: "S"}

	v, ok := NewRoomView(room, "S")
	require.True(t, ok)
	require.Equal(t, RoleSeller, v.ViewerRole)
	require.Equal(t, "B", v.OtherID)
	require.True(t, v.CanConfirm())
	require.True(t, v.IsOwn(Message{AuthorID: "S"}))

	v, ok = NewRoomView(room, "B")
	require.True(t, ok)
	require.False(t, v.CanConfirm())

	_, ok = NewRoomView(room, "X")
	require.False(t, ok)
}
