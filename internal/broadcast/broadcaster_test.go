package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func msg(id, roomID string) domain.Message {
	content := "hello " + id
	return domain.Message{ID: id, RoomID: roomID, Kind: domain.KindText, Content: &content, CreatedAt: domain.Now()}
}

func receive(t *testing.T, s *Subscription) domain.Message {
	t.Helper()
	select {
	case m, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return domain.Message{}
}

func requireClosed(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case _, ok := <-s.C():
		require.False(t, ok, "expected closed stream")
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed")
	}
}

// testBroadcaster is the behaviour every driver shares.
func testBroadcaster(t *testing.T, b Broadcaster) {
	ctx := context.Background()

	t.Run("fan out to room subscribers only", func(t *testing.T) {
		a1, err := b.Subscribe(ctx, "R1")
		require.NoError(t, err)
		defer a1.Cancel()
		a2, err := b.Subscribe(ctx, "R1")
		require.NoError(t, err)
		defer a2.Cancel()
		other, err := b.Subscribe(ctx, "R2")
		require.NoError(t, err)
		defer other.Cancel()

		require.NoError(t, b.Publish(ctx, "R1", msg("m1", "R1")))

		require.Equal(t, "m1", receive(t, a1).ID)
		require.Equal(t, "m1", receive(t, a2).ID)
		select {
		case m := <-other.C():
			t.Fatalf("unexpected delivery to R2: %v", m.ID)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("cancel closes the stream and is idempotent", func(t *testing.T) {
		s, err := b.Subscribe(ctx, "R3")
		require.NoError(t, err)
		s.Cancel()
		s.Cancel()
		requireClosed(t, s)

		require.NoError(t, b.Publish(ctx, "R3", msg("m2", "R3")))
	})

	t.Run("context cancellation cancels the subscription", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		s, err := b.Subscribe(subCtx, "R4")
		require.NoError(t, err)
		cancel()
		requireClosed(t, s)
	})
}

func TestHub(t *testing.T) {
	testBroadcaster(t, NewHub(8))
}

func TestHub_ReleasesSubscribers(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())

	s1, err := h.Subscribe(ctx, "R1")
	require.NoError(t, err)
	s2, err := h.Subscribe(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, 2, h.Subscribers("R1"))

	s2.Cancel()
	require.Equal(t, 1, h.Subscribers("R1"))

	cancel()
	requireClosed(t, s1)
	require.Eventually(t, func() bool { return h.Subscribers("R1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_FullBufferCancelsSubscriber(t *testing.T) {
	h := NewHub(1)
	slow, err := h.Subscribe(context.Background(), "R1")
	require.NoError(t, err)
	fast, err := h.Subscribe(context.Background(), "R1")
	require.NoError(t, err)
	defer fast.Cancel()

	require.NoError(t, h.Publish(context.Background(), "R1", msg("m1", "R1")))
	require.Equal(t, "m1", receive(t, fast).ID)
	require.NoError(t, h.Publish(context.Background(), "R1", msg("m2", "R1")))

	// The buffered message survives, then the stream ends instead of skipping m2.
	require.Equal(t, "m1", receive(t, slow).ID)
	requireClosed(t, slow)
	require.Eventually(t, func() bool { return h.Subscribers("R1") == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, "m2", receive(t, fast).ID)
	require.NoError(t, h.Publish(context.Background(), "R1", msg("m3", "R1")))
	require.Equal(t, "m3", receive(t, fast).ID)
}

func TestHub_CloseCancelsEverything(t *testing.T) {
	h := NewHub(4)
	s, err := h.Subscribe(context.Background(), "R1")
	require.NoError(t, err)

	require.NoError(t, h.Close())
	requireClosed(t, s)
	require.Zero(t, h.Subscribers("R1"))
}

func TestInstrument_RunsCancelHooks(t *testing.T) {
	b := Instrument(NewHub(4), "memory")
	testBroadcaster(t, b)

	s, err := b.Subscribe(context.Background(), "R9")
	require.NoError(t, err)

	called := 0
	s.OnCancel(func() { called++ })
	s.Cancel()
	require.Equal(t, 1, called)

	s.OnCancel(func() { called++ })
	require.Equal(t, 2, called)
}

func TestTopic(t *testing.T) {
	require.Equal(t, "room-3f1c", Topic("3f1c"))
	require.Equal(t, Topic("x"), Topic("x"))
}
