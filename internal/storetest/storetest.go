// Package storetest holds the behaviour every storage backend must satisfy.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/pagination"
	"github.com/cwrk-planet/chat-service/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Stores struct {
	Rooms    service.RoomStore
	Messages service.MessageStore
	Products interface {
		service.ProductDirectory
		PutProduct(ctx context.Context, p domain.Product) error
	}
}

// Run executes the contract against fresh stores produced by open.
func Run(t *testing.T, open func(t *testing.T) Stores) {
	t.Run("products", func(t *testing.T) { testProducts(t, open(t)) })
	t.Run("rooms", func(t *testing.T) { testRooms(t, open(t)) })
	t.Run("room pair is unique under races", func(t *testing.T) { testRoomRace(t, open(t)) })
	t.Run("append and list", func(t *testing.T) { testAppendList(t, open(t)) })
	t.Run("append bumps activity", func(t *testing.T) { testActivity(t, open(t)) })
	t.Run("concurrent appends stay totally ordered", func(t *testing.T) { testConcurrentAppend(t, open(t)) })
}

func NewRoom(productID, buyerID, sellerID string) domain.Room {
	return domain.Room{
		ID:        uuid.NewString(),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: domain.Now(),
	}
}

func text(s string) *string { return &s }

func testProducts(t *testing.T, s Stores) {
	ctx := context.Background()

	_, err := s.Products.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, s.Products.PutProduct(ctx, domain.Product{ID: "P1", SellerID: "S", Name: "tote bag"}))
	p, err := s.Products.GetProduct(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, "S", p.SellerID)
}

func testRooms(t *testing.T, s Stores) {
	ctx := context.Background()

	_, err := s.Rooms.GetRoom(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = s.Rooms.FindRoom(ctx, "P1", "B")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	room := NewRoom("P1", "B", "S")
	require.NoError(t, s.Rooms.CreateRoom(ctx, room))

	got, err := s.Rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, room.ProductID, got.ProductID)
	require.Equal(t, "B", got.BuyerID)
	require.Equal(t, "S", got.SellerID)

	found, err := s.Rooms.FindRoom(ctx, "P1", "B")
	require.NoError(t, err)
	require.Equal(t, room.ID, found.ID)

	dup := NewRoom("P1", "B", "S")
	require.ErrorIs(t, s.Rooms.CreateRoom(ctx, dup), domain.ErrAlreadyExists)

	// Same product, another buyer is another room.
	require.NoError(t, s.Rooms.CreateRoom(ctx, NewRoom("P1", "B2", "S")))

	rooms, err := s.Rooms.ListRoomsFor(ctx, "S", 10)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	rooms, err = s.Rooms.ListRoomsFor(ctx, "B", 10)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	rooms, err = s.Rooms.ListRoomsFor(ctx, "X", 10)
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func testRoomRace(t *testing.T, s Stores) {
	ctx := context.Background()
	const n = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Rooms.CreateRoom(ctx, NewRoom("P-race", "B", "S"))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func testAppendList(t *testing.T, s Stores) {
	ctx := context.Background()
	room := NewRoom("P1", "B", "S")
	require.NoError(t, s.Rooms.CreateRoom(ctx, room))

	_, err := s.Messages.Append(ctx, domain.NewMessage{RoomID: uuid.NewString(), AuthorID: "B", Kind: domain.KindText, Content: text("x")})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	last, err := s.Messages.Last(ctx, room.ID)
	require.NoError(t, err)
	require.Nil(t, last)

	var sent []domain.Message
	for i := 0; i < 7; i++ {
		m, err := s.Messages.Append(ctx, domain.NewMessage{
			RoomID: room.ID, AuthorID: "B", Kind: domain.KindText, Content: text("在庫ありますか"),
		})
		require.NoError(t, err)
		require.NotEmpty(t, m.ID)
		sent = append(sent, m)
	}
	img, err := s.Messages.Append(ctx, domain.NewMessage{
		RoomID: room.ID, AuthorID: "S", Kind: domain.KindImage, Attachment: text("https://cdn.example/p.png"),
	})
	require.NoError(t, err)
	sent = append(sent, img)
	sys, err := s.Messages.Append(ctx, domain.NewMessage{RoomID: room.ID, Kind: domain.KindSystem, Content: text("order placed")})
	require.NoError(t, err)
	sent = append(sent, sys)

	all, next, err := s.Messages.ListSince(ctx, room.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, all, len(sent))
	for i := range sent {
		require.Equal(t, sent[i].ID, all[i].ID)
		require.True(t, sent[i].CreatedAt.Equal(all[i].CreatedAt))
	}
	requireTotalOrder(t, all)
	require.Nil(t, all[7].Content)
	require.Equal(t, "https://cdn.example/p.png", *all[7].Attachment)
	require.Empty(t, all[8].AuthorID)

	// Stable across calls.
	again, _, err := s.Messages.ListSince(ctx, room.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, ids(all), ids(again))

	// Paging with the cursor walks the same sequence.
	var paged []domain.Message
	cursor := ""
	for {
		page, nc, err := s.Messages.ListSince(ctx, room.ID, cursor, 4)
		require.NoError(t, err)
		if len(page) == 0 {
			require.Equal(t, cursor, nc)
			break
		}
		paged = append(paged, page...)
		cursor = nc
	}
	require.Equal(t, ids(all), ids(paged))

	// Nothing after the tail.
	tail, nc, err := s.Messages.ListSince(ctx, room.ID, next, 10)
	require.NoError(t, err)
	require.Empty(t, tail)
	require.Equal(t, next, nc)

	last, err = s.Messages.Last(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, sys.ID, last.ID)

	_, _, err = s.Messages.ListSince(ctx, room.ID, "garbage!", 10)
	require.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func testActivity(t *testing.T, s Stores) {
	ctx := context.Background()
	older := NewRoom("P1", "B", "S")
	older.CreatedAt = domain.Now().Add(-time.Hour)
	newer := NewRoom("P2", "B", "S")
	newer.CreatedAt = domain.Now().Add(-time.Minute)
	require.NoError(t, s.Rooms.CreateRoom(ctx, older))
	require.NoError(t, s.Rooms.CreateRoom(ctx, newer))

	rooms, err := s.Rooms.ListRoomsFor(ctx, "B", 10)
	require.NoError(t, err)
	require.Equal(t, []string{newer.ID, older.ID}, roomIDs(rooms))

	m, err := s.Messages.Append(ctx, domain.NewMessage{RoomID: older.ID, AuthorID: "S", Kind: domain.KindText, Content: text("hi")})
	require.NoError(t, err)

	got, err := s.Rooms.GetRoom(ctx, older.ID)
	require.NoError(t, err)
	require.True(t, got.LastActivityAt.Equal(m.CreatedAt), "activity %v, message %v", got.LastActivityAt, m.CreatedAt)

	rooms, err = s.Rooms.ListRoomsFor(ctx, "B", 10)
	require.NoError(t, err)
	require.Equal(t, []string{older.ID, newer.ID}, roomIDs(rooms))

	rooms, err = s.Rooms.ListRoomsFor(ctx, "B", 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func testConcurrentAppend(t *testing.T, s Stores) {
	ctx := context.Background()
	room := NewRoom("P1", "B", "S")
	require.NoError(t, s.Rooms.CreateRoom(ctx, room))

	const writers, each = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		author := "B"
		if w%2 == 1 {
			author = "S"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := s.Messages.Append(ctx, domain.NewMessage{RoomID: room.ID, AuthorID: author, Kind: domain.KindText, Content: text("x")})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	all, _, err := s.Messages.ListSince(ctx, room.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, all, writers*each)
	requireTotalOrder(t, all)
}

func requireTotalOrder(t *testing.T, ms []domain.Message) {
	t.Helper()
	for i := 1; i < len(ms); i++ {
		require.True(t, ms[i-1].Before(ms[i]), "%s !< %s", ms[i-1].ID, ms[i].ID)
		require.False(t, ms[i].Before(ms[i-1]))
	}
}

func ids(ms []domain.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func roomIDs(rs []domain.Room) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
