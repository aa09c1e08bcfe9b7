package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/badgerstore"
	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	products *badgerstore.ProductRepository
	rooms    *service.RoomService
	chat     *service.ChatService
	hub      *broadcast.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	products := badgerstore.NewProductRepository(db)
	messages := badgerstore.NewMessageRepository(db)
	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	t.Cleanup(func() { _ = hub.Close() })

	rooms := service.NewRoomService(badgerstore.NewRoomRepository(db), products, messages)
	chat := service.NewChatService(rooms, messages, hub)
	t.Cleanup(chat.Wait)

	require.NoError(t, products.PutProduct(context.Background(), domain.Product{ID: "P1", SellerID: "S", Name: "vintage tote"}))
	return &fixture{products: products, rooms: rooms, chat: chat, hub: hub}
}

func str(s string) *string { return &s }

func recv(t *testing.T, sub *broadcast.Subscription) domain.Message {
	t.Helper()
	select {
	case m := <-sub.C():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return domain.Message{}
	}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, created, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "S", room.SellerID)
	require.Equal(t, "B", room.BuyerID)

	again, created, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, room.ID, again.ID)

	_, _, err = f.rooms.GetOrCreate(ctx, "P1", "S")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = f.rooms.GetOrCreate(ctx, "nope", "B")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, _, err = f.rooms.GetOrCreate(ctx, "P1", "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGetOrCreate_ConcurrentConverges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
			ids[i], errs[i] = room.ID, err
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	_, role, err := f.rooms.Resolve(ctx, room.ID, "S")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSeller, role)

	_, role, err = f.rooms.Resolve(ctx, room.ID, "B")
	require.NoError(t, err)
	require.Equal(t, domain.RoleBuyer, role)

	_, _, err = f.rooms.Resolve(ctx, room.ID, "X")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.rooms.Resolve(ctx, "00000000-0000-0000-0000-000000000000", "B")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, _, err = f.rooms.Resolve(ctx, room.ID, "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

// Buyer sends, seller is live: the seller sees it and history agrees.
func TestSend_DeliversToLiveSubscriber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	sub, err := f.chat.Live(ctx, room.ID, "S")
	require.NoError(t, err)
	defer sub.Cancel()

	sent, err := f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: "B", Kind: domain.KindText, Content: str("  hi  ")})
	require.NoError(t, err)
	require.Equal(t, "hi", *sent.Content)
	require.Equal(t, "B", sent.AuthorID)

	got := recv(t, sub)
	require.Equal(t, sent.ID, got.ID)

	page, err := f.chat.History(ctx, room.ID, "S", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, sent.ID, page.Messages[0].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = f.chat.History(ctx, room.ID, "B", page.NextCursor, 0)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
}

// Seller confirms with no content: the default text is stored.
func TestSend_ConfirmBySeller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	msg, err := f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: "S", Kind: domain.KindConfirm})
	require.NoError(t, err)
	require.Equal(t, domain.KindConfirm, msg.Kind)
	require.Equal(t, service.DefaultConfirmContent, *msg.Content)

	_, err = f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: "B", Kind: domain.KindConfirm})
	require.ErrorIs(t, err, domain.ErrForbidden)

	page, err := f.chat.History(ctx, room.ID, "B", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	long := make([]rune, service.MaxContentLen+1)
	for i := range long {
		long[i] = 'é'
	}

	cases := []struct {
		name string
		in   service.SendInput
		want error
	}{
		{"empty text", service.SendInput{Kind: domain.KindText, Content: str("   ")}, domain.ErrValidation},
		{"image without attachment", service.SendInput{Kind: domain.KindImage}, domain.ErrValidation},
		{"text with attachment", service.SendInput{Kind: domain.KindText, Content: str("x"), Attachment: str("a.png")}, domain.ErrValidation},
		{"system from user", service.SendInput{Kind: domain.KindSystem, Content: str("x")}, domain.ErrValidation},
		{"unknown kind", service.SendInput{Kind: "VIDEO", Content: str("x")}, domain.ErrValidation},
		{"too long", service.SendInput{Kind: domain.KindText, Content: str(string(long))}, domain.ErrValidation},
		{"outsider", service.SendInput{RequesterID: "X", Kind: domain.KindText, Content: str("x")}, domain.ErrNotParticipant},
		{"anonymous", service.SendInput{RequesterID: "", Kind: domain.KindText, Content: str("x")}, domain.ErrUnauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			in.RoomID = room.ID
			if tc.name != "outsider" && tc.name != "anonymous" {
				in.RequesterID = "B"
			}
			_, err := f.chat.Send(ctx, in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	page, err := f.chat.History(ctx, room.ID, "B", "", 0)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
}

func TestSend_ImageAndDefaultKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	img, err := f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: "B", Kind: domain.KindImage, Attachment: str("uploads/1.png")})
	require.NoError(t, err)
	require.Equal(t, "uploads/1.png", *img.Attachment)
	require.Nil(t, img.Content)

	txt, err := f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: "S", Content: str("sure")})
	require.NoError(t, err)
	require.Equal(t, domain.KindText, txt.Kind)
	require.True(t, img.Before(txt))
}

func TestHistory_PagesInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	var sent []string
	for i := range 7 {
		who := "B"
		if i%2 == 1 {
			who = "S"
		}
		m, err := f.chat.Send(ctx, service.SendInput{RoomID: room.ID, RequesterID: who, Kind: domain.KindText, Content: str("m")})
		require.NoError(t, err)
		sent = append(sent, m.ID)
	}

	var got []string
	cursor := ""
	for {
		page, err := f.chat.History(ctx, room.ID, "B", cursor, 3)
		require.NoError(t, err)
		if len(page.Messages) == 0 {
			require.Equal(t, cursor, page.NextCursor)
			break
		}
		for _, m := range page.Messages {
			got = append(got, m.ID)
		}
		cursor = page.NextCursor
	}
	require.Equal(t, sent, got)

	_, err = f.chat.History(ctx, room.ID, "B", "%%%", 3)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.chat.History(ctx, room.ID, "X", "", 3)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPostSystem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	sub, err := f.chat.Live(ctx, room.ID, "B")
	require.NoError(t, err)
	defer sub.Cancel()

	msg, err := f.chat.PostSystem(ctx, room.ID, "order shipped")
	require.NoError(t, err)
	require.Equal(t, domain.KindSystem, msg.Kind)
	require.Empty(t, msg.AuthorID)
	require.Equal(t, msg.ID, recv(t, sub).ID)

	_, err = f.chat.PostSystem(ctx, "00000000-0000-0000-0000-000000000000", "x")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = f.chat.PostSystem(ctx, room.ID, " ")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.products.PutProduct(ctx, domain.Product{ID: "P2", SellerID: "S", Name: "lamp"}))

	r1, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)
	r2, _, err := f.rooms.GetOrCreate(ctx, "P2", "B")
	require.NoError(t, err)

	_, err = f.chat.Send(ctx, service.SendInput{RoomID: r1.ID, RequesterID: "S", Kind: domain.KindText, Content: str("latest")})
	require.NoError(t, err)

	list, err := f.rooms.ListForUser(ctx, "S", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, r1.ID, list[0].Room.ID)
	require.Equal(t, domain.RoleSeller, list[0].ViewerRole)
	require.NotNil(t, list[0].LastMessage)
	require.Equal(t, "latest", *list[0].LastMessage.Content)
	require.Equal(t, r2.ID, list[1].Room.ID)
	require.Nil(t, list[1].LastMessage)

	none, err := f.rooms.ListForUser(ctx, "nobody", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestLive_CancelStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t)
	room, _, err := f.rooms.GetOrCreate(ctx, "P1", "B")
	require.NoError(t, err)

	_, err = f.chat.Live(ctx, room.ID, "X")
	require.True(t, errors.Is(err, domain.ErrForbidden))

	sub, err := f.chat.Live(ctx, room.ID, "S")
	require.NoError(t, err)
	require.Equal(t, 1, f.hub.Subscribers(room.ID))

	cancel()
	require.Eventually(t, func() bool { return f.hub.Subscribers(room.ID) == 0 }, time.Second, 10*time.Millisecond)
	_ = sub
}
