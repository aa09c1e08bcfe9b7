package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/broadcast"
	bmocks "github.com/cwrk-planet/chat-service/internal/broadcast/mocks"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var room = domain.Room{ID: "R1", ProductID: "P1", BuyerID: "B", SellerID: "S"}

func newMocked(t *testing.T) (*service.ChatService, *mocks.MockMessageStore, *bmocks.MockBroadcaster) {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockRoomStore(ctrl)
	products := mocks.NewMockProductDirectory(ctrl)
	messages := mocks.NewMockMessageStore(ctrl)
	bus := bmocks.NewMockBroadcaster(ctrl)

	rooms.EXPECT().GetRoom(gomock.Any(), "R1").Return(room, nil).AnyTimes()

	chat := service.NewChatService(service.NewRoomService(rooms, products, messages), messages, bus)
	return chat, messages, bus
}

func stored(in domain.NewMessage) domain.Message {
	now := domain.Now()
	return domain.Message{
		ID:        domain.NewMessageID(now),
		RoomID:    in.RoomID,
		AuthorID:  in.AuthorID,
		Kind:      in.Kind,
		Content:   in.Content,
		CreatedAt: now,
	}
}

func TestSend_PublishFailureDoesNotFailSend(t *testing.T) {
	chat, messages, bus := newMocked(t)

	messages.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in domain.NewMessage) (domain.Message, error) { return stored(in), nil })

	published := make(chan struct{})
	bus.EXPECT().Publish(gomock.Any(), "R1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ domain.Message) error {
			defer close(published)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return errors.New("redis: connection refused")
		})

	msg, err := chat.Send(context.Background(), service.SendInput{RoomID: "R1", RequesterID: "B", Kind: domain.KindText, Content: str("hello")})
	require.NoError(t, err)
	require.Equal(t, "hello", *msg.Content)

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish never attempted")
	}
	chat.Wait()
}

func TestSend_PublishSurvivesCallerCancel(t *testing.T) {
	chat, messages, bus := newMocked(t)

	messages.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in domain.NewMessage) (domain.Message, error) { return stored(in), nil })
	bus.EXPECT().Publish(gomock.Any(), "R1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ domain.Message) error {
			assert.NoError(t, ctx.Err())
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := chat.Send(ctx, service.SendInput{RoomID: "R1", RequesterID: "S", Kind: domain.KindText, Content: str("hi")})
	cancel()
	require.NoError(t, err)
	chat.Wait()
}

func TestSend_StoreFailure(t *testing.T) {
	chat, messages, _ := newMocked(t)

	messages.EXPECT().Append(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.New("disk full"))

	_, err := chat.Send(context.Background(), service.SendInput{RoomID: "R1", RequesterID: "B", Kind: domain.KindText, Content: str("hello")})
	require.ErrorIs(t, err, domain.ErrStore)
	chat.Wait()
}

func TestSend_RejectedNeverReachesStore(t *testing.T) {
	chat, _, _ := newMocked(t)

	_, err := chat.Send(context.Background(), service.SendInput{RoomID: "R1", RequesterID: "B", Kind: domain.KindConfirm})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLive_SubscribeFailureIsTransient(t *testing.T) {
	chat, _, bus := newMocked(t)

	bus.EXPECT().Subscribe(gomock.Any(), "R1").Return((*broadcast.Subscription)(nil), errors.New("nats: no servers"))

	_, err := chat.Live(context.Background(), "R1", "B")
	require.ErrorIs(t, err, domain.ErrTransientDelivery)
}
