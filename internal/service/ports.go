package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks

type RoomStore interface {
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	FindRoom(ctx context.Context, productID, buyerID string) (domain.Room, error)
	CreateRoom(ctx context.Context, room domain.Room) error
	ListRoomsFor(ctx context.Context, userID string, limit int) ([]domain.Room, error)
}

type ProductDirectory interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// MessageStore trusts its caller: authorization happens in ChatService.
type MessageStore interface {
	Append(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	ListSince(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error)
	Last(ctx context.Context, roomID string) (*domain.Message, error)
}

