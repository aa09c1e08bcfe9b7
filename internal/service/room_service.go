package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/cwrk-planet/chat-service/internal/service")

// RoomService is the single authority on who may read and write a room.
type RoomService struct {
	rooms    RoomStore
	products ProductDirectory
	messages MessageStore
}

func NewRoomService(rooms RoomStore, products ProductDirectory, messages MessageStore) *RoomService {
	return &RoomService{rooms: rooms, products: products, messages: messages}
}

// Resolve returns the room and the requester's role in it.
func (s *RoomService) Resolve(ctx context.Context, roomID, requesterID string) (domain.Room, domain.Role, error) {
	if requesterID == "" {
		return domain.Room{}, "", domain.ErrUnauthenticated
	}
	if strings.TrimSpace(roomID) == "" {
		return domain.Room{}, "", domain.Validationf("roomId is required")
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Room{}, "", domain.ErrRoomNotFound
		}
		slog.ErrorContext(ctx, "room.resolve.getRoom failed", "room", roomID, slog.Any("err", err))
		return domain.Room{}, "", fmt.Errorf("%w: get room: %w", domain.ErrStore, err)
	}

	role, ok := room.RoleOf(requesterID)
	if !ok {
		return domain.Room{}, "", domain.ErrNotParticipant
	}
	return room, role, nil
}

// GetOrCreate returns the buyer's room for productID, creating it on first interest.
// Concurrent calls for the same pair converge on one room.
func (s *RoomService) GetOrCreate(ctx context.Context, productID, buyerID string) (domain.Room, bool, error) {
	ctx, span := tracer.Start(ctx, "room.getOrCreate")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if buyerID == "" {
		return domain.Room{}, false, domain.ErrUnauthenticated
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Room{}, false, domain.Validationf("productId is required")
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Room{}, false, domain.ErrProductNotFound
		}
		slog.ErrorContext(ctx, "room.getOrCreate.getProduct failed", "product", productID, slog.Any("err", err))
		return domain.Room{}, false, fmt.Errorf("%w: get product: %w", domain.ErrStore, err)
	}
	if product.SellerID == buyerID {
		return domain.Room{}, false, domain.Validationf("cannot chat with yourself")
	}

	if room, err := s.find(ctx, productID, buyerID); err == nil {
		return room, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Room{}, false, err
	}

	room := domain.Room{
		ID:        uuid.NewString(),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  product.SellerID,
		CreatedAt: domain.Now(),
	}
	room.LastActivityAt = room.CreatedAt

	err = s.rooms.CreateRoom(ctx, room)
	switch {
	case err == nil:
		metrics.RoomsCreated.Inc()
		slog.InfoContext(ctx, "room created", "room", room.ID, "product", productID, "buyer", buyerID)
		return room, true, nil
	case errors.Is(err, domain.ErrAlreadyExists):
		// Lost the race: the winner's row is the room.
		existing, err := s.find(ctx, productID, buyerID)
		if err != nil {
			return domain.Room{}, false, err
		}
		return existing, false, nil
	default:
		slog.ErrorContext(ctx, "room.getOrCreate.createRoom failed", "product", productID, slog.Any("err", err))
		return domain.Room{}, false, fmt.Errorf("%w: create room: %w", domain.ErrStore, err)
	}
}

func (s *RoomService) find(ctx context.Context, productID, buyerID string) (domain.Room, error) {
	room, err := s.rooms.FindRoom(ctx, productID, buyerID)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return room, err
	}
	slog.ErrorContext(ctx, "room.find failed", "product", productID, slog.Any("err", err))
	return domain.Room{}, fmt.Errorf("%w: find room: %w", domain.ErrStore, err)
}

// ListForUser returns the user's rooms, most recently active first.
func (s *RoomService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.RoomSummary, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	rooms, err := s.rooms.ListRoomsFor(ctx, userID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "room.listForUser failed", "user", userID, slog.Any("err", err))
		return nil, fmt.Errorf("%w: list rooms: %w", domain.ErrStore, err)
	}

	out := lo.Map(rooms, func(r domain.Room, _ int) domain.RoomSummary {
		role, _ := r.RoleOf(userID)
		return domain.RoomSummary{Room: r, ViewerRole: role}
	})
	for i := range out {
		last, err := s.messages.Last(ctx, out[i].Room.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: last message: %w", domain.ErrStore, err)
		}
		out[i].LastMessage = last
	}
	return out, nil
}
