package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	q querier
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{q: db}
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	return r.getOne(ctx, qGetRoom, id)
}

func (r *RoomRepository) FindRoom(ctx context.Context, productID, buyerID string) (domain.Room, error) {
	return r.getOne(ctx, qFindRoom, productID, buyerID)
}

// CreateRoom returns domain.ErrAlreadyExists when (product_id, buyer_id) is taken.
func (r *RoomRepository) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := r.q.Exec(ctx, qInsertRoom, room.ID, room.ProductID, room.BuyerID, room.SellerID, room.CreatedAt)
	return mapPgError(err)
}

func (r *RoomRepository) ListRoomsFor(ctx context.Context, userID string, limit int) ([]domain.Room, error) {
	rows, err := r.q.Query(ctx, qListRoomsFor, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Room, 0, limit)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *RoomRepository) getOne(ctx context.Context, sql string, args ...any) (domain.Room, error) {
	rm, err := scanRoom(r.q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, err
	}
	return rm, nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var rm domain.Room
	err := row.Scan(&rm.ID, &rm.ProductID, &rm.BuyerID, &rm.SellerID, &rm.CreatedAt, &rm.LastActivityAt)
	rm.CreatedAt = rm.CreatedAt.UTC()
	rm.LastActivityAt = rm.LastActivityAt.UTC()
	return rm, err
}
