package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/pagination"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts the message and bumps the room activity in one transaction.
// The room row is locked first so that, within a room, commit order matches (created_at, id).
func (r *MessageRepository) Append(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, qLockRoom, in.RoomID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, domain.ErrRoomNotFound
		}
		return domain.Message{}, err
	}

	now := domain.Now()
	m := domain.Message{
		ID:         domain.NewMessageID(now),
		RoomID:     in.RoomID,
		AuthorID:   in.AuthorID,
		Kind:       in.Kind,
		Content:    in.Content,
		Attachment: in.Attachment,
		CreatedAt:  now,
	}

	if _, err := tx.Exec(ctx, qInsertMessage,
		m.ID, m.RoomID, m.AuthorID, string(m.Kind), m.Content, m.Attachment, m.CreatedAt,
	); err != nil {
		return domain.Message{}, mapPgError(err)
	}
	if _, err := tx.Exec(ctx, qTouchRoom, m.RoomID, m.CreatedAt); err != nil {
		return domain.Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ListSince returns messages strictly after cursor in (created_at, id) order.
func (r *MessageRepository) ListSince(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	limit = pagination.ClampLimit(limit)
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		createdAt, id = cur.CreatedAt, cur.ID
	}

	rows, err := r.db.Query(ctx, qListSince, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return out, pagination.Next(out, cursor), nil
}

// Last returns nil when the room has no messages.
func (r *MessageRepository) Last(ctx context.Context, roomID string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qLastMessage, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last message: %w", err)
	}
	return &m, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m        domain.Message
		authorID *string
		kind     string
	)
	if err := row.Scan(&m.ID, &m.RoomID, &authorID, &kind, &m.Content, &m.Attachment, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	if authorID != nil {
		m.AuthorID = *authorID
	}
	m.Kind = domain.Kind(kind)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
