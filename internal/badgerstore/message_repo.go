package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/pagination"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	d *DB
}

func NewMessageRepository(d *DB) *MessageRepository {
	return &MessageRepository{d: d}
}

// Append writes the message and the room's new activity time in one transaction.
func (r *MessageRepository) Append(_ context.Context, in domain.NewMessage) (domain.Message, error) {
	var m domain.Message
	err := r.d.update(func(txn *badger.Txn) error {
		var rm domain.Room
		if err := getJSON(txn, roomKey(in.RoomID), &rm); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		now := domain.Now()
		m = domain.Message{
			ID:         domain.NewMessageID(now),
			RoomID:     in.RoomID,
			AuthorID:   in.AuthorID,
			Kind:       in.Kind,
			Content:    in.Content,
			Attachment: in.Attachment,
			CreatedAt:  now,
		}
		if err := setJSON(txn, messageKey(m.RoomID, m.CreatedAt, m.ID), m); err != nil {
			return err
		}
		if m.CreatedAt.After(rm.LastActivityAt) {
			rm.LastActivityAt = m.CreatedAt
		}
		return setJSON(txn, roomKey(rm.ID), rm)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

func (r *MessageRepository) ListSince(_ context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	limit = pagination.ClampLimit(limit)
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	prefix := messagePrefix(roomID)
	start := prefix
	var skip []byte
	if cur != nil {
		skip = messageKey(roomID, cur.CreatedAt, cur.ID)
		start = skip
	}

	out := make([]domain.Message, 0, limit)
	err = r.d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = limit
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid() && len(out) < limit; it.Next() {
			item := it.Item()
			if skip != nil && bytes.Equal(item.Key(), skip) {
				continue
			}
			var m domain.Message
			if err := item.Value(func(val []byte) error {
				return jsonUnmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, pagination.Next(out, cursor), nil
}

func (r *MessageRepository) Last(_ context.Context, roomID string) (*domain.Message, error) {
	var last *domain.Message
	err := r.d.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from the largest key that still carries the prefix.
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.Valid() {
			return nil
		}
		var m domain.Message
		if err := it.Item().Value(func(val []byte) error {
			return jsonUnmarshal(val, &m)
		}); err != nil {
			return err
		}
		last = &m
		return nil
	})
	return last, err
}

func jsonUnmarshal(val []byte, dst any) error {
	return json.Unmarshal(val, dst)
}
