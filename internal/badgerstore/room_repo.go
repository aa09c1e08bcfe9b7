package badgerstore

import (
	"context"
	"errors"
	"sort"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

type RoomRepository struct {
	d *DB
}

func NewRoomRepository(d *DB) *RoomRepository {
	return &RoomRepository{d: d}
}

func (r *RoomRepository) GetRoom(_ context.Context, id string) (domain.Room, error) {
	var rm domain.Room
	err := r.d.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &rm)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return rm, err
}

func (r *RoomRepository) FindRoom(ctx context.Context, productID, buyerID string) (domain.Room, error) {
	var id string
	err := r.d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomPairKey(productID, buyerID))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		id = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return r.GetRoom(ctx, id)
}

// CreateRoom claims the (product, buyer) pair key; a taken pair is domain.ErrAlreadyExists.
// Two racing transactions both read the pair key, so SSI aborts the loser and the retry sees the winner.
func (r *RoomRepository) CreateRoom(_ context.Context, room domain.Room) error {
	if room.BuyerID == room.SellerID {
		return domain.Validationf("buyer and seller must differ")
	}
	room.LastActivityAt = room.CreatedAt
	return r.d.update(func(txn *badger.Txn) error {
		pair := roomPairKey(room.ProductID, room.BuyerID)
		if _, err := txn.Get(pair); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(pair, []byte(room.ID)); err != nil {
			return err
		}
		return setJSON(txn, roomKey(room.ID), room)
	})
}

func (r *RoomRepository) ListRoomsFor(_ context.Context, userID string, limit int) ([]domain.Room, error) {
	var out []domain.Room
	err := r.d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = roomPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rm domain.Room
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &rm)
			}); err != nil {
				return err
			}
			if _, ok := rm.RoleOf(userID); ok {
				out = append(out, rm)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
