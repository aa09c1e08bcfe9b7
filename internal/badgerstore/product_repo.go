package badgerstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

type ProductRepository struct {
	d *DB
}

func NewProductRepository(d *DB) *ProductRepository {
	return &ProductRepository{d: d}
}

func (r *ProductRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.d.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, productKey(id), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, err
}

func (r *ProductRepository) PutProduct(_ context.Context, p domain.Product) error {
	return r.d.update(func(txn *badger.Txn) error {
		return setJSON(txn, productKey(p.ID), p)
	})
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
