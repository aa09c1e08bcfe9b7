// Package badgerstore is the embedded storage backend built on BadgerDB.
package badgerstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	Dir      string
	InMemory bool
}

type DB struct {
	db *badger.DB
}

func Open(cfg Config) (*DB, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping() error {
	if d.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

const maxConflictRetries = 64

// update runs fn in a read-write transaction, retrying on SSI conflicts.
func (d *DB) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(1+i%8) * time.Millisecond)
	}
	return err
}
