// Package badgerstore persists blocks in a Badger LSM database on
// disk.
package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jrhy/hstore"
)

// Persist implements the hstore.Persist interface over a Badger
// database. All block keys, including the reserved head key, live in
// the database's default keyspace.
type Persist struct {
	db    *badger.DB
	owned bool
}

// Open opens (creating if needed) a Badger database at the given path
// and returns a Persist over it. Close releases the database.
func Open(path string) (*Persist, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Persist{db: db, owned: true}, nil
}

// NewPersist wraps an already-open Badger database. The caller remains
// responsible for closing it.
func NewPersist(db *badger.DB) *Persist {
	return &Persist{db: db}
}

// Store persists the given bytes under the given key.
func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Load retrieves the previously-stored bytes under the given key.
func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger entry %s: %w", key, hstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

// Close closes the underlying database if this Persist opened it.
func (p *Persist) Close() error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}
