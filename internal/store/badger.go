// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// badgerDocs keys documents as "<kind>:<id>".
type badgerDocs struct {
	db *badger.DB
}

// OpenBadger opens a badger-backed Store at path. An empty path keeps the
// database in memory.
func OpenBadger(path string) (Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return typed{docs: &badgerDocs{db: db}}, nil
}

func (b *badgerDocs) Close() error { return b.db.Close() }

func (b *badgerDocs) get(_ context.Context, kind, id string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kind + ":" + id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (b *badgerDocs) put(_ context.Context, kind, id string, doc []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kind+":"+id), doc)
	})
}
