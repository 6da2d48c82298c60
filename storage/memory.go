// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"errors"
	"slices"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
)

var _ Table = (*databaseTable)(nil)

// databaseTable adapts a luxfi database to Table.
type databaseTable struct {
	db database.Database
}

// NewMemory creates a new in-memory table.
func NewMemory() Table {
	return NewDatabase(memdb.New())
}

// NewDatabase wraps an existing database. The table owns db and closes it.
func NewDatabase(db database.Database) Table {
	return &databaseTable{db: db}
}

func (t *databaseTable) Upsert(key string, value []byte) error {
	return t.db.Put([]byte(key), value)
}

func (t *databaseTable) Lookup(key string) ([]byte, bool, error) {
	value, err := t.db.Get([]byte(key))
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func (t *databaseTable) Delete(key string) (bool, error) {
	has, err := t.db.Has([]byte(key))
	if err != nil || !has {
		return false, err
	}
	return true, t.db.Delete([]byte(key))
}

func (t *databaseTable) Scan(fn func(key string, value []byte) error) error {
	it := t.db.NewIterator()
	defer it.Release()

	for it.Next() {
		if err := fn(string(it.Key()), slices.Clone(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

func (t *databaseTable) Close() error {
	return t.db.Close()
}
