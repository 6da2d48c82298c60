// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ Table = (*levelTable)(nil)

var syncWrites = &opt.WriteOptions{Sync: true}

// levelTable is a durable Table on an on-disk LevelDB. Writes are synced
// before they return.
type levelTable struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database directory at path.
func OpenLevelDB(path string) (Table, error) {
	if path == "" {
		return nil, errors.New("leveldb path is empty")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &levelTable{db: db}, nil
}

func (t *levelTable) Upsert(key string, value []byte) error {
	return t.db.Put([]byte(key), value, syncWrites)
}

func (t *levelTable) Lookup(key string) ([]byte, bool, error) {
	value, err := t.db.Get([]byte(key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func (t *levelTable) Delete(key string) (bool, error) {
	has, err := t.db.Has([]byte(key), nil)
	if err != nil || !has {
		return false, err
	}
	return true, t.db.Delete([]byte(key), syncWrites)
}

func (t *levelTable) Scan(fn func(key string, value []byte) error) error {
	it := t.db.NewIterator(nil, nil)
	defer it.Release()

	// Iterator buffers are reused across Next calls.
	for it.Next() {
		if err := fn(string(it.Key()), slices.Clone(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

func (t *levelTable) Close() error {
	return t.db.Close()
}
