// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage provides the key to blob tables the encrypted store
// persists into.
package storage

import (
	"errors"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Table is a flat key to blob mapping. Scan visits records in ascending
// key order. Implementations need not be safe for concurrent writers; the
// store serializes access.
type Table interface {
	// Upsert inserts or replaces the value under key.
	Upsert(key string, value []byte) error
	// Lookup returns the value under key and whether it was present.
	Lookup(key string) ([]byte, bool, error)
	// Delete removes key and reports whether it existed.
	Delete(key string) (bool, error)
	// Scan calls fn for every record. A non-nil error from fn stops the
	// scan and is returned.
	Scan(fn func(key string, value []byte) error) error
	Close() error
}

// Open opens the named backend. path is ignored by the memory backend.
func Open(backend, path string) (Table, error) {
	switch backend {
	case BackendLevelDB:
		return OpenLevelDB(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
