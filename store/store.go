// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is a key-value store whose values are kept as FHE
// ciphertexts and combined without being decrypted.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/aegisdb/fhe"
	"github.com/luxfi/aegisdb/storage"
)

// Operation names reported in Error.Op.
const (
	OpPut        = "put"
	OpGet        = "get"
	OpDelete     = "delete"
	OpAdd        = "add"
	OpMultiply   = "multiply"
	OpCompare    = "compare"
	OpSearch     = "search"
	OpCiphertext = "ciphertext"
	OpKeys       = "keys"
	OpOpen       = "open"
	OpClose      = "close"
)

// Store maps string keys to encrypted integers. Every exported method runs
// to completion under one store-wide lock, so compound operations such as
// Add never interleave with writers.
type Store struct {
	table  storage.Table
	ctx    *fhe.Context
	log    log.Logger
	closed bool

	mu sync.Mutex
}

// New creates a new Store over table. The store owns table.
func New(table storage.Table, ctx *fhe.Context, logger log.Logger) *Store {
	return &Store{
		table: table,
		ctx:   ctx,
		log:   logger,
	}
}

// Open obtains the process-wide encryption context for opts and creates a
// Store over table. The table is closed if the context cannot be built.
func Open(table storage.Table, opts fhe.Options) (*Store, error) {
	ctx, err := fhe.GetOrInit(opts)
	if err != nil {
		if cerr := table.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, newError(OpOpen, "", ErrEncryption, err)
	}
	logger := opts.Log
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return New(table, ctx, logger), nil
}

// Context returns the encryption context values are kept under.
func (s *Store) Context() *fhe.Context {
	return s.ctx
}

// Put encrypts value and stores it under key, replacing any previous value.
func (s *Store) Put(key string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpPut, key); err != nil {
		return err
	}
	if err := s.validate(OpPut, key, value); err != nil {
		return err
	}
	blob, err := s.ctx.Encrypt(value)
	if err != nil {
		return newError(OpPut, key, ErrDatabase, err)
	}
	if err := s.table.Upsert(key, blob); err != nil {
		return newError(OpPut, key, ErrDatabase, err)
	}
	s.log.Info("stored record", log.String("key", key))
	return nil
}

// Get returns the decrypted value under key. An absent key is reported
// through found, not as an error.
func (s *Store) Get(key string) (value uint64, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpGet, key); err != nil {
		return 0, false, err
	}
	blob, found, err := s.table.Lookup(key)
	if err != nil {
		return 0, false, newError(OpGet, key, ErrDatabase, err)
	}
	if !found {
		return 0, false, nil
	}
	value, err = s.ctx.Decrypt(blob)
	if err != nil {
		s.log.Error("failed to decrypt record", log.String("key", key), log.Err(err))
		return 0, false, newError(OpGet, key, ErrEncryption, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is an ErrKeyNotFound error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpDelete, key); err != nil {
		return err
	}
	existed, err := s.table.Delete(key)
	if err != nil {
		return newError(OpDelete, key, ErrDatabase, err)
	}
	if !existed {
		s.log.Warn("delete of absent key", log.String("key", key))
		return newError(OpDelete, key, ErrKeyNotFound, nil)
	}
	s.log.Info("deleted record", log.String("key", key))
	return nil
}

// Add stores the encrypted sum of the values under key1 and key2 at
// resultKey. The sum wraps at the domain's integer width; a wrapped sum
// outside the domain is an ErrValidation error and nothing is written.
func (s *Store) Add(key1, key2, resultKey string) error {
	return s.combine(OpAdd, key1, key2, resultKey, s.ctx.Add)
}

// Multiply stores the encrypted product of the values under key1 and key2
// at resultKey. The product wraps at the domain's integer width and must
// land inside the domain, as for Add.
func (s *Store) Multiply(key1, key2, resultKey string) error {
	return s.combine(OpMultiply, key1, key2, resultKey, s.ctx.Multiply)
}

func (s *Store) combine(op, key1, key2, resultKey string, eval func(a, b *fhe.Ciphertext) (*fhe.Ciphertext, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(op, resultKey); err != nil {
		return err
	}
	if resultKey == "" {
		return newError(op, resultKey, ErrValidation, errEmptyKey)
	}
	a, b, err := s.loadPair(op, key1, key2)
	if err != nil {
		return err
	}
	out, err := eval(a, b)
	if err != nil {
		return newError(op, resultKey, ErrDatabase, err)
	}
	ok, err := s.ctx.InDomain(out)
	if err != nil {
		return newError(op, resultKey, ErrDatabase, err)
	}
	if !ok {
		s.log.Warn("rejected result outside domain",
			log.String("key", resultKey),
			log.String("op", op),
		)
		return newError(op, resultKey, ErrValidation, fmt.Errorf("result outside %s", s.ctx.Domain()))
	}
	blob, err := s.ctx.Encode(out)
	if err != nil {
		return newError(op, resultKey, ErrDatabase, err)
	}
	if err := s.table.Upsert(resultKey, blob); err != nil {
		return newError(op, resultKey, ErrDatabase, err)
	}
	s.log.Info("stored record",
		log.String("key", resultKey),
		log.String("op", op),
	)
	return nil
}

// Compare reports whether the values under key1 and key2 are equal. Only
// the equality bit is decrypted.
func (s *Store) Compare(key1, key2 string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpCompare, key1); err != nil {
		return false, err
	}
	a, b, err := s.loadPair(OpCompare, key1, key2)
	if err != nil {
		return false, err
	}
	eq, err := s.ctx.Equals(a, b)
	if err != nil {
		return false, newError(OpCompare, key1, ErrDatabase, err)
	}
	return eq, nil
}

// Ciphertext returns the stored blob under key without decrypting it.
func (s *Store) Ciphertext(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpCiphertext, key); err != nil {
		return nil, err
	}
	blob, found, err := s.table.Lookup(key)
	if err != nil {
		return nil, newError(OpCiphertext, key, ErrDatabase, err)
	}
	if !found {
		return nil, newError(OpCiphertext, key, ErrKeyNotFound, nil)
	}
	if _, err := s.ctx.Decode(blob); err != nil {
		return nil, newError(OpCiphertext, key, ErrEncryption, err)
	}
	return blob, nil
}

// Keys returns every key in storage order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpKeys, ""); err != nil {
		return nil, err
	}
	var keys []string
	err := s.table.Scan(func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, newError(OpKeys, "", ErrDatabase, err)
	}
	return keys, nil
}

// Close closes the underlying table. Later calls fail with ErrDatabase.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.table.Close(); err != nil {
		return newError(OpClose, "", ErrDatabase, err)
	}
	return nil
}

func (s *Store) checkOpen(op, key string) error {
	if s.closed {
		return newError(op, key, ErrDatabase, errClosed)
	}
	return nil
}

func (s *Store) validate(op, key string, value uint64) error {
	if key == "" {
		return newError(op, key, ErrValidation, errEmptyKey)
	}
	if d := s.ctx.Domain(); !d.Contains(value) {
		return newError(op, key, ErrValidation, fmt.Errorf("%d outside %s", value, d))
	}
	return nil
}

// load fetches and decodes the record under key. The caller holds mu.
func (s *Store) load(op, key string) (*fhe.Ciphertext, error) {
	blob, found, err := s.table.Lookup(key)
	if err != nil {
		return nil, newError(op, key, ErrDatabase, err)
	}
	if !found {
		return nil, newError(op, key, ErrKeyNotFound, nil)
	}
	h, err := s.ctx.Decode(blob)
	if err != nil {
		return nil, newError(op, key, ErrEncryption, err)
	}
	return h, nil
}

func (s *Store) loadPair(op, key1, key2 string) (*fhe.Ciphertext, *fhe.Ciphertext, error) {
	a, err := s.load(op, key1)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.load(op, key2)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
