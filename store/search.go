// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"fmt"

	"github.com/luxfi/log"
)

// Search returns the keys whose value equals value, in storage order. The
// needle is encrypted once and compared against every record with the
// equality circuit, so the cost is one evaluation per record. No plaintext
// index exists.
func (s *Store) Search(value uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(OpSearch, ""); err != nil {
		return nil, err
	}
	if d := s.ctx.Domain(); !d.Contains(value) {
		return nil, newError(OpSearch, "", ErrValidation, fmt.Errorf("%d outside %s", value, d))
	}
	needle, err := s.ctx.EncryptHandle(value)
	if err != nil {
		return nil, newError(OpSearch, "", ErrDatabase, err)
	}

	var (
		matches []string
		scanned int
	)
	err = s.table.Scan(func(key string, blob []byte) error {
		scanned++
		h, err := s.ctx.Decode(blob)
		if err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		eq, err := s.ctx.Equals(needle, h)
		if err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		s.log.Debug("compared record", log.String("key", key))
		if eq {
			matches = append(matches, key)
		}
		return nil
	})
	if err != nil {
		return nil, newError(OpSearch, "", ErrDatabase, err)
	}

	s.log.Info("searched records",
		log.Int("scanned", scanned),
		log.Int("matches", len(matches)),
	)
	return matches, nil
}
