// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package circuit

import (
	"fmt"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"
)

// Registry holds one compiled circuit per Kind, all bound to the same key
// material and domain. It is read-only after Compile returns.
type Registry struct {
	domain   Domain
	keys     *Keys
	circuits [numKinds]*Circuit
}

// Compile builds every circuit for domain. When verify is set each circuit
// is checked against representative inputs before it is registered.
func Compile(keys *Keys, domain Domain, verify bool, logger log.Logger) (*Registry, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: nil keys", ErrKeyMaterial)
	}
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		domain: domain,
		keys:   keys,
	}
	var g errgroup.Group
	for _, kind := range Kinds {
		c := newCircuit(kind, domain, keys)
		r.circuits[kind] = c
		if !verify {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			if err := c.verify(domain); err != nil {
				return err
			}
			logger.Debug("verified circuit",
				log.Stringer("circuit", kind),
				log.Stringer("elapsed", time.Since(start)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("compiled circuits",
		log.Stringer("domain", domain),
		log.Int("circuits", len(Kinds)),
	)
	return r, nil
}

// Circuit returns the compiled circuit for kind.
func (r *Registry) Circuit(kind Kind) (*Circuit, error) {
	if int(kind) >= len(r.circuits) {
		return nil, fmt.Errorf("unknown circuit %s", kind)
	}
	return r.circuits[kind], nil
}

// Domain returns the domain the circuits were compiled for.
func (r *Registry) Domain() Domain {
	return r.domain
}

// Keys returns the key material shared by the circuits.
func (r *Registry) Keys() *Keys {
	return r.keys
}
