// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luxfi/log"
)

// lazyContext publishes a context once it is fully built. A failed build
// leaves it empty so a later call starts over.
type lazyContext struct {
	ptr   atomic.Pointer[Context]
	build func(Options) (*Context, error)

	mu sync.Mutex
}

func (l *lazyContext) get(opts Options) (*Context, error) {
	opts = opts.withDefaults()
	if c := l.ptr.Load(); c != nil {
		return checkOptions(c, opts)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c := l.ptr.Load(); c != nil {
		return checkOptions(c, opts)
	}
	c, err := l.build(opts)
	if err != nil {
		opts.Log.Error("failed to build encryption context", log.Err(err))
		return nil, err
	}
	l.ptr.Store(c)
	return c, nil
}

func checkOptions(c *Context, opts Options) (*Context, error) {
	if !c.opts.sameAs(opts) {
		return nil, fmt.Errorf("%w: have domain %s, asked for %s", ErrOptionsConflict, c.opts.Domain, opts.Domain)
	}
	return c, nil
}

var shared = lazyContext{build: New}

// GetOrInit returns the process-wide context, building it on the first
// call. Concurrent first callers block until the single build finishes and
// all receive the same context.
func GetOrInit(opts Options) (*Context, error) {
	return shared.get(opts)
}
