// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Store is an *Error matching one of
// these with errors.Is. ErrKeyNotFound errors also match ErrDatabase.
var (
	ErrValidation  = errors.New("validation error")
	ErrKeyNotFound = errors.New("key not found")
	ErrEncryption  = errors.New("encryption error")
	ErrDatabase    = errors.New("database error")
)

var (
	errClosed   = errors.New("store is closed")
	errEmptyKey = errors.New("empty key")
)

// Error describes a failed store operation.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := "store: " + e.Op
	if e.Key != "" {
		msg += fmt.Sprintf(" %q", e.Key)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Kind == ErrKeyNotFound {
		errs = append(errs, ErrDatabase)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op, key string, kind, err error) error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}
