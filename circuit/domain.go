// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package circuit

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/luxfi/fhe"
)

// Domain is the inclusive range of plaintext integers the circuits are
// compiled for.
type Domain struct {
	Min uint64
	Max uint64
}

// DefaultDomain is the unsigned 8-bit range.
func DefaultDomain() Domain {
	return Domain{Min: 0, Max: 255}
}

// Validate checks that the domain is non-empty.
func (d Domain) Validate() error {
	if d.Min > d.Max {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidDomain, d.Min, d.Max)
	}
	return nil
}

// Contains reports whether v lies inside the domain.
func (d Domain) Contains(v uint64) bool {
	return v >= d.Min && v <= d.Max
}

// Type returns the narrowest encrypted integer type that holds Max.
func (d Domain) Type() fhe.FheUintType {
	switch n := bits.Len64(d.Max); {
	case n <= 4:
		return fhe.FheUint4
	case n <= 8:
		return fhe.FheUint8
	case n <= 16:
		return fhe.FheUint16
	case n <= 32:
		return fhe.FheUint32
	default:
		return fhe.FheUint64
	}
}

// Width is the bit width of Type.
func (d Domain) Width() int {
	return d.Type().NumBits()
}

// Limit is the largest value Type can hold.
func (d Domain) Limit() uint64 {
	w := d.Width()
	if w >= 64 {
		return math.MaxUint64
	}
	return uint64(1)<<w - 1
}

// Full reports whether the domain covers every value of Type, in which
// case no encrypted result can fall outside it.
func (d Domain) Full() bool {
	return d.Min == 0 && d.Max == d.Limit()
}

// Wrap reduces v modulo 2^Width, which is how the compiled adders and
// multipliers treat overflow.
func (d Domain) Wrap(v uint64) uint64 {
	return v & d.Limit()
}

func (d Domain) String() string {
	return fmt.Sprintf("[%d, %d] as %s", d.Min, d.Max, d.Type())
}
