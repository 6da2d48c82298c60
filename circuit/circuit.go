// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package circuit compiles and holds the fixed set of homomorphic circuits
// (identity, add, multiply, equals, in-domain) over one bounded integer
// domain.
package circuit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/fhe"
)

var (
	ErrUnknownParamSet = errors.New("unknown parameter set")
	ErrInvalidDomain   = errors.New("invalid plaintext domain")
	ErrKeyMaterial     = errors.New("invalid key material")
	ErrVerification    = errors.New("circuit verification failed")
	ErrArity           = errors.New("wrong number of circuit inputs")
	ErrTypeMismatch    = errors.New("ciphertext type mismatch")
)

// Kind is the function shape of a circuit.
type Kind uint8

const (
	Identity Kind = iota
	Add
	Multiply
	Equals
	InDomain

	numKinds
)

// Kinds lists every circuit a registry compiles.
var Kinds = []Kind{Identity, Add, Multiply, Equals, InDomain}

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case Add:
		return "add"
	case Multiply:
		return "multiply"
	case Equals:
		return "equals"
	case InDomain:
		return "in-domain"
	default:
		return fmt.Sprintf("circuit(%d)", uint8(k))
	}
}

// Arity is the number of encrypted inputs the circuit takes.
func (k Kind) Arity() int {
	switch k {
	case Identity, InDomain:
		return 1
	default:
		return 2
	}
}

// worker bundles the library objects one evaluation needs. Library
// evaluators keep scratch buffers, so a worker is never used by two
// goroutines at once.
type worker struct {
	enc  *fhe.BitwiseEncryptor
	dec  *fhe.BitwiseDecryptor
	eval *fhe.BitwiseEvaluator
}

// Circuit evaluates one function over encrypted integers of one type.
// It is immutable after compilation and safe for concurrent use.
type Circuit struct {
	kind    Kind
	domain  Domain
	typ     fhe.FheUintType
	workers sync.Pool
}

func newCircuit(kind Kind, domain Domain, keys *Keys) *Circuit {
	c := &Circuit{
		kind:   kind,
		domain: domain,
		typ:    domain.Type(),
	}
	c.workers.New = func() any {
		return &worker{
			enc:  fhe.NewBitwiseEncryptor(keys.Params, keys.Secret),
			dec:  fhe.NewBitwiseDecryptor(keys.Params, keys.Secret),
			eval: fhe.NewBitwiseEvaluator(keys.Params, keys.Bootstrap, keys.Secret),
		}
	}
	return c
}

// Kind returns the function shape.
func (c *Circuit) Kind() Kind {
	return c.kind
}

// Type returns the encrypted integer type the circuit accepts.
func (c *Circuit) Type() fhe.FheUintType {
	return c.typ
}

func (c *Circuit) acquire() *worker {
	return c.workers.Get().(*worker)
}

func (c *Circuit) release(w *worker) {
	c.workers.Put(w)
}

// Encrypt encrypts v as the circuit's input type.
func (c *Circuit) Encrypt(v uint64) *fhe.BitCiphertext {
	w := c.acquire()
	defer c.release(w)
	return w.enc.EncryptUint64(v, c.typ)
}

// Decrypt decrypts a ciphertext produced by this circuit's key material.
func (c *Circuit) Decrypt(ct *fhe.BitCiphertext) uint64 {
	w := c.acquire()
	defer c.release(w)
	return w.dec.DecryptUint64(ct)
}

// Run evaluates the circuit on encrypted inputs. Equals and InDomain yield a
// one-bit ciphertext holding 1 when the predicate holds and 0 otherwise.
func (c *Circuit) Run(inputs ...*fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
	if len(inputs) != c.kind.Arity() {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, c.kind, c.kind.Arity(), len(inputs))
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("%w: input %d is nil", ErrTypeMismatch, i)
		}
		if in.Type() != c.typ {
			return nil, fmt.Errorf("%w: input %d is %s, circuit takes %s", ErrTypeMismatch, i, in.Type(), c.typ)
		}
	}

	w := c.acquire()
	defer c.release(w)

	switch c.kind {
	case Identity:
		return inputs[0], nil
	case Add:
		return w.eval.Add(inputs[0], inputs[1])
	case Multiply:
		return w.eval.Mul(inputs[0], inputs[1])
	case Equals:
		bit, err := w.eval.Eq(inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		return fhe.WrapBoolCiphertext(bit), nil
	case InDomain:
		return c.inDomain(w, inputs[0])
	default:
		return nil, fmt.Errorf("unknown circuit %s", c.kind)
	}
}

// inDomain computes NOT(x < Min OR Max < x). Bounds that coincide with the
// limits of the type are skipped.
func (c *Circuit) inDomain(w *worker, x *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
	var outside *fhe.BitCiphertext
	if c.domain.Min > 0 {
		below, err := w.eval.Lt(x, w.enc.EncryptUint64(c.domain.Min, c.typ))
		if err != nil {
			return nil, err
		}
		outside = fhe.WrapBoolCiphertext(below)
	}
	if c.domain.Max < c.domain.Limit() {
		bit, err := w.eval.Lt(w.enc.EncryptUint64(c.domain.Max, c.typ), x)
		if err != nil {
			return nil, err
		}
		above := fhe.WrapBoolCiphertext(bit)
		if outside == nil {
			outside = above
		} else if outside, err = w.eval.Or(outside, above); err != nil {
			return nil, err
		}
	}
	if outside == nil {
		return w.enc.EncryptUint64(1, fhe.FheBool), nil
	}
	return w.eval.Not(outside), nil
}

// EncryptRunDecrypt encrypts plaintext inputs, runs the circuit and
// decrypts the result.
func (c *Circuit) EncryptRunDecrypt(values ...uint64) (uint64, error) {
	inputs := make([]*fhe.BitCiphertext, len(values))
	for i, v := range values {
		inputs[i] = c.Encrypt(v)
	}
	out, err := c.Run(inputs...)
	if err != nil {
		return 0, err
	}
	return c.Decrypt(out), nil
}

// expected is the plaintext model of the circuit.
func (c *Circuit) expected(d Domain, values ...uint64) uint64 {
	switch c.kind {
	case Add:
		return d.Wrap(values[0] + values[1])
	case Multiply:
		return d.Wrap(values[0] * values[1])
	case Equals:
		if values[0] == values[1] {
			return 1
		}
		return 0
	case InDomain:
		if d.Contains(values[0]) {
			return 1
		}
		return 0
	default:
		return values[0]
	}
}

// samples is the representative input set the circuit is checked against.
func (c *Circuit) samples(d Domain) [][]uint64 {
	switch c.kind {
	case Identity:
		return [][]uint64{{d.Min}, {d.Max}}
	case InDomain:
		s := [][]uint64{{d.Min}, {d.Max}}
		if d.Min > 0 {
			s = append(s, []uint64{d.Min - 1})
		}
		if d.Max < d.Limit() {
			s = append(s, []uint64{d.Max + 1})
		}
		return s
	case Add:
		return [][]uint64{{d.Min, d.Max}}
	case Multiply:
		return [][]uint64{{d.Max, d.Max}}
	default:
		s := [][]uint64{{d.Min, d.Min}}
		if d.Min != d.Max {
			s = append(s, []uint64{d.Min, d.Max})
		}
		return s
	}
}

// verify runs the circuit on its representative inputs and compares the
// results with the plaintext model.
func (c *Circuit) verify(d Domain) error {
	for _, in := range c.samples(d) {
		got, err := c.EncryptRunDecrypt(in...)
		if err != nil {
			return fmt.Errorf("%w: %s%v: %w", ErrVerification, c.kind, in, err)
		}
		if want := c.expected(d, in...); got != want {
			return fmt.Errorf("%w: %s%v = %d, want %d", ErrVerification, c.kind, in, got, want)
		}
	}
	return nil
}
