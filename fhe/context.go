// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe provides the encryption context: compiled circuits plus the
// key material they share, exposed as an API over framed ciphertext blobs.
package fhe

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/luxfi/fhe"
	"github.com/luxfi/log"

	"github.com/luxfi/aegisdb/circuit"
	"github.com/luxfi/aegisdb/codec"
)

// DefaultCacheSize is the number of decoded ciphertexts kept per context.
const DefaultCacheSize = 1024

var (
	ErrCompile         = errors.New("failed to build encryption context")
	ErrDecryption      = errors.New("failed to decode ciphertext")
	ErrEvaluation      = errors.New("failed to evaluate circuit")
	ErrOutOfDomain     = errors.New("value outside plaintext domain")
	ErrOptionsConflict = errors.New("encryption context already initialized with different options")
)

// Options configures an encryption context.
type Options struct {
	Domain   circuit.Domain
	ParamSet string
	// KeyFile holds the persisted key material. Empty means ephemeral keys,
	// which makes previously written ciphertexts undecryptable.
	KeyFile string
	// CacheSize bounds the decoded ciphertext cache. Zero disables it.
	CacheSize int
	// Verify checks every circuit against representative inputs at build.
	Verify bool
	Log    log.Logger
}

// DefaultOptions returns the 0..255 domain with ephemeral keys.
func DefaultOptions() Options {
	return Options{
		Domain:    circuit.DefaultDomain(),
		ParamSet:  circuit.DefaultParamSet,
		CacheSize: DefaultCacheSize,
		Verify:    true,
	}
}

func (o Options) withDefaults() Options {
	if o.ParamSet == "" {
		o.ParamSet = circuit.DefaultParamSet
	}
	if o.Log == nil {
		o.Log = log.NewTestLogger(log.InfoLevel)
	}
	return o
}

// sameAs compares everything but the logger.
func (o Options) sameAs(other Options) bool {
	return o.Domain == other.Domain &&
		o.ParamSet == other.ParamSet &&
		o.KeyFile == other.KeyFile &&
		o.CacheSize == other.CacheSize &&
		o.Verify == other.Verify
}

// Ciphertext is a decoded ciphertext handle.
type Ciphertext struct {
	ct *fhe.BitCiphertext
}

// Type returns the encrypted integer type of the handle.
func (c *Ciphertext) Type() fhe.FheUintType {
	return c.ct.Type()
}

// Context owns the compiled circuits and the decoded ciphertext cache. All
// methods are safe for concurrent use.
type Context struct {
	opts     Options
	registry *circuit.Registry

	identity *circuit.Circuit
	add      *circuit.Circuit
	multiply *circuit.Circuit
	equals   *circuit.Circuit
	inDomain *circuit.Circuit

	cache *lru.Cache[[codec.DigestLen]byte, *fhe.BitCiphertext]
	log   log.Logger
}

// New builds an unshared context. Most callers want GetOrInit.
func New(opts Options) (*Context, error) {
	opts = opts.withDefaults()
	if err := opts.Domain.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if opts.CacheSize < 0 {
		return nil, fmt.Errorf("%w: negative cache size %d", ErrCompile, opts.CacheSize)
	}

	keys, err := circuit.LoadOrGenerateKeys(opts.KeyFile, opts.ParamSet, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	registry, err := circuit.Compile(keys, opts.Domain, opts.Verify, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	c := &Context{
		opts:     opts,
		registry: registry,
		log:      opts.Log,
	}
	if c.identity, err = registry.Circuit(circuit.Identity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if c.add, err = registry.Circuit(circuit.Add); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if c.multiply, err = registry.Circuit(circuit.Multiply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if c.equals, err = registry.Circuit(circuit.Equals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if c.inDomain, err = registry.Circuit(circuit.InDomain); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if opts.CacheSize > 0 {
		c.cache, err = lru.New[[codec.DigestLen]byte, *fhe.BitCiphertext](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompile, err)
		}
	}
	return c, nil
}

// Domain returns the plaintext domain.
func (c *Context) Domain() circuit.Domain {
	return c.registry.Domain()
}

// PublicKey returns the framed public key.
func (c *Context) PublicKey() ([]byte, error) {
	return c.registry.Keys().PublicBlob()
}

// Encrypt encrypts v and returns the framed ciphertext.
func (c *Context) Encrypt(v uint64) ([]byte, error) {
	h, err := c.EncryptHandle(v)
	if err != nil {
		return nil, err
	}
	return c.Encode(h)
}

// EncryptHandle encrypts v without framing it.
func (c *Context) EncryptHandle(v uint64) (*Ciphertext, error) {
	d := c.Domain()
	if !d.Contains(v) {
		return nil, fmt.Errorf("%w: %d not in %s", ErrOutOfDomain, v, d)
	}
	ct, err := c.identity.Run(c.identity.Encrypt(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	return &Ciphertext{ct: ct}, nil
}

// Decrypt decodes and decrypts a framed ciphertext.
func (c *Context) Decrypt(blob []byte) (uint64, error) {
	h, err := c.Decode(blob)
	if err != nil {
		return 0, err
	}
	return c.identity.Decrypt(h.ct), nil
}

// Encode frames a handle.
func (c *Context) Encode(h *Ciphertext) ([]byte, error) {
	if h == nil || h.ct == nil {
		return nil, errors.New("nil ciphertext")
	}
	payload, err := h.ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ciphertext: %w", err)
	}
	return codec.Encode(codec.KindCiphertext, uint8(h.ct.Type()), payload)
}

// Decode parses a framed ciphertext. A blob of another integer width than
// the context's domain is rejected.
func (c *Context) Decode(blob []byte) (*Ciphertext, error) {
	f, err := codec.DecodeKind(blob, codec.KindCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	typ := c.identity.Type()
	if got := fhe.FheUintType(f.Tag); got != typ {
		return nil, fmt.Errorf("%w: blob holds %s, context uses %s", ErrDecryption, got, typ)
	}
	if c.cache != nil {
		if ct, ok := c.cache.Get(f.Digest); ok {
			return &Ciphertext{ct: ct}, nil
		}
	}

	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(f.Payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	if ct.Type() != typ || ct.NumBits() != typ.NumBits() {
		return nil, fmt.Errorf("%w: payload holds %d-bit %s", ErrDecryption, ct.NumBits(), ct.Type())
	}
	if c.cache != nil {
		c.cache.Add(f.Digest, ct)
	}
	return &Ciphertext{ct: ct}, nil
}

// Add returns the encrypted sum of a and b, wrapping at the domain width.
func (c *Context) Add(a, b *Ciphertext) (*Ciphertext, error) {
	return c.run(c.add, a, b)
}

// Multiply returns the encrypted product of a and b, wrapping at the
// domain width.
func (c *Context) Multiply(a, b *Ciphertext) (*Ciphertext, error) {
	return c.run(c.multiply, a, b)
}

// Equals evaluates equality homomorphically and decrypts only the result
// bit.
func (c *Context) Equals(a, b *Ciphertext) (bool, error) {
	bit, err := c.run(c.equals, a, b)
	if err != nil {
		return false, err
	}
	return c.equals.Decrypt(bit.ct) == 1, nil
}

// InDomain reports whether h holds a value inside the plaintext domain.
// Only the result bit is decrypted. Every ciphertext of a full-width domain
// is inside it, so no circuit runs in that case.
func (c *Context) InDomain(h *Ciphertext) (bool, error) {
	if h == nil {
		return false, fmt.Errorf("%w: %s: nil operand", ErrEvaluation, circuit.InDomain)
	}
	if c.Domain().Full() {
		return true, nil
	}
	bit, err := c.inDomain.Run(h.ct)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrEvaluation, circuit.InDomain, err)
	}
	return c.inDomain.Decrypt(bit) == 1, nil
}

func (c *Context) run(circ *circuit.Circuit, a, b *Ciphertext) (*Ciphertext, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: %s: nil operand", ErrEvaluation, circ.Kind())
	}
	ct, err := circ.Run(a.ct, b.ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEvaluation, circ.Kind(), err)
	}
	return &Ciphertext{ct: ct}, nil
}

// EvaluateAdd adds two framed ciphertexts without decrypting them.
func (c *Context) EvaluateAdd(a, b []byte) ([]byte, error) {
	return c.evaluate(c.Add, a, b)
}

// EvaluateMultiply multiplies two framed ciphertexts without decrypting
// them.
func (c *Context) EvaluateMultiply(a, b []byte) ([]byte, error) {
	return c.evaluate(c.Multiply, a, b)
}

// EvaluateEquals compares two framed ciphertexts.
func (c *Context) EvaluateEquals(a, b []byte) (bool, error) {
	ha, hb, err := c.decodePair(a, b)
	if err != nil {
		return false, err
	}
	return c.Equals(ha, hb)
}

func (c *Context) evaluate(op func(a, b *Ciphertext) (*Ciphertext, error), a, b []byte) ([]byte, error) {
	ha, hb, err := c.decodePair(a, b)
	if err != nil {
		return nil, err
	}
	out, err := op(ha, hb)
	if err != nil {
		return nil, err
	}
	return c.Encode(out)
}

func (c *Context) decodePair(a, b []byte) (*Ciphertext, *Ciphertext, error) {
	ha, err := c.Decode(a)
	if err != nil {
		return nil, nil, err
	}
	hb, err := c.Decode(b)
	if err != nil {
		return nil, nil, err
	}
	return ha, hb, nil
}
