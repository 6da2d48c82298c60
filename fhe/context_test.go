// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/luxfi/fhe"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/aegisdb/circuit"
	"github.com/luxfi/aegisdb/codec"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Verify = false
	opts.Log = log.NewTestLogger(log.InfoLevel)
	return opts
}

func testContext(t *testing.T) *Context {
	t.Helper()
	c, err := GetOrInit(testOptions())
	require.NoError(t, err)
	return c
}

func TestEncryptDecrypt(t *testing.T) {
	c := testContext(t)

	for _, v := range []uint64{0, 1, 42, 255} {
		blob, err := c.Encrypt(v)
		require.NoError(t, err)

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	_, err := c.Encrypt(256)
	require.ErrorIs(t, err, ErrOutOfDomain)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	c := testContext(t)

	blob, err := c.Encrypt(99)
	require.NoError(t, err)

	h, err := c.Decode(blob)
	require.NoError(t, err)
	again, err := c.Encode(h)
	require.NoError(t, err)

	got, err := c.Decrypt(again)
	require.NoError(t, err)
	require.Equal(t, uint64(99), got)
}

func TestDecryptRejectsBadBlobs(t *testing.T) {
	c := testContext(t)

	blob, err := c.Encrypt(7)
	require.NoError(t, err)

	flipped := append([]byte(nil), blob...)
	flipped[len(flipped)-1] ^= 1

	otherWidth, err := codec.Encode(codec.KindCiphertext, uint8(fhe.FheUint16), []byte("x"))
	require.NoError(t, err)
	notCiphertext, err := codec.Encode(codec.KindPublicKey, 0, []byte("x"))
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"truncated", blob[:len(blob)/2]},
		{"corrupted", flipped},
		{"other_width", otherWidth},
		{"not_ciphertext", notCiphertext},
		{"garbage_payload", mustEncode(t, []byte("not a ciphertext"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.blob)
			require.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func mustEncode(t *testing.T, payload []byte) []byte {
	t.Helper()
	blob, err := codec.Encode(codec.KindCiphertext, uint8(circuit.DefaultDomain().Type()), payload)
	require.NoError(t, err)
	return blob
}

// TestEvaluate runs the circuits on framed ciphertexts.
func TestEvaluate(t *testing.T) {
	c := testContext(t)

	enc := func(v uint64) []byte {
		blob, err := c.Encrypt(v)
		require.NoError(t, err)
		return blob
	}
	ten, twenty, otherTen := enc(10), enc(20), enc(10)

	sum, err := c.EvaluateAdd(ten, twenty)
	require.NoError(t, err)
	got, err := c.Decrypt(sum)
	require.NoError(t, err)
	require.Equal(t, uint64(30), got)

	wrapped, err := c.EvaluateAdd(enc(200), enc(100))
	require.NoError(t, err)
	got, err = c.Decrypt(wrapped)
	require.NoError(t, err)
	require.Equal(t, uint64(44), got)

	prod, err := c.EvaluateMultiply(ten, twenty)
	require.NoError(t, err)
	got, err = c.Decrypt(prod)
	require.NoError(t, err)
	require.Equal(t, uint64(200), got)

	eq, err := c.EvaluateEquals(ten, otherTen)
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = c.EvaluateEquals(ten, twenty)
	require.NoError(t, err)
	require.False(t, eq)

	_, err = c.EvaluateAdd(ten, []byte("junk"))
	require.ErrorIs(t, err, ErrDecryption)
}

func TestInDomainFullWidth(t *testing.T) {
	c := testContext(t)
	require.True(t, c.Domain().Full())

	h, err := c.EncryptHandle(255)
	require.NoError(t, err)
	ok, err := c.InDomain(h)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.InDomain(nil)
	require.ErrorIs(t, err, ErrEvaluation)
}

func TestPublicKey(t *testing.T) {
	blob, err := testContext(t).PublicKey()
	require.NoError(t, err)

	_, err = codec.DecodeKind(blob, codec.KindPublicKey)
	require.NoError(t, err)
}

func TestGetOrInitConflict(t *testing.T) {
	c := testContext(t)

	again, err := GetOrInit(testOptions())
	require.NoError(t, err)
	require.Same(t, c, again)

	opts := testOptions()
	opts.Domain = circuit.Domain{Min: 0, Max: 15}
	_, err = GetOrInit(opts)
	require.ErrorIs(t, err, ErrOptionsConflict)
}

func TestNewRejectsBadOptions(t *testing.T) {
	opts := testOptions()
	opts.Domain = circuit.Domain{Min: 10, Max: 1}
	_, err := New(opts)
	require.ErrorIs(t, err, ErrCompile)
	require.ErrorIs(t, err, circuit.ErrInvalidDomain)

	opts = testOptions()
	opts.ParamSet = "PN1"
	_, err = New(opts)
	require.ErrorIs(t, err, ErrCompile)
	require.ErrorIs(t, err, circuit.ErrUnknownParamSet)
}

// TestLazyContextBuildsOnce races first callers against a slow build.
func TestLazyContextBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	release := make(chan struct{})
	l := lazyContext{
		build: func(opts Options) (*Context, error) {
			builds.Add(1)
			<-release
			return &Context{opts: opts}, nil
		},
	}

	const callers = 16
	var wg sync.WaitGroup
	got := make([]*Context, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = l.get(testOptions())
		}()
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), builds.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		require.Same(t, got[0], got[i])
	}
}

func TestLazyContextDoesNotCacheFailure(t *testing.T) {
	errBuild := errors.New("build failed")
	var builds int
	l := lazyContext{
		build: func(opts Options) (*Context, error) {
			builds++
			if builds == 1 {
				return nil, errBuild
			}
			return &Context{opts: opts}, nil
		},
	}

	_, err := l.get(testOptions())
	require.ErrorIs(t, err, errBuild)
	require.Nil(t, l.ptr.Load())

	c, err := l.get(testOptions())
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, 2, builds)
}
