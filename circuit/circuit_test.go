// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package circuit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/luxfi/fhe"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var (
	testKeysOnce sync.Once
	testKeys     *Keys
	testKeysErr  error
)

// sharedKeys generates one key set for the whole package; bootstrap key
// generation dominates test time otherwise.
func sharedKeys(t *testing.T) *Keys {
	t.Helper()
	testKeysOnce.Do(func() {
		testKeys, testKeysErr = GenerateKeys(DefaultParamSet)
	})
	require.NoError(t, testKeysErr)
	return testKeys
}

func testLogger() log.Logger {
	return log.NewTestLogger(log.InfoLevel)
}

func TestDomainType(t *testing.T) {
	tests := []struct {
		name   string
		domain Domain
		typ    fhe.FheUintType
		width  int
	}{
		{"nibble", Domain{Min: 0, Max: 15}, fhe.FheUint4, 4},
		{"default", DefaultDomain(), fhe.FheUint8, 8},
		{"just_over_byte", Domain{Min: 10, Max: 256}, fhe.FheUint16, 16},
		{"word", Domain{Min: 0, Max: 1 << 20}, fhe.FheUint32, 32},
		{"wide", Domain{Min: 0, Max: 1 << 40}, fhe.FheUint64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.typ, tt.domain.Type())
			require.Equal(t, tt.width, tt.domain.Width())
		})
	}
}

func TestDomainContainsAndWrap(t *testing.T) {
	d := Domain{Min: 5, Max: 200}
	require.NoError(t, d.Validate())
	require.True(t, d.Contains(5))
	require.True(t, d.Contains(200))
	require.False(t, d.Contains(4))
	require.False(t, d.Contains(201))

	require.Equal(t, uint64(44), d.Wrap(300))
	require.Equal(t, uint64(88), d.Wrap(600))
	require.Equal(t, uint64(1<<40+1), Domain{Max: 1 << 40}.Wrap(1<<40+1))

	require.Equal(t, uint64(255), d.Limit())
	require.False(t, d.Full())
	require.False(t, Domain{Min: 0, Max: 200}.Full())
	require.True(t, DefaultDomain().Full())
	require.True(t, Domain{Min: 0, Max: 15}.Full())

	require.ErrorIs(t, Domain{Min: 9, Max: 3}.Validate(), ErrInvalidDomain)
}

func TestKindArity(t *testing.T) {
	require.Equal(t, 1, Identity.Arity())
	require.Equal(t, 2, Add.Arity())
	require.Equal(t, 2, Multiply.Arity())
	require.Equal(t, 2, Equals.Arity())
	require.Equal(t, 1, InDomain.Arity())
	require.Equal(t, "in-domain", InDomain.String())
	require.Equal(t, "equals", Equals.String())
	require.Equal(t, "circuit(9)", Kind(9).String())
}

func TestNewParameters(t *testing.T) {
	for _, name := range []string{ParamSetPN10QP27, ParamSetPN11QP54} {
		_, err := NewParameters(name)
		require.NoError(t, err, name)
	}
	_, err := NewParameters("PN99")
	require.ErrorIs(t, err, ErrUnknownParamSet)
}

// TestKeysRoundTrip checks that reloaded keys decrypt ciphertexts made
// before marshalling.
func TestKeysRoundTrip(t *testing.T) {
	keys := sharedKeys(t)

	blob, err := keys.MarshalSecret()
	require.NoError(t, err)

	loaded, err := UnmarshalKeys(blob)
	require.NoError(t, err)
	require.Equal(t, keys.ParamSet, loaded.ParamSet)

	ct := fhe.NewBitwiseEncryptor(keys.Params, keys.Secret).EncryptUint64(173, fhe.FheUint8)
	got := fhe.NewBitwiseDecryptor(loaded.Params, loaded.Secret).DecryptUint64(ct)
	require.Equal(t, uint64(173), got)

	blob[len(blob)-1] ^= 0xFF
	_, err = UnmarshalKeys(blob)
	require.ErrorIs(t, err, ErrKeyMaterial)

	pub, err := keys.PublicBlob()
	require.NoError(t, err)
	_, err = UnmarshalKeys(pub)
	require.ErrorIs(t, err, ErrKeyMaterial)
}

func TestLoadOrGenerateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "aegis.keys")
	logger := testLogger()

	first, err := LoadOrGenerateKeys(path, DefaultParamSet, logger)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrGenerateKeys(path, DefaultParamSet, logger)
	require.NoError(t, err)

	ct := fhe.NewBitwiseEncryptor(first.Params, first.Secret).EncryptUint64(7, fhe.FheUint8)
	got := fhe.NewBitwiseDecryptor(second.Params, second.Secret).DecryptUint64(ct)
	require.Equal(t, uint64(7), got)

	_, err = LoadOrGenerateKeys(path, ParamSetPN11QP54, logger)
	require.ErrorIs(t, err, ErrKeyMaterial)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = LoadOrGenerateKeys(path, DefaultParamSet, logger)
	require.ErrorIs(t, err, ErrKeyMaterial)
}

func TestCompileRejectsBadInput(t *testing.T) {
	_, err := Compile(nil, DefaultDomain(), false, testLogger())
	require.ErrorIs(t, err, ErrKeyMaterial)

	_, err = Compile(sharedKeys(t), Domain{Min: 2, Max: 1}, false, testLogger())
	require.ErrorIs(t, err, ErrInvalidDomain)
}

// TestCircuits evaluates each compiled circuit on encrypted inputs.
func TestCircuits(t *testing.T) {
	reg, err := Compile(sharedKeys(t), DefaultDomain(), false, testLogger())
	require.NoError(t, err)
	require.Equal(t, DefaultDomain(), reg.Domain())

	tests := []struct {
		name   string
		kind   Kind
		inputs []uint64
		want   uint64
	}{
		{"identity", Identity, []uint64{42}, 42},
		{"add", Add, []uint64{10, 20}, 30},
		{"add_wraps", Add, []uint64{200, 100}, 44},
		{"multiply", Multiply, []uint64{10, 20}, 200},
		{"equals_true", Equals, []uint64{10, 10}, 1},
		{"equals_false", Equals, []uint64{10, 11}, 0},
		{"in_domain_full_width", InDomain, []uint64{255}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := reg.Circuit(tt.kind)
			require.NoError(t, err)
			require.Equal(t, fhe.FheUint8, c.Type())

			got, err := c.EncryptRunDecrypt(tt.inputs...)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestInDomain checks the range circuit on domains narrower than their
// integer type.
func TestInDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain Domain
		value  uint64
		want   uint64
	}{
		{"below_min", Domain{Min: 5, Max: 200}, 4, 0},
		{"zero_below_min", Domain{Min: 5, Max: 200}, 0, 0},
		{"at_min", Domain{Min: 5, Max: 200}, 5, 1},
		{"at_max", Domain{Min: 5, Max: 200}, 200, 1},
		{"above_max", Domain{Min: 5, Max: 200}, 201, 0},
		{"type_limit", Domain{Min: 5, Max: 200}, 255, 0},
		{"upper_bound_only", Domain{Min: 0, Max: 200}, 0, 1},
		{"upper_bound_only_above", Domain{Min: 0, Max: 200}, 250, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Compile(sharedKeys(t), tt.domain, false, testLogger())
			require.NoError(t, err)
			c, err := reg.Circuit(InDomain)
			require.NoError(t, err)

			got, err := c.EncryptRunDecrypt(tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunRejectsBadInputs(t *testing.T) {
	reg, err := Compile(sharedKeys(t), DefaultDomain(), false, testLogger())
	require.NoError(t, err)

	add, err := reg.Circuit(Add)
	require.NoError(t, err)

	a := add.Encrypt(1)
	_, err = add.Run(a)
	require.ErrorIs(t, err, ErrArity)

	_, err = add.Run(a, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)

	enc := fhe.NewBitwiseEncryptor(reg.Keys().Params, reg.Keys().Secret)
	wide := enc.EncryptUint64(1, fhe.FheUint16)
	_, err = add.Run(a, wide)
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = reg.Circuit(Kind(200))
	require.Error(t, err)
}

// TestCompileVerify runs the representative-input check for every circuit.
func TestCompileVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping circuit verification in short mode")
	}
	_, err := Compile(sharedKeys(t), Domain{Min: 0, Max: 15}, true, testLogger())
	require.NoError(t, err)
}

func TestConcurrentEvaluation(t *testing.T) {
	reg, err := Compile(sharedKeys(t), DefaultDomain(), false, testLogger())
	require.NoError(t, err)
	add, err := reg.Circuit(Add)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]uint64, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = add.EncryptRunDecrypt(uint64(i), uint64(i))
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, uint64(2*i), results[i])
	}
}
