// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package circuit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/codec/wrappers"
	"github.com/luxfi/fhe"
	"github.com/luxfi/log"

	"github.com/luxfi/aegisdb/codec"
)

// Parameter set names accepted by NewParameters.
const (
	ParamSetPN10QP27 = "PN10QP27"
	ParamSetPN11QP54 = "PN11QP54"

	DefaultParamSet = ParamSetPN10QP27
)

const maxParamSetNameLen = 64

// NewParameters resolves a named TFHE parameter set.
func NewParameters(name string) (fhe.Parameters, error) {
	var lit fhe.ParametersLiteral
	switch name {
	case ParamSetPN10QP27:
		lit = fhe.PN10QP27
	case ParamSetPN11QP54:
		lit = fhe.PN11QP54
	default:
		return fhe.Parameters{}, fmt.Errorf("%w: %q", ErrUnknownParamSet, name)
	}
	params, err := fhe.NewParametersFromLiteral(lit)
	if err != nil {
		return fhe.Parameters{}, fmt.Errorf("failed to build parameter set %s: %w", name, err)
	}
	return params, nil
}

// Keys is the key material shared by every circuit of a registry.
type Keys struct {
	ParamSet  string
	Params    fhe.Parameters
	Secret    *fhe.SecretKey
	Public    *fhe.PublicKey
	Bootstrap *fhe.BootstrapKey
}

// GenerateKeys creates fresh key material for the named parameter set.
func GenerateKeys(paramSet string) (*Keys, error) {
	params, err := NewParameters(paramSet)
	if err != nil {
		return nil, err
	}
	kg := fhe.NewKeyGenerator(params)
	sk, pk := kg.GenKeyPair()
	return &Keys{
		ParamSet:  paramSet,
		Params:    params,
		Secret:    sk,
		Public:    pk,
		Bootstrap: kg.GenBootstrapKey(sk),
	}, nil
}

// MarshalSecret frames the parameter set name, secret key and public key.
// The bootstrap key is not included: it is regenerated from the secret key
// on load.
func (k *Keys) MarshalSecret() ([]byte, error) {
	skBytes, err := k.Secret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret key: %w", err)
	}
	pkBytes, err := k.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	size := wrappers.ShortLen + len(k.ParamSet) + 2*wrappers.IntLen + len(skBytes) + len(pkBytes)
	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, size)}
	p.PackStr(k.ParamSet)
	p.PackBytes(skBytes)
	p.PackBytes(pkBytes)
	if p.Errored() {
		return nil, fmt.Errorf("failed to pack key material: %w", p.Err)
	}
	return codec.Encode(codec.KindSecretKey, 0, p.Bytes[:p.Offset])
}

// UnmarshalKeys restores key material written by MarshalSecret.
func UnmarshalKeys(blob []byte) (*Keys, error) {
	f, err := codec.DecodeKind(blob, codec.KindSecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}
	p := wrappers.Packer{Bytes: f.Payload}
	paramSet := p.UnpackStr()
	skBytes := p.UnpackBytes()
	pkBytes := p.UnpackBytes()
	if p.Errored() {
		return nil, fmt.Errorf("%w: %w", ErrKeyMaterial, p.Err)
	}
	if len(paramSet) > maxParamSetNameLen {
		return nil, fmt.Errorf("%w: parameter set name too long", ErrKeyMaterial)
	}

	params, err := NewParameters(paramSet)
	if err != nil {
		return nil, err
	}
	sk := new(fhe.SecretKey)
	if err := sk.UnmarshalBinary(skBytes); err != nil {
		return nil, fmt.Errorf("%w: secret key: %w", ErrKeyMaterial, err)
	}
	pk := new(fhe.PublicKey)
	if err := pk.UnmarshalBinary(pkBytes); err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrKeyMaterial, err)
	}
	return &Keys{
		ParamSet:  paramSet,
		Params:    params,
		Secret:    sk,
		Public:    pk,
		Bootstrap: fhe.NewKeyGenerator(params).GenBootstrapKey(sk),
	}, nil
}

// PublicBlob frames the public key so it can be handed to encrypt-only
// clients.
func (k *Keys) PublicBlob() ([]byte, error) {
	pkBytes, err := k.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return codec.Encode(codec.KindPublicKey, 0, pkBytes)
}

// LoadOrGenerateKeys reads key material from path, or generates it and
// writes it there when the file does not exist yet. An empty path yields
// ephemeral keys.
func LoadOrGenerateKeys(path, paramSet string, logger log.Logger) (*Keys, error) {
	if path == "" {
		logger.Warn("no key file configured, using ephemeral keys")
		return GenerateKeys(paramSet)
	}

	blob, err := os.ReadFile(path)
	switch {
	case err == nil:
		keys, err := UnmarshalKeys(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if keys.ParamSet != paramSet {
			return nil, fmt.Errorf("%w: %s holds %s keys, configured %s",
				ErrKeyMaterial, path, keys.ParamSet, paramSet)
		}
		logger.Info("loaded key material", log.String("path", path))
		return keys, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	keys, err := GenerateKeys(paramSet)
	if err != nil {
		return nil, err
	}
	blob, err = keys.MarshalSecret()
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, blob); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("generated key material", log.String("path", path))
	return keys, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
