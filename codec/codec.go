// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec frames opaque payloads (serialized ciphertexts and key
// material) into self-describing, integrity-checked blobs.
//
// Frame layout (big-endian):
//
//	magic   [4]byte  "AEGS"
//	version uint8
//	kind    uint8
//	tag     uint8    integer width of a ciphertext, 0 otherwise
//	digest  [32]byte BLAKE3 of payload
//	payload uint32 length || bytes
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/codec/wrappers"
	"github.com/zeebo/blake3"
)

const (
	// Version is the only frame version this package writes and reads.
	Version uint8 = 1

	// DigestLen is the size of the payload digest.
	DigestLen = 32

	// HeaderLen is the size of a frame without its payload bytes.
	HeaderLen = len(magic) + 3 + DigestLen + 4

	// MaxPayloadLen bounds a single payload. A 64-bit TFHE integer at the
	// largest supported parameter set stays well below this.
	MaxPayloadLen = 64 << 20
)

var magic = [4]byte{'A', 'E', 'G', 'S'}

var (
	ErrTruncated          = errors.New("frame truncated")
	ErrBadMagic           = errors.New("frame magic mismatch")
	ErrUnsupportedVersion = errors.New("unsupported frame version")
	ErrDigestMismatch     = errors.New("frame digest mismatch")
	ErrTrailingBytes      = errors.New("trailing bytes after frame")
	ErrPayloadTooLarge    = errors.New("frame payload too large")
	ErrUnexpectedKind     = errors.New("unexpected frame kind")
)

// Kind identifies what a frame carries.
type Kind uint8

const (
	KindCiphertext Kind = iota + 1
	KindSecretKey
	KindPublicKey
)

func (k Kind) String() string {
	switch k {
	case KindCiphertext:
		return "ciphertext"
	case KindSecretKey:
		return "secret-key"
	case KindPublicKey:
		return "public-key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is a decoded blob.
type Frame struct {
	Kind    Kind
	Tag     uint8
	Digest  [DigestLen]byte
	Payload []byte
}

// Encode frames payload. The digest is always recomputed.
func Encode(kind Kind, tag uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	size := HeaderLen + len(payload)
	p := wrappers.Packer{
		MaxSize: size,
		Bytes:   make([]byte, size),
	}
	digest := blake3.Sum256(payload)

	p.PackFixedBytes(magic[:])
	p.PackByte(Version)
	p.PackByte(byte(kind))
	p.PackByte(tag)
	p.PackFixedBytes(digest[:])
	p.PackBytes(payload)
	if p.Errored() {
		return nil, fmt.Errorf("failed to pack frame: %w", p.Err)
	}
	return p.Bytes[:p.Offset], nil
}

// Decode parses and verifies a blob produced by Encode.
func Decode(blob []byte) (Frame, error) {
	var f Frame
	if len(blob) < HeaderLen {
		return f, fmt.Errorf("%w: %d bytes", ErrTruncated, len(blob))
	}
	p := wrappers.Packer{Bytes: blob}

	if m := p.UnpackFixedBytes(len(magic)); !bytes.Equal(m, magic[:]) {
		return f, ErrBadMagic
	}
	if v := p.UnpackByte(); v != Version {
		return f, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	f.Kind = Kind(p.UnpackByte())
	f.Tag = p.UnpackByte()
	copy(f.Digest[:], p.UnpackFixedBytes(DigestLen))

	// The length prefix is checked before UnpackBytes allocates.
	declared := p.UnpackInt()
	if p.Errored() {
		return f, fmt.Errorf("%w: %v", ErrTruncated, p.Err)
	}
	if declared > MaxPayloadLen {
		return f, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, declared)
	}
	f.Payload = p.UnpackFixedBytes(int(declared))
	if p.Errored() {
		return f, fmt.Errorf("%w: %v", ErrTruncated, p.Err)
	}
	if p.Offset != len(blob) {
		return f, fmt.Errorf("%w: %d", ErrTrailingBytes, len(blob)-p.Offset)
	}
	if blake3.Sum256(f.Payload) != f.Digest {
		return f, ErrDigestMismatch
	}
	return f, nil
}

// DecodeKind is Decode plus a check that the frame carries kind.
func DecodeKind(blob []byte, kind Kind) (Frame, error) {
	f, err := Decode(blob)
	if err != nil {
		return f, err
	}
	if f.Kind != kind {
		return f, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedKind, f.Kind, kind)
	}
	return f, nil
}
