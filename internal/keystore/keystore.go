package keystore

import (
	"crypto/sha1" //nolint:gosec // PBKDF2-SHA1 matches the source client's key derivation, not used as a bare hash
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// AESKeySize is the required block-cipher key length in bytes.
const AESKeySize = 16

// pbkdf2Iterations matches the iteration count the source client uses
// when deriving the image key from an account passphrase.
const pbkdf2Iterations = 1000

// ErrNoKeys indicates that neither key was configured.
var ErrNoKeys = errors.New("no decryption keys configured")

// KeySet holds the decryption secrets for one pipeline session.
// It is immutable after construction and safe to share across
// concurrent operations.
type KeySet struct {
	xorKey    byte
	hasXorKey bool
	aesKey    []byte
}

// New builds a KeySet from hex-encoded configuration values.
// xorHex is a single hex byte (e.g. "37"); aesHex is 32 hex chars or
// empty when no block-cipher key is configured.
func New(xorHex, aesHex string) (*KeySet, error) {
	ks := &KeySet{}

	if xorHex != "" {
		b, err := hex.DecodeString(xorHex)
		if err != nil {
			return nil, fmt.Errorf("invalid xor key %q: %w", xorHex, err)
		}
		if len(b) != 1 {
			return nil, fmt.Errorf("xor key must be exactly one byte, got %d", len(b))
		}
		ks.xorKey = b[0]
		ks.hasXorKey = true
	}

	if aesHex != "" {
		b, err := hex.DecodeString(aesHex)
		if err != nil {
			return nil, fmt.Errorf("invalid aes key: %w", err)
		}
		if len(b) != AESKeySize {
			return nil, fmt.Errorf("aes key must be %d bytes, got %d", AESKeySize, len(b))
		}
		ks.aesKey = b
	}

	if !ks.hasXorKey && ks.aesKey == nil {
		return nil, ErrNoKeys
	}

	return ks, nil
}

// FromPassphrase derives a KeySet from an account passphrase. The
// first derived byte becomes the XOR key and the next 16 bytes the
// block-cipher key, so one passphrase covers both legacy schemes.
func FromPassphrase(passphrase string, salt []byte) *KeySet {
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 1+AESKeySize, sha1.New)
	return &KeySet{
		xorKey:    derived[0],
		hasXorKey: true,
		aesKey:    derived[1 : 1+AESKeySize],
	}
}

// XorKey returns the byte-XOR key and whether one is configured.
func (k *KeySet) XorKey() (byte, bool) {
	return k.xorKey, k.hasXorKey
}

// AESKey returns the block-cipher key and whether one is configured.
// The returned slice must not be modified.
func (k *KeySet) AESKey() ([]byte, bool) {
	return k.aesKey, k.aesKey != nil
}
