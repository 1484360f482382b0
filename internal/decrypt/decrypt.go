package decrypt

import (
	"crypto/aes"
	"errors"
	"fmt"

	"chatmedia/internal/keystore"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/metrics"
)

// Scheme identifies one legacy encryption scheme.
type Scheme string

const (
	// SchemeXorAES is the newer scheme: plaintext XORed with the byte
	// key, then full 16-byte blocks encrypted with AES-128-ECB. A tail
	// shorter than one block is stored XOR-only.
	SchemeXorAES Scheme = "xor-aes"
	// SchemeXor is the original scheme: every byte XORed with the key.
	SchemeXor Scheme = "xor"
)

// schemes in detection order, newest first.
var schemes = []Scheme{SchemeXorAES, SchemeXor}

var (
	// ErrKeyMissing indicates decryption was requested but no key is configured.
	ErrKeyMissing = errors.New("no decryption key configured")
	// ErrDecryptionFailed indicates no known scheme produced structurally valid plaintext.
	ErrDecryptionFailed = errors.New("all decryption schemes rejected")
)

// Decrypt auto-detects the encryption scheme of data and returns the
// plaintext together with the scheme that produced it. Detection tries
// each scheme newest-first and accepts the first output whose header
// matches a known image magic. The function performs no I/O.
func Decrypt(data []byte, keys *keystore.KeySet) ([]byte, Scheme, error) {
	if keys == nil {
		return nil, "", ErrKeyMissing
	}
	if _, ok := keys.XorKey(); !ok {
		return nil, "", ErrKeyMissing
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecryptionFailed)
	}

	for _, scheme := range schemes {
		plain, err := apply(scheme, data, keys)
		if err != nil {
			metrics.DecryptAttempts.WithLabelValues(string(scheme), "skipped").Inc()
			continue
		}
		if _, ok := mediakind.SniffImage(plain); ok {
			metrics.DecryptAttempts.WithLabelValues(string(scheme), "ok").Inc()
			return plain, scheme, nil
		}
		metrics.DecryptAttempts.WithLabelValues(string(scheme), "rejected").Inc()
	}

	return nil, "", ErrDecryptionFailed
}

// apply runs the decryption transform of a single scheme. It fails
// only when the scheme's key material is absent; structural validity
// is the caller's job.
func apply(scheme Scheme, data []byte, keys *keystore.KeySet) ([]byte, error) {
	xorKey, _ := keys.XorKey()

	switch scheme {
	case SchemeXor:
		return xorBytes(data, xorKey), nil

	case SchemeXorAES:
		aesKey, ok := keys.AESKey()
		if !ok {
			return nil, ErrKeyMissing
		}
		block, err := aes.NewCipher(aesKey)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		copy(out, data)
		full := len(out) / aes.BlockSize * aes.BlockSize
		for off := 0; off < full; off += aes.BlockSize {
			block.Decrypt(out[off:off+aes.BlockSize], out[off:off+aes.BlockSize])
		}
		for i := range out {
			out[i] ^= xorKey
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown scheme %q", scheme)
	}
}

func xorBytes(data []byte, key byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return out
}
