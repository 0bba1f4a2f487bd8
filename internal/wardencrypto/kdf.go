package wardencrypto

import (
	"crypto/sha256"
	"errors"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length of a derived AES-256 key.
	KeySize = 32

	// DefaultKDFIterations is the PBKDF2 round count used for wallet blobs.
	DefaultKDFIterations = 65536
)

// ErrEmptyNonce is returned when DeriveKey is called without a salt.
var ErrEmptyNonce = errors.New("key derivation requires a nonce")

//nolint:gochecknoglobals // Tunable for tests only
var kdfIterations atomic.Int64

func init() {
	kdfIterations.Store(DefaultKDFIterations)
}

// SetKDFIterations overrides the PBKDF2 round count and returns the previous
// value. It exists so tests can avoid the full cost of the KDF.
func SetKDFIterations(n int) int {
	if n < 1 {
		n = 1
	}
	return int(kdfIterations.Swap(int64(n)))
}

// DeriveKey stretches password into a 32 byte key using PBKDF2-HMAC-SHA256
// with the blob nonce as salt. The caller owns the returned buffer and must
// Destroy it.
func DeriveKey(password, nonce []byte) (*SecureBytes, error) {
	if len(nonce) == 0 {
		return nil, ErrEmptyNonce
	}

	raw := pbkdf2.Key(password, nonce, int(kdfIterations.Load()), KeySize, sha256.New)
	defer ZeroBytes(raw)

	return SecureBytesFromSlice(raw)
}
