package wardencrypto

import (
	"crypto/rand"
	"io"
)

// Reader is the randomness source for nonces and generated secrets.
//
//nolint:gochecknoglobals // Package-level RNG is required for testability
var Reader io.Reader = rand.Reader

// RandomBytes reads n bytes from Reader.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewNonce returns a fresh 12 byte GCM nonce.
func NewNonce() ([]byte, error) {
	return RandomBytes(NonceSize)
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
