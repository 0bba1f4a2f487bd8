package wardencrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// NonceSize is the GCM nonce length stored in every blob.
const NonceSize = 12

var (
	// ErrAuthenticationFailure means the GCM tag did not verify. For a
	// password protected blob this almost always means a wrong password.
	ErrAuthenticationFailure = errors.New("authentication tag mismatch")

	// ErrCrypto covers every other sealing or opening failure.
	ErrCrypto = errors.New("cryptographic operation failed")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCrypto, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns ciphertext||tag.
// The nonce is not included in the output.
func Encrypt(nonce, key, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrCrypto, NonceSize, len(nonce))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens nonce||ciphertext||tag produced by NewNonce and Encrypt.
func Decrypt(key, nonceAndCiphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonceAndCiphertext) < NonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrCrypto, len(nonceAndCiphertext))
	}

	nonce := nonceAndCiphertext[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, nonceAndCiphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}
