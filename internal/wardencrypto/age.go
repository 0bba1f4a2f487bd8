package wardencrypto

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
)

//nolint:gochecknoglobals // Tunable for tests only
var scryptWorkFactor atomic.Int32

// SetScryptWorkFactor sets the scrypt log2(N) used by EncryptWithPassphrase.
// Zero restores the age default. The previous value is returned.
func SetScryptWorkFactor(logN int) int {
	return int(scryptWorkFactor.Swap(int32(logN))) //nolint:gosec // small positive value
}

// EncryptWithPassphrase seals plaintext into an age file using an scrypt
// recipient.
func EncryptWithPassphrase(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if wf := scryptWorkFactor.Load(); wf > 0 {
		recipient.SetWorkFactor(int(wf))
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// DecryptWithPassphrase opens an age file sealed by EncryptWithPassphrase.
func DecryptWithPassphrase(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}
