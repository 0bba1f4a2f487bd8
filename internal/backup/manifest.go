// Package backup exports key files into passphrase-protected age archives
// and restores them into a keystore.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

var (
	// ErrBackupNotFound indicates the backup file was not found.
	ErrBackupNotFound = errors.New("backup file not found")

	// ErrDecryptionFailed indicates a wrong passphrase or a damaged archive.
	ErrDecryptionFailed = errors.New("backup decryption failed")

	// ErrInvalidFormat indicates the backup format is invalid.
	ErrInvalidFormat = errors.New("invalid backup format")
)

// Version is the archive format version.
const Version = 1

// EncryptionMethod names the archive encryption.
const EncryptionMethod = "age-scrypt"

// Archive is one backup file.
type Archive struct {
	Version       int      `json:"version"`
	Manifest      Manifest `json:"manifest"`
	EncryptedData []byte   `json:"encrypted_data"`
	Checksum      string   `json:"checksum"`
}

// Manifest is the readable part of an archive.
type Manifest struct {
	KeyName          string    `json:"key_name"`
	KeyType          string    `json:"key_type"`
	CreatedAt        time.Time `json:"created_at"`
	EncryptionMethod string    `json:"encryption_method"`
	HostInfo         string    `json:"host_info,omitempty"`
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewArchive wraps sealed data.
func NewArchive(m Manifest, sealed []byte) *Archive {
	return &Archive{
		Version:       Version,
		Manifest:      m,
		EncryptedData: sealed,
		Checksum:      Checksum(sealed),
	}
}

// Validate checks structure and checksum without decrypting.
func (a *Archive) Validate() error {
	if a.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, a.Version)
	}
	if a.Manifest.KeyName == "" {
		return fmt.Errorf("%w: missing key name", ErrInvalidFormat)
	}
	if a.Manifest.EncryptionMethod != EncryptionMethod {
		return fmt.Errorf("%w: unknown encryption %q", ErrInvalidFormat, a.Manifest.EncryptionMethod)
	}
	if len(a.EncryptedData) == 0 {
		return fmt.Errorf("%w: no encrypted data", ErrInvalidFormat)
	}
	if got := Checksum(a.EncryptedData); got != a.Checksum {
		return wardenerr.WithDetails(wardenerr.ErrBackupCorrupted, map[string]string{
			"expected": a.Checksum,
			"actual":   got,
		})
	}
	return nil
}
