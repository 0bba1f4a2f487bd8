package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Extension is the backup file extension.
const Extension = ".wbak"

const maxArchiveSize = 1 << 20

// Service creates and restores archives for one keystore.
type Service struct {
	dir   string
	store *keystore.Store
	now   func() time.Time
}

// NewService writes archives to dir and reads keys from store.
func NewService(dir string, store *keystore.Store) *Service {
	return &Service{dir: dir, store: store, now: time.Now}
}

// Create archives the key called name under passphrase and returns the
// archive with the path it was written to.
func (s *Service) Create(name, passphrase string) (*Archive, string, error) {
	if passphrase == "" {
		return nil, "", wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"reason": "backup passphrase must not be empty",
		})
	}
	entry, err := s.store.Load(name)
	if err != nil {
		return nil, "", err
	}
	plain, err := json.Marshal(entry)
	if err != nil {
		return nil, "", fmt.Errorf("encoding key: %w", err)
	}
	defer wardencrypto.ZeroBytes(plain)

	sealed, err := wardencrypto.EncryptWithPassphrase(plain, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("encrypting backup: %w", err)
	}

	host, _ := os.Hostname()
	a := NewArchive(Manifest{
		KeyName:          entry.Name,
		KeyType:          entry.Type,
		CreatedAt:        s.now().UTC(),
		EncryptionMethod: EncryptionMethod,
		HostInfo:         host,
	}, sealed)

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", entry.Name, a.Manifest.CreatedAt.Format("20060102-150405"), Extension))
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encoding backup: %w", err)
	}
	if err := fileutil.WriteSecret(path, data); err != nil {
		return nil, "", fmt.Errorf("writing backup: %w", err)
	}
	return a, path, nil
}

// Verify checks an archive's structure and checksum. With a non-empty
// passphrase it also decrypts and validates the key inside.
func (s *Service) Verify(path, passphrase string) (*Manifest, error) {
	a, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if passphrase != "" {
		if _, err := open(a, passphrase); err != nil {
			return nil, err
		}
	}
	return &a.Manifest, nil
}

// Restore decrypts an archive and saves its key, under newName when given.
// An existing key of the same name is never overwritten.
func (s *Service) Restore(path, passphrase, newName string) (*keystore.Entry, error) {
	a, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	entry, err := open(a, passphrase)
	if err != nil {
		return nil, err
	}
	if newName != "" {
		entry.Name = newName
	}
	if err := s.store.Save(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns the archive file names in the backup directory.
func (s *Service) List() ([]string, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}
	var out []string
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), Extension) {
			out = append(out, f.Name())
		}
	}
	return out, nil
}

// Read parses an archive file.
func Read(path string) (*Archive, error) {
	data, err := fileutil.ReadLimited(path, maxArchiveSize)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup file: %w", err)
	}
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return &a, nil
}

func open(a *Archive, passphrase string) (*keystore.Entry, error) {
	plain, err := wardencrypto.DecryptWithPassphrase(a.EncryptedData, passphrase)
	if err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrAuthentication, "%v", ErrDecryptionFailed)
	}
	defer wardencrypto.ZeroBytes(plain)

	var e keystore.Entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if e.Name != a.Manifest.KeyName || e.Type != a.Manifest.KeyType {
		return nil, fmt.Errorf("%w: manifest does not match archived key", ErrInvalidFormat)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
