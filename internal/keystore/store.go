// Package keystore persists serialized wallet keys as one JSON file per key
// under <home>/keys.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mrz1836/go-sanitize"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/walletkey"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// FormatVersion is the key file format version.
	FormatVersion = 1

	// MaxNameLength bounds key names.
	MaxNameLength = 64

	fileExtension = ".key"

	// Key files hold a few hundred bytes; anything near this is not ours.
	maxFileSize = 64 << 10
)

//nolint:gochecknoglobals // Compiled once
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Entry is the on-disk form of one key.
type Entry struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Blob      []byte    `json:"blob"`
}

// NewEntry wraps the serialized form of k.
func NewEntry(name string, k walletkey.Key) *Entry {
	return &Entry{
		Version:   FormatVersion,
		Name:      name,
		Type:      k.Type().Name,
		CreatedAt: time.Now().UTC(),
		Blob:      k.Serialize(),
	}
}

// Validate checks the entry against its own blob header.
func (e *Entry) Validate() error {
	if e.Version != FormatVersion {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"reason":  "unsupported key file version",
			"version": fmt.Sprint(e.Version),
		})
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	t, err := walletkey.BlobType(e.Blob)
	if err != nil {
		return err
	}
	if t.Name != e.Type {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"reason": "key file type does not match blob",
			"file":   e.Type,
			"blob":   t.Name,
		})
	}
	return nil
}

// ValidateName reports whether name may be used as a key name.
func ValidateName(name string) error {
	if nameRegex.MatchString(name) {
		return nil
	}
	err := wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
		"reason": "key names use 1-64 letters, digits, '-' or '_'",
		"name":   name,
	})
	if s := SuggestName(name); s != "" {
		err = wardenerr.WithSuggestion(err, fmt.Sprintf("try %q", s))
	}
	return err
}

// SuggestName strips name down to ASCII letters, digits, '-' and '_' and
// truncates it to MaxNameLength. It returns "" when nothing usable is left.
func SuggestName(name string) string {
	s := sanitize.PathName(name)
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// Store keeps key files in one directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Save writes a new key file. It fails with ErrKeyExists when the name is
// taken.
func (s *Store) Save(e *Entry) error {
	exists, err := s.Exists(e.Name)
	if err != nil {
		return err
	}
	if exists {
		return wardenerr.WithDetails(wardenerr.ErrKeyExists, map[string]string{"name": e.Name})
	}
	return s.write(e)
}

// Replace overwrites an existing key file, keeping its creation time.
func (s *Store) Replace(e *Entry) error {
	old, err := s.Load(e.Name)
	if err != nil {
		return err
	}
	e.CreatedAt = old.CreatedAt
	return s.write(e)
}

func (s *Store) write(e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	path, err := s.path(e.Name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}
	if err := fileutil.WriteSecret(path, data); err != nil {
		return wardenerr.Wrap(err, "writing key %s", e.Name)
	}
	return nil
}

// Load reads one key file.
func (s *Store) Load(name string) (*Entry, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := fileutil.ReadLimited(path, maxFileSize)
	if errors.Is(err, os.ErrNotExist) {
		return nil, wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrKeyNotFound, map[string]string{"name": name}),
			"run 'warden key list' to see stored keys")
	}
	if err != nil {
		return nil, wardenerr.Wrap(err, "reading key %s", name)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"reason": "malformed key file",
			"name":   name,
		})
	}
	if e.Name != name {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"reason": "key file name does not match its path",
			"name":   name,
		})
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Exists reports whether a key file for name exists.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking key file: %w", err)
	}
}

// List returns every readable key, sorted by name. Files that fail to parse
// are skipped.
func (s *Store) List() ([]*Entry, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading key directory: %w", err)
	}

	var out []*Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileExtension) {
			continue
		}
		e, err := s.Load(strings.TrimSuffix(f.Name(), fileExtension))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a key file.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	removed, err := fileutil.RemoveIfExists(path)
	if err != nil {
		return err
	}
	if !removed {
		return wardenerr.WithDetails(wardenerr.ErrKeyNotFound, map[string]string{"name": name})
	}
	return nil
}

// Path returns the file the key called name is stored in.
func (s *Store) Path(name string) (string, error) { return s.path(name) }

// path validates name before it touches the filesystem.
func (s *Store) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, name+fileExtension)
	if filepath.Dir(p) != filepath.Clean(s.dir) {
		return "", wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"name": name})
	}
	return p, nil
}
