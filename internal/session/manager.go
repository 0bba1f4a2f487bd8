package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

const (
	fileExtension = ".session"
	keyLength     = 32
	maxFileSize   = 16 << 10
)

// Same rule as keystore names; session does not import keystore.
//
//nolint:gochecknoglobals // Compiled once
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var errInvalidName = errors.New("invalid key name")

type sessionFile struct {
	Session *Session `json:"session"`
	Sealed  []byte   `json:"sealed_password"`
}

// Manager keeps sessions in a directory with their keys in a Keyring.
type Manager struct {
	dir       string
	keyring   Keyring
	available bool
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager over dir. A nil keyring selects the OS
// keyring, which is checked once here.
func NewManager(dir string, k Keyring, opts ...Option) *Manager {
	if k == nil {
		k = OSKeyring{}
	}
	m := &Manager{dir: dir, keyring: k, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.available = Usable(k)
	return m
}

// Available reports whether sessions can be used at all.
func (m *Manager) Available() bool { return m.available }

// Start stores password for name for ttl (clamped with ClampTTL) and returns
// the new session. An existing session for name is replaced.
func (m *Manager) Start(name string, password []byte, ttl time.Duration) (*Session, error) {
	if !nameRegex.MatchString(name) {
		return nil, errInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return nil, ErrKeyringUnavailable
	}

	key, err := wardencrypto.RandomBytes(keyLength)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	defer wardencrypto.ZeroBytes(key)

	nonce, err := wardencrypto.NewNonce()
	if err != nil {
		return nil, err
	}
	ct, err := wardencrypto.Encrypt(nonce, key, password)
	if err != nil {
		return nil, fmt.Errorf("sealing password: %w", err)
	}

	now := m.now()
	s := &Session{KeyName: name, CreatedAt: now.UTC(), ExpiresAt: now.Add(ClampTTL(ttl)).UTC()}
	data, err := json.MarshalIndent(sessionFile{Session: s, Sealed: append(nonce, ct...)}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}

	if err := m.keyring.Set(ServiceName, name, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyringUnavailable, err)
	}
	if err := fileutil.WriteSecret(m.path(name), data); err != nil {
		_ = m.keyring.Delete(ServiceName, name)
		return nil, fmt.Errorf("writing session file: %w", err)
	}
	return s, nil
}

// Password returns the stored password for name. Expired, damaged or half
// missing sessions are removed on the way out.
func (m *Manager) Password(name string) ([]byte, *Session, error) {
	if !nameRegex.MatchString(name) {
		return nil, nil, errInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return nil, nil, ErrKeyringUnavailable
	}

	sf, err := m.read(name)
	if err != nil {
		return nil, nil, err
	}
	if !sf.Session.ValidAt(m.now()) {
		_ = m.remove(name)
		return nil, nil, ErrSessionExpired
	}

	encoded, err := m.keyring.Get(ServiceName, name)
	if err != nil {
		_ = m.remove(name)
		return nil, nil, ErrSessionNotFound
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		_ = m.remove(name)
		return nil, nil, ErrSessionCorrupted
	}
	defer wardencrypto.ZeroBytes(key)

	pw, err := wardencrypto.Decrypt(key, sf.Sealed)
	if err != nil {
		_ = m.remove(name)
		return nil, nil, ErrSessionCorrupted
	}
	return pw, sf.Session, nil
}

// End removes the session for name. Ending a missing session is not an error.
func (m *Manager) End(name string) error {
	if !nameRegex.MatchString(name) {
		return errInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(name)
}

// EndAll removes every session, expired ones included, and returns how many
// were live.
func (m *Manager) EndAll() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.names()
	if err != nil {
		return 0, err
	}
	live := 0
	now := m.now()
	for _, name := range names {
		if sf, err := m.read(name); err == nil && sf.Session.ValidAt(now) {
			live++
		}
		if err := m.remove(name); err != nil {
			return live, err
		}
	}
	return live, nil
}

// List returns the live sessions sorted by key name.
func (m *Manager) List() ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.names()
	if err != nil {
		return nil, err
	}
	var out []*Session
	now := m.now()
	for _, name := range names {
		sf, err := m.read(name)
		if err != nil || !sf.Session.ValidAt(now) {
			continue
		}
		out = append(out, sf.Session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyName < out[j].KeyName })
	return out, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+fileExtension)
}

func (m *Manager) read(name string) (*sessionFile, error) {
	data, err := fileutil.ReadLimited(m.path(name), maxFileSize)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil || sf.Session == nil || sf.Session.KeyName != name {
		_ = m.remove(name)
		return nil, ErrSessionCorrupted
	}
	return &sf, nil
}

// remove deletes both halves. The keyring delete is best effort.
func (m *Manager) remove(name string) error {
	_ = m.keyring.Delete(ServiceName, name)
	_, err := fileutil.RemoveIfExists(m.path(name))
	return err
}

func (m *Manager) names() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, fileExtension) {
			continue
		}
		if n = strings.TrimSuffix(n, fileExtension); nameRegex.MatchString(n) {
			out = append(out, n)
		}
	}
	return out, nil
}
