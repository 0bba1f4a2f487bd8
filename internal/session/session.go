// Package session lets a key password outlive a single warden invocation.
// Unlocking a key stores a random session key in the OS keyring and the key
// password, sealed under that session key, in a private session file. Both
// halves are removed on lock or expiry.
package session

import (
	"errors"
	"time"
)

const (
	// DefaultTTL is how long an unlock lasts unless asked otherwise.
	DefaultTTL = 15 * time.Minute

	// MaxTTL caps an unlock.
	MaxTTL = 60 * time.Minute

	// MinTTL is the shortest unlock.
	MinTTL = time.Minute

	// ServiceName is the keyring service warden sessions live under.
	ServiceName = "warden-session"
)

var (
	// ErrSessionNotFound indicates the key has no session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session ran out.
	ErrSessionExpired = errors.New("session expired")

	// ErrKeyringUnavailable indicates the OS keyring cannot be used.
	ErrKeyringUnavailable = errors.New("keyring unavailable")

	// ErrSessionCorrupted indicates the session file or keyring entry is damaged.
	ErrSessionCorrupted = errors.New("session corrupted")
)

// Session describes one unlocked key.
type Session struct {
	KeyName   string    `json:"key_name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the session is still live at now.
func (s *Session) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// RemainingAt returns the time left at now, never negative.
func (s *Session) RemainingAt(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ClampTTL bounds ttl to [MinTTL, MaxTTL]. Zero selects DefaultTTL.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return DefaultTTL
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}

// Keyring stores small secrets by service and user.
type Keyring interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}
