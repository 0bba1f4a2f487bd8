package session

import (
	"time"

	"github.com/zalando/go-keyring"
)

// checkTimeout keeps a hung keyring daemon from stalling the CLI.
const checkTimeout = 3 * time.Second

// OSKeyring is the platform keychain.
type OSKeyring struct{}

// Set stores secret.
func (OSKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

// Get returns the stored secret.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes the stored secret.
func (OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Usable reports whether k accepts a write, read and delete within a few
// seconds.
func Usable(k Keyring) bool {
	ch := make(chan bool, 1)
	go func() { ch <- roundTrip(k) }()

	select {
	case ok := <-ch:
		return ok
	case <-time.After(checkTimeout):
		return false
	}
}

func roundTrip(k Keyring) bool {
	const (
		service = "warden-check"
		user    = "check"
		value   = "ok"
	)
	if err := k.Set(service, user, value); err != nil {
		return false
	}
	got, err := k.Get(service, user)
	delErr := k.Delete(service, user)
	return err == nil && got == value && delErr == nil
}
