// Package walletkey holds the signing authority of a wallet. A key is either
// a password encrypted mnemonic (LOCAL) or a reference to a Ledger device
// running the Ergo app (LEDGER). Both serialize to the same blob layout:
//
//	typeId u16 | nonce 12 | AES-256-GCM(typeId u16 | payload) | tag 16
package walletkey

import (
	"context"
	"time"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/prompt"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Key is the signing contract shared by every key type.
//
// Sign returns (nil, nil) when the user rejected the request on a device.
// Failures (cancelled, wrong password, locked device) are returned as errors
// for which errors.IsFailure reports true.
type Key interface {
	Type() Type
	Sign(ctx context.Context, bc ergo.BlockchainContext, tx *ergo.UnsignedTransaction,
		addressIndexes []uint32, change *uint32) (*ergo.SignedTransaction, error)
	SignReduced(ctx context.Context, bc ergo.BlockchainContext, tx *ergo.ReducedTransaction,
		baseCost int, addressIndexes []uint32) (*ergo.SignedTransaction, error)
	DerivePublicAddress(network ergo.NetworkType, index uint32) (ergo.Address, error)
	ChangedPassword(ctx context.Context, oldPassword, newPassword []byte) (Key, error)
	Serialize() []byte
	Nonce() []byte
}

// PasswordFunc asks the user for the key password. Returning ErrCancelled
// aborts the operation.
type PasswordFunc func(prompt string) ([]byte, error)

// Logger receives key diagnostics. Secrets are never passed to it.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Opener carries the collaborators a key needs after it is created or
// loaded. The zero value, and a nil *Opener, use the TIMED cache policy,
// real timers, no password prompt and no device.
type Opener struct {
	// Passwords is asked when a LOCAL key has no cached secret.
	Passwords PasswordFunc

	// CachePolicy applies to LOCAL keys. The zero value is CacheTimed.
	CachePolicy CachePolicy
	// CacheTTL overrides DefaultCacheTTL for the TIMED policy.
	CacheTTL time.Duration
	// Timers overrides time.AfterFunc, for tests.
	Timers TimerFunc

	// Connector opens a session with a Ledger device.
	Connector Connector
	// Display and Decider drive device confirmation prompts.
	Display prompt.Display
	Decider prompt.Decider

	Logger Logger
}

func (o *Opener) logger() Logger {
	if o == nil || o.Logger == nil {
		return nopLogger{}
	}
	return o.Logger
}

func (o *Opener) password(msg string) ([]byte, error) {
	if o == nil || o.Passwords == nil {
		return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "no password source")
	}
	pw, err := o.Passwords(msg)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func (o *Opener) newCache() *secretCache {
	if o == nil {
		return newSecretCache(CacheTimed, 0, nil)
	}
	return newSecretCache(o.CachePolicy, o.CacheTTL, o.Timers)
}

func (o *Opener) newMachine() *prompt.Machine {
	if o == nil {
		return prompt.NewMachine(nil, nil, nil)
	}
	var l prompt.Logger
	if o.Logger != nil {
		l = o.Logger
	}
	return prompt.NewMachine(o.Display, o.Decider, l)
}

func (o *Opener) display() prompt.Display {
	if o == nil || o.Display == nil {
		return prompt.NopDisplay{}
	}
	return o.Display
}

// signingIndex maps the requested address indexes onto the single key path a
// P2PK wallet signs with. No index means index 0.
func signingIndex(addressIndexes []uint32) (uint32, error) {
	switch len(addressIndexes) {
	case 0:
		return 0, nil
	case 1:
		return addressIndexes[0], nil
	default:
		return 0, wardenerr.Wrap(wardenerr.ErrNotSupported,
			"signing with %d addresses at once", len(addressIndexes))
	}
}

func blobNonce(blob []byte) []byte {
	if len(blob) < headerSize {
		return nil
	}
	return append([]byte(nil), blob[typeIDSize:headerSize]...)
}
