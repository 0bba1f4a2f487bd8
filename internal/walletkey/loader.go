package walletkey

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/hid"
	"github.com/mrz1836/warden/internal/prompt"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// LoadState is a step of bringing a stored Ledger key back online.
type LoadState int

// Load states, in order.
const (
	LoadAwaitConnect LoadState = iota
	LoadAwaitExportApproval
	LoadVerifyFingerprint
	LoadReady
)

func (s LoadState) String() string {
	switch s {
	case LoadAwaitConnect:
		return "await-connect"
	case LoadAwaitExportApproval:
		return "await-export-approval"
	case LoadVerifyFingerprint:
		return "verify-fingerprint"
	case LoadReady:
		return "ready"
	default:
		return fmt.Sprintf("load(%d)", int(s))
	}
}

// LedgerLoader connects a device and reads its parent public key, for a new
// key (Setup) or a stored one (Load).
type LedgerLoader struct {
	opener  *Opener
	machine *prompt.Machine
	state   LoadState
}

// NewLedgerLoader returns a loader in await-connect.
func NewLedgerLoader(opener *Opener) *LedgerLoader {
	return &LedgerLoader{opener: opener, machine: opener.newMachine()}
}

// State returns the step the loader reached.
func (l *LedgerLoader) State() LoadState {
	return l.state
}

func (l *LedgerLoader) enter(s LoadState) {
	l.opener.logger().Debug("walletkey: ledger load %s -> %s", l.state, s)
	l.state = s
}

// connect opens a session and checks the Ergo app is running.
func (l *LedgerLoader) connect(ctx context.Context, model string) (*Session, error) {
	l.state = LoadAwaitConnect
	if l.opener == nil || l.opener.Connector == nil {
		return nil, wardenerr.ErrDeviceNotFound
	}
	l.opener.display().Awaiting(fmt.Sprintf("Connect your %s and open the Ergo app", model))

	s, err := l.opener.Connector.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "waiting for device")
		}
		return nil, err
	}
	if _, err := onDevice(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Client.RequireErgoApp(ctx)
	}); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// exportParent asks the user to approve the public key export.
func (l *LedgerLoader) exportParent(ctx context.Context, s *Session) (*ergo.ExtendedPublicKey, error) {
	l.enter(LoadAwaitExportApproval)
	parent, err := onDevice(ctx, s, func(ctx context.Context) (*ergo.ExtendedPublicKey, error) {
		return prompt.Run(ctx, l.machine, prompt.MessageApprove, s.Client.RequestParentExtendedPublicKey)
	})
	if err != nil {
		if prompt.Classify(err) == prompt.OutcomeDenied {
			return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "public key export denied on device")
		}
		return nil, err
	}
	return parent, nil
}

// Load reconnects the device that owns fingerprint, the stored parent public
// key. Any other device fails with ErrWrongDevice.
func (l *LedgerLoader) Load(ctx context.Context, productID uint32, fingerprint []byte) (*Session, *ergo.ExtendedPublicKey, error) {
	s, err := l.connect(ctx, hid.ModelName(productID))
	if err != nil {
		return nil, nil, err
	}
	parent, err := l.exportParent(ctx, s)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	l.enter(LoadVerifyFingerprint)
	if !bytes.Equal(parent.PublicKey(), fingerprint) {
		_ = s.Close()
		return nil, nil, wardenerr.WithSuggestion(wardenerr.ErrWrongDevice,
			"Connect the Ledger this wallet was created with")
	}
	l.enter(LoadReady)
	return s, parent, nil
}

// Setup connects any device and exports its parent public key for a new
// key.
func (l *LedgerLoader) Setup(ctx context.Context) (*Session, *ergo.ExtendedPublicKey, error) {
	s, err := l.connect(ctx, "Ledger")
	if err != nil {
		return nil, nil, err
	}
	parent, err := l.exportParent(ctx, s)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	l.enter(LoadReady)
	return s, parent, nil
}

// Connect opens a session without exporting any key, for device info
// commands.
func Connect(ctx context.Context, opener *Opener) (*Session, error) {
	return NewLedgerLoader(opener).connect(ctx, "Ledger")
}
