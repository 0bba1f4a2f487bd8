package walletkey

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/hid"
	"github.com/mrz1836/warden/internal/ledger"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/prompt"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const ledgerPayloadSize = 4 + secp256k1.PubKeyBytesLenCompressed

// Ledger is a key held by a hardware device. The blob stores the product id
// and the parent public key as a fingerprint; the chain code is read from
// the device at load and never stored.
type Ledger struct {
	blob      []byte
	productID uint32
	pubKey    []byte
	parent    *ergo.ExtendedPublicKey
	session   *Session
	machine   *prompt.Machine
	opener    *Opener
}

var _ Key = (*Ledger)(nil)

func encodeLedger(productID uint32, pubKey []byte) []byte {
	out := binary.BigEndian.AppendUint32(make([]byte, 0, ledgerPayloadSize), productID)
	return append(out, pubKey...)
}

func decodeLedger(payload []byte) (uint32, []byte, error) {
	if len(payload) != ledgerPayloadSize {
		return 0, nil, fmt.Errorf("%w: ledger key payload is %d bytes", wardenerr.ErrInvalidInput, len(payload))
	}
	return binary.BigEndian.Uint32(payload), append([]byte(nil), payload[4:]...), nil
}

// CreateLedger stores the parent public key parent exported from the device
// behind session, encrypted under password.
func CreateLedger(parent *ergo.ExtendedPublicKey, session *Session, password []byte, opener *Opener) (l *Ledger, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLedger.Name, metrics.OpCreate, err) }()

	if parent == nil || session == nil {
		return nil, fmt.Errorf("%w: ledger key needs a device session and its public key", wardenerr.ErrInvalidInput)
	}
	pubKey := parent.PublicKey()
	blob, err := sealBlob(TypeLedger, password, encodeLedger(session.ProductID, pubKey))
	if err != nil {
		return nil, err
	}
	opener.logger().Debug("walletkey: created %s key for %s", TypeLedger, session.Model())
	return &Ledger{
		blob:      blob,
		productID: session.ProductID,
		pubKey:    pubKey,
		parent:    parent,
		session:   session,
		machine:   opener.newMachine(),
		opener:    opener,
	}, nil
}

// SetupLedger connects a device, exports its parent public key with the
// user's approval and creates a key for it.
func SetupLedger(ctx context.Context, password []byte, opener *Opener) (*Ledger, error) {
	session, parent, err := NewLedgerLoader(opener).Setup(ctx)
	if err != nil {
		return nil, err
	}
	l, err := CreateLedger(parent, session, password, opener)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return l, nil
}

func openLedger(ctx context.Context, blob, payload []byte, _ *wardencrypto.SecureBytes, opener *Opener) (Key, error) {
	productID, pubKey, err := decodeLedger(payload)
	if err != nil {
		return nil, err
	}

	session, parent, err := NewLedgerLoader(opener).Load(ctx, productID, pubKey)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		blob:      append([]byte(nil), blob...),
		productID: productID,
		pubKey:    pubKey,
		parent:    parent,
		session:   session,
		machine:   opener.newMachine(),
		opener:    opener,
	}, nil
}

// Type implements Key.
func (l *Ledger) Type() Type { return TypeLedger }

// Serialize implements Key.
func (l *Ledger) Serialize() []byte { return append([]byte(nil), l.blob...) }

// Nonce implements Key.
func (l *Ledger) Nonce() []byte { return blobNonce(l.blob) }

// ProductID returns the USB product id recorded at creation.
func (l *Ledger) ProductID() uint32 { return l.productID }

// Model returns the device model name.
func (l *Ledger) Model() string { return hid.ModelName(l.productID) }

// ParentPublicKey returns the extended public key at m/44'/429'/0'/0 that
// was exported when the key was created.
func (l *Ledger) ParentPublicKey() *ergo.ExtendedPublicKey { return l.parent }

// Close releases the device session.
func (l *Ledger) Close() error {
	return l.session.Close()
}

// DerivePublicAddress implements Key. Addresses come from the parent public
// key and need no device round trip.
func (l *Ledger) DerivePublicAddress(network ergo.NetworkType, index uint32) (addr ergo.Address, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLedger.Name, metrics.OpDeriveAddress, err) }()

	child, err := l.parent.Child(index)
	if err != nil {
		return ergo.Address{}, err
	}
	return ergo.P2PKAddress(network, child.PublicKey())
}

// ShowAddress displays the address at index on the device screen.
func (l *Ledger) ShowAddress(ctx context.Context, network ergo.NetworkType, index uint32) error {
	_, err := onDevice(ctx, l.session, func(ctx context.Context) (struct{}, error) {
		return prompt.Run(ctx, l.machine, prompt.MessageApprove, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, l.session.Client.ShowAddress(ctx, network, ergo.AddressPath(index))
		})
	})
	return err
}

// checkTokens rejects transactions the device cannot attest or sign before
// anything is sent to it.
func checkTokens(tx *ergo.UnsignedTransaction) error {
	for i := range tx.Inputs {
		if n := len(tx.Inputs[i].Tokens); n > ledger.MaxTokens {
			return wardenerr.Wrap(wardenerr.ErrTooManyTokens, "input %d has %d tokens", i, n)
		}
	}
	var ids [][]byte
	for i := range tx.Outputs {
		for _, t := range tx.Outputs[i].Tokens {
			if !containsID(ids, t.ID) {
				ids = append(ids, t.ID)
			}
		}
	}
	if len(ids) > ledger.MaxTokens {
		return wardenerr.Wrap(wardenerr.ErrTooManyTokens, "outputs carry %d distinct tokens", len(ids))
	}
	return nil
}

func containsID(ids [][]byte, id []byte) bool {
	for _, x := range ids {
		if bytes.Equal(x, id) {
			return true
		}
	}
	return false
}

// Sign implements Key. Every input is attested by the device, then the
// device signs the whole transaction with the key at the single requested
// address index. A rejection on the device returns (nil, nil).
func (l *Ledger) Sign(ctx context.Context, bc ergo.BlockchainContext, tx *ergo.UnsignedTransaction,
	addressIndexes []uint32, change *uint32,
) (signed *ergo.SignedTransaction, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLedger.Name, metrics.OpSign, err) }()

	if tx == nil || len(tx.Inputs) == 0 {
		return nil, fmt.Errorf("%w: transaction has no inputs", wardenerr.ErrInvalidInput)
	}
	index, err := signingIndex(addressIndexes)
	if err != nil {
		return nil, err
	}
	if err := checkTokens(tx); err != nil {
		return nil, err
	}

	var changeOut *ledger.ChangeOutput
	if change != nil {
		child, err := l.parent.Child(*change)
		if err != nil {
			return nil, err
		}
		changeOut = &ledger.ChangeOutput{Tree: ergo.P2PKTree(child.PublicKey()), Path: ergo.AddressPath(*change)}
	}
	dataInputs := make([]ergo.HexBytes, 0, len(tx.DataInputs))
	for _, d := range tx.DataInputs {
		dataInputs = append(dataInputs, d.BoxID)
	}
	network := bc.NetworkType()
	client := l.session.Client

	sig, err := onDevice(ctx, l.session, func(ctx context.Context) ([]byte, error) {
		attested := make([]*ledger.AttestedBox, 0, len(tx.Inputs))
		for i := range tx.Inputs {
			box, err := prompt.Run(ctx, l.machine, prompt.MessageApprove, func(ctx context.Context) (*ledger.AttestedBox, error) {
				return client.AttestBox(ctx, tx.Inputs[i])
			})
			if err != nil {
				return nil, err
			}
			attested = append(attested, box)
		}
		return prompt.Run(ctx, l.machine, prompt.MessageApproveSign, func(ctx context.Context) ([]byte, error) {
			return client.SignTransaction(ctx, network, ergo.AddressPath(index), attested, dataInputs, tx.Outputs, changeOut)
		})
	})
	if err != nil {
		if prompt.Classify(err) == prompt.OutcomeDenied {
			l.opener.logger().Debug("walletkey: signing denied on device")
			return nil, nil
		}
		return nil, err
	}
	return bc.AssembleWithProof(tx, sig)
}

// SignReduced implements Key. The Ergo app has no reduced transaction
// support.
func (l *Ledger) SignReduced(context.Context, ergo.BlockchainContext, *ergo.ReducedTransaction, int, []uint32) (*ergo.SignedTransaction, error) {
	err := wardenerr.Wrap(wardenerr.ErrNotSupported, "%s keys cannot sign reduced transactions", TypeLedger)
	metrics.RecordKeyOperation(TypeLedger.Name, metrics.OpSignReduced, err)
	return nil, err
}

// ChangedPassword implements Key. The old password must open the current
// blob.
func (l *Ledger) ChangedPassword(_ context.Context, oldPassword, newPassword []byte) (k Key, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLedger.Name, metrics.OpChangePassword, err) }()

	key, err := blobKey(l.blob, oldPassword)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()
	payload, err := openBlob(l.blob, key)
	if err != nil {
		return nil, err
	}
	wardencrypto.ZeroBytes(payload)

	blob, err := sealBlob(TypeLedger, newPassword, encodeLedger(l.productID, l.pubKey))
	if err != nil {
		return nil, err
	}
	return &Ledger{
		blob:      blob,
		productID: l.productID,
		pubKey:    l.pubKey,
		parent:    l.parent,
		session:   l.session,
		machine:   l.machine,
		opener:    l.opener,
	}, nil
}
