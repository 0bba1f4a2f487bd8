package walletkey

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/wallet"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Local is a mnemonic encrypted under the user's password. Its parent public
// key is derived once and kept, so addresses never need the password.
type Local struct {
	blob        []byte
	nonstandard bool
	parent      *ergo.ExtendedPublicKey
	cache       *secretCache
	opener      *Opener
}

var _ Key = (*Local)(nil)

type localSecret struct {
	nonstandard bool
	phrase      []byte
	pass        []byte
}

func (s *localSecret) destroy() {
	wardencrypto.ZeroBytes(s.phrase)
	wardencrypto.ZeroBytes(s.pass)
}

func encodeLocal(s *localSecret) ([]byte, error) {
	if len(s.phrase) > math.MaxUint16 || len(s.pass) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: mnemonic or passphrase too long", wardenerr.ErrInvalidInput)
	}
	out := make([]byte, 0, 1+2+len(s.phrase)+2+len(s.pass))
	if s.nonstandard {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(s.phrase)))
	out = append(out, s.phrase...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(s.pass)))
	return append(out, s.pass...), nil
}

func decodeLocal(payload []byte) (*localSecret, error) {
	r := &payloadReader{b: payload}
	s := &localSecret{nonstandard: r.u8() != 0}
	s.phrase = append([]byte(nil), r.field()...)
	s.pass = append([]byte(nil), r.field()...)
	if r.err != nil {
		s.destroy()
		return nil, r.err
	}
	return s, nil
}

// parentOf derives the m/44'/429'/0'/0 public key from a decrypted secret.
func parentOf(s *localSecret) (*ergo.ExtendedPublicKey, error) {
	seed, err := wallet.MnemonicToSeed(string(s.phrase), string(s.pass))
	if err != nil {
		return nil, err
	}
	defer wallet.ZeroBytes(seed)

	account, err := wallet.AccountKey(seed, s.nonstandard)
	if err != nil {
		return nil, err
	}
	defer account.Zero()
	return wallet.ParentPublicKey(account)
}

// CreateLocal encrypts mnemonic and its passphrase under password. The
// mnemonic must be a valid BIP39 phrase in canonical form: lower case words
// separated by single spaces. nonstandard selects the legacy derivation.
func CreateLocal(nonstandard bool, mnemonic, mnemonicPass string, password []byte, opener *Opener) (l *Local, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLocal.Name, metrics.OpCreate, err) }()

	if err := wallet.CheckFormat(mnemonic); err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidMnemonic, "%v", err)
	}
	if err := wallet.ValidateMnemonic(mnemonic); err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidMnemonic, "%v", err)
	}

	s := &localSecret{nonstandard: nonstandard, phrase: []byte(mnemonic), pass: []byte(mnemonicPass)}
	parent, err := parentOf(s)
	if err != nil {
		return nil, err
	}
	payload, err := encodeLocal(s)
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(payload)

	blob, err := sealBlob(TypeLocal, password, payload)
	if err != nil {
		return nil, err
	}
	opener.logger().Debug("walletkey: created %s key (nonstandard=%t)", TypeLocal, nonstandard)
	return &Local{
		blob:        blob,
		nonstandard: nonstandard,
		parent:      parent,
		cache:       opener.newCache(),
		opener:      opener,
	}, nil
}

func openLocal(_ context.Context, blob, payload []byte, key *wardencrypto.SecureBytes, opener *Opener) (Key, error) {
	s, err := decodeLocal(payload)
	if err != nil {
		return nil, err
	}
	defer s.destroy()

	parent, err := parentOf(s)
	if err != nil {
		return nil, err
	}
	l := &Local{
		blob:        append([]byte(nil), blob...),
		nonstandard: s.nonstandard,
		parent:      parent,
		cache:       opener.newCache(),
		opener:      opener,
	}
	l.cache.store(key)
	return l, nil
}

// Type implements Key.
func (l *Local) Type() Type { return TypeLocal }

// Nonstandard reports whether the wallet uses the legacy derivation.
func (l *Local) Nonstandard() bool { return l.nonstandard }

// Serialize implements Key.
func (l *Local) Serialize() []byte { return append([]byte(nil), l.blob...) }

// Nonce implements Key.
func (l *Local) Nonce() []byte { return blobNonce(l.blob) }

// SetCachePolicy changes how long the decrypted key stays in memory.
func (l *Local) SetCachePolicy(p CachePolicy) {
	l.cache.setPolicy(p)
}

// Lock drops any cached key.
func (l *Local) Lock() {
	l.cache.clear()
}

// DerivePublicAddress implements Key. It never asks for the password.
func (l *Local) DerivePublicAddress(network ergo.NetworkType, index uint32) (addr ergo.Address, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLocal.Name, metrics.OpDeriveAddress, err) }()

	child, err := l.parent.Child(index)
	if err != nil {
		return ergo.Address{}, err
	}
	return ergo.P2PKAddress(network, child.PublicKey())
}

// ParentPublicKey returns the extended public key at m/44'/429'/0'/0.
func (l *Local) ParentPublicKey() *ergo.ExtendedPublicKey {
	return l.parent
}

// unlock decrypts the blob with the cached key or, failing that, with a
// password from the opener. A key that decrypts is cached per policy.
func (l *Local) unlock(ctx context.Context) (*localSecret, error) {
	if key := l.cache.get(); key != nil {
		defer key.Destroy()
		payload, err := openBlob(l.blob, key)
		if err == nil {
			defer wardencrypto.ZeroBytes(payload)
			return decodeLocal(payload)
		}
		l.cache.clear()
	}

	if err := ctx.Err(); err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "unlocking key")
	}
	pw, err := l.opener.password("Enter wallet password")
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(pw)

	return l.decrypt(pw, true)
}

func (l *Local) decrypt(password []byte, cache bool) (*localSecret, error) {
	key, err := blobKey(l.blob, password)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	payload, err := openBlob(l.blob, key)
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(payload)

	if cache {
		l.cache.store(key)
	}
	return decodeLocal(payload)
}

// signingKeys derives the private keys for indexes, or index 0 when none
// are given. The caller zeroes them.
func (l *Local) signingKeys(ctx context.Context, indexes []uint32) ([]*secp256k1.PrivateKey, error) {
	if len(indexes) == 0 {
		indexes = []uint32{0}
	}

	s, err := l.unlock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.destroy()

	seed, err := wallet.MnemonicToSeed(string(s.phrase), string(s.pass))
	if err != nil {
		return nil, err
	}
	defer wallet.ZeroBytes(seed)

	account, err := wallet.AccountKey(seed, s.nonstandard)
	if err != nil {
		return nil, err
	}
	defer account.Zero()

	keys := make([]*secp256k1.PrivateKey, 0, len(indexes))
	for _, i := range indexes {
		k, err := wallet.PrivateKey(account, i, s.nonstandard)
		if err != nil {
			zeroKeys(keys)
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func zeroKeys(keys []*secp256k1.PrivateKey) {
	for _, k := range keys {
		k.Zero()
	}
}

// Sign implements Key. change is ignored: the node context decides the
// change box for software keys.
func (l *Local) Sign(ctx context.Context, bc ergo.BlockchainContext, tx *ergo.UnsignedTransaction,
	addressIndexes []uint32, _ *uint32,
) (signed *ergo.SignedTransaction, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLocal.Name, metrics.OpSign, err) }()

	keys, err := l.signingKeys(ctx, addressIndexes)
	if err != nil {
		return nil, err
	}
	defer zeroKeys(keys)
	return bc.SignWithKeys(ctx, tx, keys)
}

// SignReduced implements Key.
func (l *Local) SignReduced(ctx context.Context, bc ergo.BlockchainContext, tx *ergo.ReducedTransaction,
	baseCost int, addressIndexes []uint32,
) (signed *ergo.SignedTransaction, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLocal.Name, metrics.OpSignReduced, err) }()

	keys, err := l.signingKeys(ctx, addressIndexes)
	if err != nil {
		return nil, err
	}
	defer zeroKeys(keys)
	return bc.SignReducedWithKeys(ctx, tx, baseCost, keys)
}

// ChangedPassword implements Key. The returned key has a fresh nonce and an
// empty cache.
func (l *Local) ChangedPassword(_ context.Context, oldPassword, newPassword []byte) (k Key, err error) {
	defer func() { metrics.RecordKeyOperation(TypeLocal.Name, metrics.OpChangePassword, err) }()

	s, err := l.decrypt(oldPassword, false)
	if err != nil {
		return nil, err
	}
	defer s.destroy()

	payload, err := encodeLocal(s)
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(payload)

	blob, err := sealBlob(TypeLocal, newPassword, payload)
	if err != nil {
		return nil, err
	}
	return &Local{
		blob:        blob,
		nonstandard: l.nonstandard,
		parent:      l.parent,
		cache:       l.opener.newCache(),
		opener:      l.opener,
	}, nil
}

// Mnemonic decrypts and returns the recovery phrase and its passphrase. It
// always asks for the password, even when a key is cached.
func (l *Local) Mnemonic(ctx context.Context, passwords PasswordFunc) (phrase, passphrase string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", wardenerr.Wrap(wardenerr.ErrCancelled, "exporting mnemonic")
	}
	if passwords == nil {
		return "", "", wardenerr.Wrap(wardenerr.ErrCancelled, "no password source")
	}
	pw, err := passwords("Enter wallet password to reveal the mnemonic")
	if err != nil {
		return "", "", err
	}
	defer wardencrypto.ZeroBytes(pw)

	s, err := l.decrypt(pw, false)
	if err != nil {
		return "", "", err
	}
	defer s.destroy()
	return string(s.phrase), string(s.pass), nil
}
