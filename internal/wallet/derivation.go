package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/hdkeychain/v3"

	"github.com/mrz1836/warden/internal/ergo"
)

// ErrPublicKeyOnly indicates a private key was requested from a neutered key.
var ErrPublicKeyOnly = errors.New("extended key has no private part")

// Address is a derived receive address.
type Address struct {
	Path      string `json:"path"`
	Index     uint32 `json:"index"`
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// childFunc selects between the standard BIP32 derivation and the legacy one
// that does not left-pad short private keys when deriving hardened children.
func childFunc(key *hdkeychain.ExtendedKey, nonstandard bool) func(uint32) (*hdkeychain.ExtendedKey, error) {
	if nonstandard {
		return key.Child
	}
	return key.ChildBIP32Std
}

// AccountKey derives the extended private key at m/44'/429'/0'/0 from seed.
// Wallets created with the legacy derivation keep it for life.
func AccountKey(seed []byte, nonstandard bool) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, ergo.HDParams{})
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	path := append(ergo.AccountPath(), 0)
	for _, idx := range path {
		next, err := childFunc(key, nonstandard)(idx)
		key.Zero()
		if err != nil {
			return nil, fmt.Errorf("deriving %s: %w", ergo.FormatPath(path), err)
		}
		key = next
	}
	return key, nil
}

// ParentPublicKey returns the neutered account key paired with its path.
func ParentPublicKey(account *hdkeychain.ExtendedKey) (*ergo.ExtendedPublicKey, error) {
	return ergo.WrapExtendedKey(account, append(ergo.AccountPath(), 0))
}

// PrivateKey derives the signing key for address index from the account key.
func PrivateKey(account *hdkeychain.ExtendedKey, index uint32, nonstandard bool) (*secp256k1.PrivateKey, error) {
	if !account.IsPrivate() {
		return nil, ErrPublicKeyOnly
	}
	child, err := childFunc(account, nonstandard)(index)
	if err != nil {
		return nil, fmt.Errorf("deriving index %d: %w", index, err)
	}
	defer child.Zero()

	raw, err := child.SerializedPrivKey()
	if err != nil {
		return nil, fmt.Errorf("serializing private key: %w", err)
	}
	defer ZeroBytes(raw)

	return secp256k1.PrivKeyFromBytes(raw), nil
}

// DeriveAddresses derives count P2PK addresses starting at start from the
// parent public key at m/44'/429'/0'/0.
func DeriveAddresses(parent *ergo.ExtendedPublicKey, network ergo.NetworkType, start, count uint32) ([]Address, error) {
	addrs := make([]Address, 0, count)
	for i := start; i < start+count; i++ {
		child, err := parent.Child(i)
		if err != nil {
			return nil, err
		}
		addr, err := ergo.P2PKAddress(network, child.PublicKey())
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, Address{
			Path:      ergo.FormatPath(child.Path()),
			Index:     i,
			Address:   addr.String(),
			PublicKey: hex.EncodeToString(child.PublicKey()),
		})
	}
	return addrs, nil
}
