package ergo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/hdkeychain/v3"
)

// HardenedKeyStart is the first hardened BIP32 child index.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

// CoinType is the registered BIP44 coin type of Ergo.
const CoinType = 429

// ErrHardenedFromPublic is returned when a hardened child is requested from a
// public key.
var ErrHardenedFromPublic = errors.New("cannot derive a hardened child from a public key")

// HDParams supplies the BIP32 serialization versions (xprv/xpub).
type HDParams struct{}

func (HDParams) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xAD, 0xE4} }
func (HDParams) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xB2, 0x1E} }

// H hardens a path index.
func H(i uint32) uint32 {
	return i + HardenedKeyStart
}

// AccountPath is m/44'/429'/0'.
func AccountPath() []uint32 {
	return []uint32{H(44), H(CoinType), H(0)}
}

// AddressPath is m/44'/429'/0'/0/index.
func AddressPath(index uint32) []uint32 {
	return append(AccountPath(), 0, index)
}

// FormatPath renders a path as m/44'/429'/0'/0/0.
func FormatPath(path []uint32) string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, p := range path {
		sb.WriteByte('/')
		if p >= HardenedKeyStart {
			sb.WriteString(strconv.FormatUint(uint64(p-HardenedKeyStart), 10))
			sb.WriteByte('\'')
		} else {
			sb.WriteString(strconv.FormatUint(uint64(p), 10))
		}
	}
	return sb.String()
}

// ExtendedPublicKey is a public key with its chain code and derivation path.
type ExtendedPublicKey struct {
	key  *hdkeychain.ExtendedKey
	path []uint32
}

// NewExtendedPublicKey builds an extended key from a compressed public key
// and chain code, as returned by a hardware device.
func NewExtendedPublicKey(pubKey, chainCode []byte, path []uint32) (*ExtendedPublicKey, error) {
	if len(pubKey) != secp256k1.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPubKey, len(pubKey))
	}
	if _, err := secp256k1.ParsePubKey(pubKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	if len(chainCode) != 32 {
		return nil, fmt.Errorf("chain code must be 32 bytes, got %d", len(chainCode))
	}

	var childNum uint32
	if len(path) > 0 {
		childNum = path[len(path)-1]
	}
	version := HDParams{}.HDPubKeyVersion()
	key := hdkeychain.NewExtendedKey(version[:], pubKey, chainCode, []byte{0, 0, 0, 0},
		uint8(len(path)), childNum, false) //nolint:gosec // bip32 depth is small
	return &ExtendedPublicKey{key: key, path: append([]uint32(nil), path...)}, nil
}

// WrapExtendedKey neuters key and pairs it with its path. The result shares
// no memory with key, so key may be zeroed afterwards.
func WrapExtendedKey(key *hdkeychain.ExtendedKey, path []uint32) (*ExtendedPublicKey, error) {
	pub, err := hdkeychain.NewKeyFromString(key.Neuter().String(), HDParams{})
	if err != nil {
		return nil, fmt.Errorf("copying public key: %w", err)
	}
	return &ExtendedPublicKey{key: pub, path: append([]uint32(nil), path...)}, nil
}

// PublicKey returns the 33 byte compressed key.
func (x *ExtendedPublicKey) PublicKey() []byte {
	return x.key.SerializedPubKey()
}

// Path returns a copy of the derivation path.
func (x *ExtendedPublicKey) Path() []uint32 {
	return append([]uint32(nil), x.path...)
}

// String returns the base58 xpub serialization.
func (x *ExtendedPublicKey) String() string {
	return x.key.String()
}

// Child derives the non-hardened child i.
func (x *ExtendedPublicKey) Child(i uint32) (*ExtendedPublicKey, error) {
	if i >= HardenedKeyStart {
		return nil, ErrHardenedFromPublic
	}
	child, err := x.key.ChildBIP32Std(i)
	if err != nil {
		return nil, fmt.Errorf("deriving child %d: %w", i, err)
	}
	return &ExtendedPublicKey{key: child, path: append(x.Path(), i)}, nil
}
