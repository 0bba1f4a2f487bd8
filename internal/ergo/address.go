package ergo

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Address kinds, the low nibble of the prefix byte.
const (
	AddressP2PK byte = 0x01
	AddressP2SH byte = 0x02
	AddressP2S  byte = 0x03
)

const checksumSize = 4

var (
	ErrUnknownNetwork  = errors.New("unknown ergo network")
	ErrInvalidAddress  = errors.New("invalid ergo address")
	ErrInvalidChecksum = errors.New("invalid ergo address checksum")
	ErrInvalidPubKey   = errors.New("invalid compressed public key")
)

// p2pkTreePrefix is the ErgoTree header of a ProveDlog proposition with a
// constant group element.
var p2pkTreePrefix = []byte{0x00, 0x08, 0xcd} //nolint:gochecknoglobals // constant bytes

// Address is a decoded Ergo address.
type Address struct {
	Network NetworkType
	Kind    byte
	// Content is the compressed public key for P2PK and the ErgoTree for P2S.
	Content []byte
}

// P2PKAddress builds the pay-to-public-key address for a compressed key.
func P2PKAddress(network NetworkType, pubKey []byte) (Address, error) {
	if _, err := secp256k1.ParsePubKey(pubKey); err != nil || len(pubKey) != secp256k1.PubKeyBytesLenCompressed {
		return Address{}, ErrInvalidPubKey
	}
	return Address{Network: network, Kind: AddressP2PK, Content: append([]byte(nil), pubKey...)}, nil
}

// P2PKTree returns the ErgoTree guarding boxes owned by pubKey.
func P2PKTree(pubKey []byte) []byte {
	tree := make([]byte, 0, len(p2pkTreePrefix)+len(pubKey))
	tree = append(tree, p2pkTreePrefix...)
	return append(tree, pubKey...)
}

// ErgoTree returns the script guarding boxes sent to a. P2SH addresses only
// carry a script hash, so they have no tree here.
func (a Address) ErgoTree() []byte {
	switch a.Kind {
	case AddressP2PK:
		return P2PKTree(a.Content)
	case AddressP2S:
		return append([]byte(nil), a.Content...)
	default:
		return nil
	}
}

// PublicKey returns the key of a P2PK address, or nil.
func (a Address) PublicKey() []byte {
	if a.Kind != AddressP2PK {
		return nil
	}
	return a.Content
}

func (a Address) String() string {
	body := make([]byte, 0, 1+len(a.Content)+checksumSize)
	body = append(body, byte(a.Network)|a.Kind)
	body = append(body, a.Content...)
	sum := blake2b.Sum256(body)
	return base58.Encode(append(body, sum[:checksumSize]...))
}

// Equal compares two addresses.
func (a Address) Equal(b Address) bool {
	return a.Network == b.Network && a.Kind == b.Kind && bytes.Equal(a.Content, b.Content)
}

// DecodeAddress parses a base58 Ergo address and verifies its checksum.
func DecodeAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return ParseAddressBytes(raw)
}

// ParseAddressBytes parses the raw prefix|content|checksum form of an
// address, as returned by a hardware device.
func ParseAddressBytes(raw []byte) (Address, error) {
	if len(raw) < 1+checksumSize+1 {
		return Address{}, ErrInvalidAddress
	}

	body, check := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:checksumSize], check) {
		return Address{}, ErrInvalidChecksum
	}

	a := Address{
		Network: NetworkType(body[0] & 0xf0),
		Kind:    body[0] & 0x0f,
		Content: append([]byte(nil), body[1:]...),
	}
	if !a.Network.Valid() {
		return Address{}, fmt.Errorf("%w: prefix 0x%02x", ErrUnknownNetwork, body[0])
	}
	switch a.Kind {
	case AddressP2PK:
		if _, err := secp256k1.ParsePubKey(a.Content); err != nil {
			return Address{}, ErrInvalidPubKey
		}
	case AddressP2SH, AddressP2S:
	default:
		return Address{}, fmt.Errorf("%w: unknown kind 0x%02x", ErrInvalidAddress, a.Kind)
	}
	return a, nil
}
