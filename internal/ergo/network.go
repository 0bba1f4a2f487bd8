// Package ergo holds the Ergo chain types the key custody layer needs:
// network prefixes, P2PK addresses, extended public keys and the
// transaction shapes handed to signers.
package ergo

import (
	"fmt"
	"strings"
)

// NetworkType is the address prefix of an Ergo network. The Ledger app uses
// the same byte to select the network.
type NetworkType byte

// Networks.
const (
	Mainnet NetworkType = 0x00
	Testnet NetworkType = 0x10
)

// ParseNetwork parses "mainnet" or "testnet".
func ParseNetwork(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main", "":
		return Mainnet, nil
	case "testnet", "test":
		return Testnet, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

func (n NetworkType) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	default:
		return fmt.Sprintf("network(0x%02x)", byte(n))
	}
}

// Valid reports whether n is a known network.
func (n NetworkType) Valid() bool {
	return n == Mainnet || n == Testnet
}
