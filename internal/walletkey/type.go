package walletkey

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrz1836/warden/internal/wardencrypto"
)

// Property is a capability flag of a key type.
type Property uint8

// Properties.
const (
	// SupportsReducedTx marks types that can sign node reduced transactions.
	SupportsReducedTx Property = 1 << iota
)

// Type identifies a key custody model. IDs are persisted in blobs and never
// reused.
type Type struct {
	ID    uint16
	Name  string
	Props Property
}

// Has reports whether t carries p.
func (t Type) Has(p Property) bool {
	return t.Props&p != 0
}

func (t Type) String() string {
	return t.Name
}

// Registered types.
//
//nolint:gochecknoglobals // immutable type table
var (
	TypeLocal  = Type{ID: 0, Name: "LOCAL", Props: SupportsReducedTx}
	TypeLedger = Type{ID: 50, Name: "LEDGER"}
)

// constructor rebuilds a key from its blob and decrypted payload. The payload
// starts after the type id.
type constructor func(ctx context.Context, blob, payload []byte, key *wardencrypto.SecureBytes, opener *Opener) (Key, error)

type registration struct {
	typ  Type
	open constructor
}

//nolint:gochecknoglobals // built once in init, read only afterwards
var (
	registryByID   map[uint16]registration
	registryByName map[string]Type
)

//nolint:gochecknoinits // the registry must exist before any blob is opened
func init() {
	registryByID, registryByName = buildRegistry([]registration{
		{TypeLocal, openLocal},
		{TypeLedger, openLedger},
	})
}

// buildRegistry indexes table and panics on a duplicate id or name, or on a
// name that is not upper case.
func buildRegistry(table []registration) (map[uint16]registration, map[string]Type) {
	byID := make(map[uint16]registration, len(table))
	byName := make(map[string]Type, len(table))
	for _, r := range table {
		if r.typ.Name == "" || strings.ToUpper(r.typ.Name) != r.typ.Name {
			panic(fmt.Sprintf("walletkey: type name %q must be upper case", r.typ.Name))
		}
		if prev, ok := byID[r.typ.ID]; ok {
			panic(fmt.Sprintf("walletkey: type id %d used by %s and %s", r.typ.ID, prev.typ, r.typ))
		}
		if _, ok := byName[r.typ.Name]; ok {
			panic(fmt.Sprintf("walletkey: type name %s registered twice", r.typ.Name))
		}
		byID[r.typ.ID] = r
		byName[r.typ.Name] = r.typ
	}
	return byID, byName
}

// TypeByID looks up a registered type.
func TypeByID(id uint16) (Type, bool) {
	r, ok := registryByID[id]
	return r.typ, ok
}

// TypeByName looks up a registered type by its upper case name.
func TypeByName(name string) (Type, bool) {
	t, ok := registryByName[strings.ToUpper(name)]
	return t, ok
}
