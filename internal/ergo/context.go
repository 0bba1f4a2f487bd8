package ergo

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// BlockchainContext is the node facing collaborator used while signing. Key
// types only read from it.
type BlockchainContext interface {
	NetworkType() NetworkType
	SignWithKeys(ctx context.Context, tx *UnsignedTransaction, keys []*secp256k1.PrivateKey) (*SignedTransaction, error)
	SignReducedWithKeys(ctx context.Context, tx *ReducedTransaction, baseCost int, keys []*secp256k1.PrivateKey) (*SignedTransaction, error)
	AssembleWithProof(tx *UnsignedTransaction, proof []byte) (*SignedTransaction, error)
}

// OfflineContext can assemble a hardware wallet signature into a signed
// transaction but cannot run the sigma prover, so software key signing needs
// a node backed context instead.
type OfflineContext struct {
	Network NetworkType
}

var _ BlockchainContext = OfflineContext{}

// NetworkType implements BlockchainContext.
func (c OfflineContext) NetworkType() NetworkType {
	return c.Network
}

// SignWithKeys implements BlockchainContext.
func (OfflineContext) SignWithKeys(context.Context, *UnsignedTransaction, []*secp256k1.PrivateKey) (*SignedTransaction, error) {
	return nil, wardenerr.WithSuggestion(
		wardenerr.Wrap(wardenerr.ErrNotSupported, "software signing needs a node connection"),
		"Sign through a node backed wallet or use a Ledger key")
}

// SignReducedWithKeys implements BlockchainContext.
func (OfflineContext) SignReducedWithKeys(context.Context, *ReducedTransaction, int, []*secp256k1.PrivateKey) (*SignedTransaction, error) {
	return nil, wardenerr.Wrap(wardenerr.ErrNotSupported, "reduced transaction signing needs a node connection")
}

// AssembleWithProof attaches the same proof to every input, which is how a
// single P2PK signature over the whole message spends all inputs.
func (OfflineContext) AssembleWithProof(tx *UnsignedTransaction, proof []byte) (*SignedTransaction, error) {
	if tx == nil || len(tx.Inputs) == 0 {
		return nil, fmt.Errorf("%w: transaction has no inputs", wardenerr.ErrInvalidInput)
	}
	signed := &SignedTransaction{
		Unsigned: tx,
		Proofs:   make([]InputProof, 0, len(tx.Inputs)),
		Outputs:  tx.Outputs,
	}
	for _, in := range tx.Inputs {
		signed.Proofs = append(signed.Proofs, InputProof{
			BoxID:     in.BoxID,
			Proof:     append(HexBytes(nil), proof...),
			Extension: in.Extension,
		})
	}
	for _, d := range tx.DataInputs {
		signed.DataInputs = append(signed.DataInputs, d.BoxID)
	}
	return signed, nil
}
