package ergo

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// TokenIDSize is the length of a token id.
const TokenIDSize = 32

// HexBytes marshals as a hex string in JSON.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex: %w", err)
	}
	*h = b
	return nil
}

// Token is an amount of a native token.
type Token struct {
	ID     HexBytes `json:"tokenId"`
	Amount uint64   `json:"amount"`
}

// InputBox is a box being spent or read. Registers and Extension are already
// serialized; interpreting them is the node's job.
type InputBox struct {
	BoxID          HexBytes `json:"boxId"`
	TxID           HexBytes `json:"transactionId"`
	Index          uint16   `json:"index"`
	Value          uint64   `json:"value"`
	ErgoTree       HexBytes `json:"ergoTree"`
	CreationHeight uint32   `json:"creationHeight"`
	Tokens         []Token  `json:"assets,omitempty"`
	Registers      HexBytes `json:"additionalRegisters,omitempty"`
	Extension      HexBytes `json:"extension,omitempty"`
}

// OutputBox is a box created by a transaction.
type OutputBox struct {
	Value          uint64   `json:"value"`
	ErgoTree       HexBytes `json:"ergoTree"`
	CreationHeight uint32   `json:"creationHeight"`
	Tokens         []Token  `json:"assets,omitempty"`
	Registers      HexBytes `json:"additionalRegisters,omitempty"`
}

// UnsignedTransaction is a transaction awaiting proofs.
type UnsignedTransaction struct {
	Inputs     []InputBox  `json:"inputs"`
	DataInputs []InputBox  `json:"dataInputs,omitempty"`
	Outputs    []OutputBox `json:"outputs"`
}

// ReducedTransaction is a transaction already reduced to sigma propositions
// by a node, as produced for offline signing.
type ReducedTransaction struct {
	Bytes HexBytes `json:"reducedTx"`
}

// InputProof is the spending proof of one input.
type InputProof struct {
	BoxID     HexBytes `json:"boxId"`
	Proof     HexBytes `json:"proofBytes"`
	Extension HexBytes `json:"extension,omitempty"`
}

// SignedTransaction pairs a transaction with its input proofs.
type SignedTransaction struct {
	ID         string               `json:"id,omitempty"`
	Unsigned   *UnsignedTransaction `json:"-"`
	Proofs     []InputProof         `json:"inputs"`
	DataInputs []HexBytes           `json:"dataInputs,omitempty"`
	Outputs    []OutputBox          `json:"outputs,omitempty"`
}
