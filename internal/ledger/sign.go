package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mrz1836/warden/internal/ergo"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	p1SignStart          byte = 0x01
	p1SignStartTx        byte = 0x10
	p1SignTokenIDs       byte = 0x11
	p1SignInputFrame     byte = 0x12
	p1SignContextExt     byte = 0x13
	p1SignDataInputs     byte = 0x14
	p1SignOutputStart    byte = 0x15
	p1SignOutputTree     byte = 0x16
	p1SignOutputMinerFee byte = 0x17
	p1SignOutputChange   byte = 0x18
	p1SignOutputTokens   byte = 0x19
	p1SignOutputRegs     byte = 0x1a
	p1SignConfirm        byte = 0x20
)

// dataInputsPerBatch keeps a data input batch under MaxChunkSize: a 255-byte
// APDU holds at most 7 box ids (7*32 = 224 bytes).
const dataInputsPerBatch = MaxChunkSize / boxIDSize

// ChangeOutput marks the output paying back to the wallet so the device can
// leave it out of the amount it asks the user to confirm.
type ChangeOutput struct {
	Tree []byte
	Path []uint32
}

type signPhase int

const (
	phaseOpened signPhase = iota
	phaseTxStarted
	phaseTokenIDs
	phaseInputs
	phaseDataInputs
	phaseOutputs
	phaseConfirmed
)

// signSession tracks the phase of an open signing session. The device
// enforces the same order; a step sent out of order here is a bug.
type signSession struct {
	c     *Client
	id    byte
	phase signPhase
}

func (s *signSession) send(ctx context.Context, p signPhase, p1 byte, data []byte) ([]byte, error) {
	if p < s.phase {
		return nil, fmt.Errorf("%w: signing step 0x%02x sent in phase %d after phase %d",
			wardenerr.ErrInvariant, p1, p, s.phase)
	}
	s.phase = p
	return s.c.send(ctx, insSignTx, p1, s.id, data)
}

// SignTransaction streams an attested transaction to the device and returns
// the signature the user approved. signPath selects the key that signs. A
// user rejection surfaces as an *apdu.StatusError with Denied() true.
func (c *Client) SignTransaction(ctx context.Context, network ergo.NetworkType, signPath []uint32,
	inputs []*AttestedBox, dataInputs []ergo.HexBytes, outputs []ergo.OutputBox, change *ChangeOutput,
) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: transaction has no inputs", wardenerr.ErrInvalidInput)
	}
	tokenIDs := distinctTokenIDs(outputs)
	if len(tokenIDs) > MaxTokens {
		return nil, wardenerr.Wrap(wardenerr.ErrTooManyTokens, "outputs carry %d distinct tokens", len(tokenIDs))
	}
	for _, id := range tokenIDs {
		if len(id) != ergo.TokenIDSize {
			return nil, fmt.Errorf("%w: token id is %d bytes", wardenerr.ErrInvalidInput, len(id))
		}
	}
	for _, id := range dataInputs {
		if len(id) != boxIDSize {
			return nil, fmt.Errorf("%w: data input id is %d bytes", wardenerr.ErrInvalidInput, len(id))
		}
	}

	reply, err := c.send(ctx, insSignTx, p1SignStart, p2WithoutToken, appendPath([]byte{byte(network)}, signPath))
	if err != nil {
		return nil, err
	}
	id, err := sessionID(reply)
	if err != nil {
		return nil, err
	}
	s := &signSession{c: c, id: id}
	c.logger.Debug("ledger: sign session %d: %d inputs, %d data inputs, %d tokens, %d outputs",
		id, len(inputs), len(dataInputs), len(tokenIDs), len(outputs))

	start := binary.BigEndian.AppendUint16(nil, uint16(len(inputs)))      //nolint:gosec // bounded by tx size
	start = binary.BigEndian.AppendUint16(start, uint16(len(dataInputs))) //nolint:gosec // bounded by tx size
	start = append(start, byte(len(tokenIDs)))
	start = binary.BigEndian.AppendUint16(start, uint16(len(outputs))) //nolint:gosec // bounded by tx size
	if _, err := s.send(ctx, phaseTxStarted, p1SignStartTx, start); err != nil {
		return nil, err
	}

	for _, b := range batches(len(tokenIDs), MaxTokenIDsPerBatch) {
		if _, err := s.send(ctx, phaseTokenIDs, p1SignTokenIDs, bytes.Join(tokenIDs[b[0]:b[1]], nil)); err != nil {
			return nil, err
		}
	}

	if err := s.addInputs(ctx, inputs); err != nil {
		return nil, err
	}

	for _, b := range batches(len(dataInputs), dataInputsPerBatch) {
		data := make([]byte, 0, (b[1]-b[0])*boxIDSize)
		for _, id := range dataInputs[b[0]:b[1]] {
			data = append(data, id...)
		}
		if _, err := s.send(ctx, phaseDataInputs, p1SignDataInputs, data); err != nil {
			return nil, err
		}
	}

	for i := range outputs {
		if err := s.addOutput(ctx, network, &outputs[i], tokenIDs, change); err != nil {
			return nil, err
		}
	}

	sig, err := s.send(ctx, phaseConfirmed, p1SignConfirm, nil)
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", wardenerr.ErrProtocol)
	}
	c.logger.Debug("ledger: sign session %d confirmed", id)
	return sig, nil
}

func (s *signSession) addInputs(ctx context.Context, inputs []*AttestedBox) error {
	for _, in := range inputs {
		if len(in.Frames) == 0 {
			return fmt.Errorf("%w: input has no attested frames", wardenerr.ErrInvariant)
		}
		extLen := uint32(len(in.Extension)) //nolint:gosec // bounded by tx size
		for _, f := range in.Frames {
			data := binary.BigEndian.AppendUint32(append([]byte(nil), f.Raw...), extLen)
			if _, err := s.send(ctx, phaseInputs, p1SignInputFrame, data); err != nil {
				return err
			}
		}
		for _, chunk := range chunks(in.Extension, MaxChunkSize) {
			if _, err := s.send(ctx, phaseInputs, p1SignContextExt, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *signSession) addOutput(ctx context.Context, network ergo.NetworkType, out *ergo.OutputBox,
	tokenIDs [][]byte, change *ChangeOutput,
) error {
	tokens := make([]byte, 0, len(out.Tokens)*12)
	for _, tok := range out.Tokens {
		idx := indexOf(tokenIDs, tok.ID)
		if idx < 0 {
			return fmt.Errorf("%w: output token %x missing from distinct token ids", wardenerr.ErrInvariant, []byte(tok.ID))
		}
		tokens = binary.BigEndian.AppendUint32(tokens, uint32(idx)) //nolint:gosec // idx < MaxTokens
		tokens = binary.BigEndian.AppendUint64(tokens, tok.Amount)
	}

	start := binary.BigEndian.AppendUint64(nil, out.Value)
	start = binary.BigEndian.AppendUint32(start, uint32(len(out.ErgoTree))) //nolint:gosec // bounded by tx size
	start = binary.BigEndian.AppendUint32(start, out.CreationHeight)
	start = append(start, byte(len(out.Tokens)))
	start = binary.BigEndian.AppendUint32(start, uint32(len(out.Registers))) //nolint:gosec // bounded by tx size
	if _, err := s.send(ctx, phaseOutputs, p1SignOutputStart, start); err != nil {
		return err
	}

	switch {
	case ergo.IsMinerFeeTree(out.ErgoTree):
		if _, err := s.send(ctx, phaseOutputs, p1SignOutputMinerFee, []byte{byte(network)}); err != nil {
			return err
		}
	case change != nil && bytes.Equal(out.ErgoTree, change.Tree):
		if _, err := s.send(ctx, phaseOutputs, p1SignOutputChange, appendPath(nil, change.Path)); err != nil {
			return err
		}
	default:
		for _, chunk := range chunks(out.ErgoTree, MaxChunkSize) {
			if _, err := s.send(ctx, phaseOutputs, p1SignOutputTree, chunk); err != nil {
				return err
			}
		}
	}

	if len(tokens) > 0 {
		if _, err := s.send(ctx, phaseOutputs, p1SignOutputTokens, tokens); err != nil {
			return err
		}
	}
	for _, chunk := range chunks(out.Registers, MaxChunkSize) {
		if _, err := s.send(ctx, phaseOutputs, p1SignOutputRegs, chunk); err != nil {
			return err
		}
	}
	return nil
}

// distinctTokenIDs lists the token ids of outputs in first seen order.
func distinctTokenIDs(outputs []ergo.OutputBox) [][]byte {
	var ids [][]byte
	for _, out := range outputs {
		for _, tok := range out.Tokens {
			if indexOf(ids, tok.ID) < 0 {
				ids = append(ids, tok.ID)
			}
		}
	}
	return ids
}

func indexOf(ids [][]byte, id []byte) int {
	for i, v := range ids {
		if bytes.Equal(v, id) {
			return i
		}
	}
	return -1
}
