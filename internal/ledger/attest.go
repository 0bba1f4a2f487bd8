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
	p1AttestStart     byte = 0x01
	p1AttestTreeChunk byte = 0x02
	p1AttestTokens    byte = 0x03
	p1AttestRegisters byte = 0x04
	p1AttestGetFrame  byte = 0x05
)

const (
	boxIDSize       = 32
	attestationSize = 16
	frameTokenSize  = ergo.TokenIDSize + 8
	frameHeaderSize = boxIDSize + 1 + 1 + 8 + 1
)

// AttestedBoxFrame is one device signed slice of an input box. Raw is sent
// back to the device verbatim while signing.
type AttestedBoxFrame struct {
	Raw         []byte
	BoxID       []byte
	Count       uint8
	Index       uint8
	Value       uint64
	Tokens      []ergo.Token
	Attestation []byte
}

// ParseFrame decodes a frame:
// boxId 32 | count u8 | index u8 | value u64 | tokens u8 | (id 32 | amount u64)* | attestation 16.
func ParseFrame(raw []byte) (AttestedBoxFrame, error) {
	if len(raw) < frameHeaderSize+attestationSize {
		return AttestedBoxFrame{}, fmt.Errorf("%w: frame is %d bytes", wardenerr.ErrProtocol, len(raw))
	}
	f := AttestedBoxFrame{
		Raw:   append([]byte(nil), raw...),
		BoxID: append([]byte(nil), raw[:boxIDSize]...),
		Count: raw[boxIDSize],
		Index: raw[boxIDSize+1],
		Value: binary.BigEndian.Uint64(raw[boxIDSize+2:]),
	}
	n := int(raw[frameHeaderSize-1])
	if want := frameHeaderSize + n*frameTokenSize + attestationSize; len(raw) != want {
		return AttestedBoxFrame{}, fmt.Errorf("%w: frame with %d tokens is %d bytes, want %d",
			wardenerr.ErrProtocol, n, len(raw), want)
	}
	if f.Count == 0 || f.Index >= f.Count {
		return AttestedBoxFrame{}, fmt.Errorf("%w: frame index %d of %d", wardenerr.ErrProtocol, f.Index, f.Count)
	}

	off := frameHeaderSize
	for range n {
		f.Tokens = append(f.Tokens, ergo.Token{
			ID:     append(ergo.HexBytes(nil), raw[off:off+ergo.TokenIDSize]...),
			Amount: binary.BigEndian.Uint64(raw[off+ergo.TokenIDSize:]),
		})
		off += frameTokenSize
	}
	f.Attestation = append([]byte(nil), raw[off:]...)
	return f, nil
}

// AttestedBox is an input box with the frames the device signed for it. The
// context extension is not attested; it is streamed separately at signing.
type AttestedBox struct {
	Box       ergo.InputBox
	Frames    []AttestedBoxFrame
	Extension []byte
}

// AttestBox has the device attest box. The session reports its frame count
// exactly once, in reply to the final chunk of whichever of the tree, token
// and register steps is sent last.
func (c *Client) AttestBox(ctx context.Context, box ergo.InputBox) (*AttestedBox, error) {
	if len(box.Tokens) > MaxTokens {
		return nil, wardenerr.Wrap(wardenerr.ErrTooManyTokens, "input box has %d tokens", len(box.Tokens))
	}
	if len(box.TxID) != 32 {
		return nil, fmt.Errorf("%w: transaction id is %d bytes", wardenerr.ErrInvalidInput, len(box.TxID))
	}
	if len(box.ErgoTree) == 0 {
		return nil, fmt.Errorf("%w: input box has no ergo tree", wardenerr.ErrInvalidInput)
	}

	header := make([]byte, 0, 32+2+8+4+4+1+4)
	header = append(header, box.TxID...)
	header = binary.BigEndian.AppendUint16(header, box.Index)
	header = binary.BigEndian.AppendUint64(header, box.Value)
	header = binary.BigEndian.AppendUint32(header, uint32(len(box.ErgoTree))) //nolint:gosec // bounded by tx size
	header = binary.BigEndian.AppendUint32(header, box.CreationHeight)
	header = append(header, byte(len(box.Tokens)))
	header = binary.BigEndian.AppendUint32(header, uint32(len(box.Registers))) //nolint:gosec // bounded by tx size

	reply, err := c.send(ctx, insAttestInput, p1AttestStart, p2WithoutToken, header)
	if err != nil {
		return nil, err
	}
	session, err := sessionID(reply)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ledger: attest session %d started", session)

	count, err := c.writeChunksWithResult(ctx, insAttestInput, p1AttestTreeChunk, session, box.ErgoTree)
	if err != nil {
		return nil, err
	}

	tokenBatches := batches(len(box.Tokens), MaxTokensPerBatch)
	for i, b := range tokenBatches {
		if count != 0 {
			return nil, fmt.Errorf("%w: frame count reported before tokens were sent", wardenerr.ErrProtocol)
		}
		data := make([]byte, 0, (b[1]-b[0])*frameTokenSize)
		for _, tok := range box.Tokens[b[0]:b[1]] {
			if len(tok.ID) != ergo.TokenIDSize {
				return nil, fmt.Errorf("%w: token id is %d bytes", wardenerr.ErrInvalidInput, len(tok.ID))
			}
			data = append(data, tok.ID...)
			data = binary.BigEndian.AppendUint64(data, tok.Amount)
		}
		reply, err := c.send(ctx, insAttestInput, p1AttestTokens, session, data)
		if err != nil {
			return nil, err
		}
		if len(reply) == 0 {
			continue
		}
		if i != len(tokenBatches)-1 {
			return nil, fmt.Errorf("%w: frame count returned after token batch %d of %d",
				wardenerr.ErrProtocol, i+1, len(tokenBatches))
		}
		if count, err = frameCount(reply); err != nil {
			return nil, err
		}
	}

	if len(box.Registers) > 0 {
		if count != 0 {
			return nil, fmt.Errorf("%w: frame count reported before registers were sent", wardenerr.ErrProtocol)
		}
		if count, err = c.writeChunksWithResult(ctx, insAttestInput, p1AttestRegisters, session, box.Registers); err != nil {
			return nil, err
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("%w: device never reported a frame count", wardenerr.ErrProtocol)
	}

	attested := &AttestedBox{
		Box:       box,
		Frames:    make([]AttestedBoxFrame, 0, count),
		Extension: box.Extension,
	}
	for i := range count {
		raw, err := c.send(ctx, insAttestInput, p1AttestGetFrame, session, []byte{byte(i)})
		if err != nil {
			return nil, err
		}
		frame, err := ParseFrame(raw)
		if err != nil {
			return nil, err
		}
		if int(frame.Index) != i || int(frame.Count) != count {
			return nil, fmt.Errorf("%w: got frame %d/%d, want %d/%d",
				wardenerr.ErrProtocol, frame.Index, frame.Count, i, count)
		}
		if len(attested.Frames) > 0 && !bytes.Equal(frame.BoxID, attested.Frames[0].BoxID) {
			return nil, fmt.Errorf("%w: frames disagree on box id", wardenerr.ErrProtocol)
		}
		if len(box.BoxID) > 0 && !bytes.Equal(frame.BoxID, box.BoxID) {
			return nil, fmt.Errorf("%w: device attested box %x, want %x", wardenerr.ErrProtocol, frame.BoxID, []byte(box.BoxID))
		}
		attested.Frames = append(attested.Frames, frame)
	}
	c.logger.Debug("ledger: attest session %d produced %d frames", session, count)
	return attested, nil
}
