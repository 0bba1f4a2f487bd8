package ledger_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/ergo"
)

// fakeApp answers commands through respond and records every command sent.
type fakeApp struct {
	mu      sync.Mutex
	sent    []apdu.Command
	respond func(cmd apdu.Command) apdu.Response
}

func (f *fakeApp) Exchange(_ context.Context, cmd apdu.Command) (apdu.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.respond(cmd), nil
}

// p1s lists the P1 byte of every command sent with ins.
func (f *fakeApp) p1s(ins byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, c := range f.sent {
		if c.INS == ins {
			out = append(out, c.P1)
		}
	}
	return out
}

func (f *fakeApp) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func ok(data ...byte) apdu.Response {
	return apdu.Response{Data: data, SW: apdu.SWOK}
}

func status(sw uint16) apdu.Response {
	return apdu.Response{SW: sw}
}

func buildFrame(boxID []byte, count, index uint8, value uint64, tokens []ergo.Token) []byte {
	b := append([]byte(nil), boxID...)
	b = append(b, count, index)
	b = binary.BigEndian.AppendUint64(b, value)
	b = append(b, byte(len(tokens)))
	for _, t := range tokens {
		b = append(b, t.ID...)
		b = binary.BigEndian.AppendUint64(b, t.Amount)
	}
	return append(b, bytes.Repeat([]byte{0xa7}, 16)...)
}

func tokenID(n byte) ergo.HexBytes {
	return bytes.Repeat([]byte{n}, 32)
}

func testTokens(n int) []ergo.Token {
	out := make([]ergo.Token, n)
	for i := range out {
		out[i] = ergo.Token{ID: tokenID(byte(i + 1)), Amount: uint64(100 + i)}
	}
	return out
}

func testPubKey(t *testing.T) []byte {
	t.Helper()
	return secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32)).PubKey().SerializeCompressed()
}

func testInputBox(tree []byte, tokens []ergo.Token, registers []byte) ergo.InputBox {
	return ergo.InputBox{
		BoxID:          bytes.Repeat([]byte{0xb0}, 32),
		TxID:           bytes.Repeat([]byte{0x7a}, 32),
		Index:          1,
		Value:          1_000_000_000,
		ErgoTree:       tree,
		CreationHeight: 900_000,
		Tokens:         tokens,
		Registers:      registers,
	}
}

func addressChecksum(body []byte) []byte {
	sum := blake2b.Sum256(body)
	return sum[:4]
}
