// Package apdu implements the ISO 7816 style command/response layer spoken by
// Ledger apps, a serialized exchanger over a message link, and the per device
// work queue.
package apdu

import (
	"encoding/binary"
	"fmt"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// MaxDataSize is the largest payload a short APDU can carry.
const MaxDataSize = 255

// Command is a single APDU request.
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
}

// Bytes encodes the command as CLA INS P1 P2 Lc data. Lc is always present.
func (c Command) Bytes() ([]byte, error) {
	if len(c.Data) > MaxDataSize {
		return nil, fmt.Errorf("%w: apdu data is %d bytes, max %d", wardenerr.ErrInvariant, len(c.Data), MaxDataSize)
	}
	out := make([]byte, 0, 5+len(c.Data))
	out = append(out, c.CLA, c.INS, c.P1, c.P2, byte(len(c.Data)))
	return append(out, c.Data...), nil
}

func (c Command) String() string {
	return fmt.Sprintf("INS=0x%02x P1=0x%02x P2=0x%02x Lc=%d", c.INS, c.P1, c.P2, len(c.Data))
}

// Response is the device reply with its trailing status word split off.
type Response struct {
	Data []byte
	SW   uint16
}

// ParseResponse splits raw into payload and status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("%w: response of %d bytes has no status word", wardenerr.ErrProtocol, len(raw))
	}
	n := len(raw) - 2
	return Response{
		Data: raw[:n],
		SW:   binary.BigEndian.Uint16(raw[n:]),
	}, nil
}

// OK reports whether the status word is 0x9000.
func (r Response) OK() bool {
	return r.SW == SWOK
}

// Err returns a *StatusError for any status word other than 0x9000.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{SW: r.SW}
}
