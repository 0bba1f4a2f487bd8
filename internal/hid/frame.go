// Package hid moves APDU messages to and from a Ledger device over USB HID
// using the Ledger packet framing.
//
// Each packet is:
//
//	channel (2, BE) | tag 0x05 | sequence (2, BE) | payload
//
// The payload of the first packet starts with the total message length as a
// 2 byte big endian integer. The final packet is zero padded.
package hid

import (
	"encoding/binary"
	"errors"
	"fmt"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// DefaultPacketSize is the HID report size used by Ledger devices.
	DefaultPacketSize = 64

	// HeaderSize is channel(2) + tag(1) + sequence(2).
	HeaderSize = 5

	// TagAPDU marks a packet as carrying APDU data.
	TagAPDU byte = 0x05

	lengthSize = 2
	maxMessage = 0xffff
)

var (
	// ErrPacketSize is returned for packet sizes that cannot carry any payload.
	ErrPacketSize = errors.New("packet size must be at least 6 bytes")

	// ErrMessageTooLong is returned for messages whose length does not fit in 16 bits.
	ErrMessageTooLong = errors.New("message exceeds 65535 bytes")
)

// InvalidChannelError is reported when a packet arrives on a channel other
// than the one the transport opened. A locked Ledger answers every request on
// channel 0, so Received == 0 is the recoverable locked condition and any other
// value is a protocol fault.
type InvalidChannelError struct {
	Expected uint16
	Received uint16
}

func (e *InvalidChannelError) Error() string {
	if e.Locked() {
		return "device replied on channel 0 (locked)"
	}
	return fmt.Sprintf("invalid channel: expected 0x%04x, received 0x%04x", e.Expected, e.Received)
}

// Locked reports whether the device signalled that it is locked.
func (e *InvalidChannelError) Locked() bool {
	return e.Received == 0
}

// Unwrap maps the error onto the warden sentinels so callers can classify it
// with errors.Is.
func (e *InvalidChannelError) Unwrap() error {
	if e.Locked() {
		return wardenerr.ErrDeviceLocked
	}
	return wardenerr.ErrProtocol
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", wardenerr.ErrProtocol, fmt.Sprintf(format, args...))
}

// Framer splits messages into packets for one channel.
type Framer struct {
	Channel    uint16
	PacketSize int
}

func (f Framer) packetSize() int {
	if f.PacketSize == 0 {
		return DefaultPacketSize
	}
	return f.PacketSize
}

// Packets encodes msg into fixed size packets with sequence numbers 0..N.
func (f Framer) Packets(msg []byte) ([][]byte, error) {
	size := f.packetSize()
	if size <= HeaderSize {
		return nil, ErrPacketSize
	}
	if len(msg) > maxMessage {
		return nil, ErrMessageTooLong
	}

	payload := make([]byte, lengthSize, lengthSize+len(msg))
	binary.BigEndian.PutUint16(payload, uint16(len(msg))) //nolint:gosec // bounded above
	payload = append(payload, msg...)

	space := size - HeaderSize
	count := (len(payload) + space - 1) / space
	if count > maxMessage+1 {
		return nil, ErrMessageTooLong
	}

	packets := make([][]byte, 0, count)
	for seq := 0; len(payload) > 0; seq++ {
		pkt := make([]byte, size)
		binary.BigEndian.PutUint16(pkt[0:], f.Channel)
		pkt[2] = TagAPDU
		binary.BigEndian.PutUint16(pkt[3:], uint16(seq)) //nolint:gosec // bounded by count check

		n := copy(pkt[HeaderSize:], payload)
		payload = payload[n:]
		packets = append(packets, pkt)
	}
	return packets, nil
}

// Reassembler rebuilds one message from packets read off a channel. The
// 2 byte length prefix may itself span packets when the packet size is small.
type Reassembler struct {
	channel uint16
	seq     uint16
	raw     []byte
}

// NewReassembler prepares to read a message on channel.
func NewReassembler(channel uint16) *Reassembler {
	return &Reassembler{channel: channel}
}

// Add consumes one packet. Packets must arrive in sequence order.
func (r *Reassembler) Add(pkt []byte) error {
	if len(pkt) <= HeaderSize {
		return protocolError("short packet (%d bytes)", len(pkt))
	}

	if ch := binary.BigEndian.Uint16(pkt[0:]); ch != r.channel {
		return &InvalidChannelError{Expected: r.channel, Received: ch}
	}
	if pkt[2] != TagAPDU {
		return protocolError("invalid tag 0x%02x", pkt[2])
	}
	if seq := binary.BigEndian.Uint16(pkt[3:]); seq != r.seq {
		return protocolError("out of order packet: expected seq %d, got %d", r.seq, seq)
	}
	r.seq++

	data := pkt[HeaderSize:]
	if want, ok := r.total(); ok {
		if left := want - len(r.raw); len(data) > left {
			data = data[:left]
		}
	}
	r.raw = append(r.raw, data...)

	// The length may have become known with this packet; drop padding.
	if want, ok := r.total(); ok && len(r.raw) > want {
		r.raw = r.raw[:want]
	}
	return nil
}

// total returns the prefix plus declared message length once known.
func (r *Reassembler) total() (int, bool) {
	if len(r.raw) < lengthSize {
		return 0, false
	}
	return lengthSize + int(binary.BigEndian.Uint16(r.raw)), true
}

// Complete reports whether the declared length has been received.
func (r *Reassembler) Complete() bool {
	want, ok := r.total()
	return ok && len(r.raw) == want
}

// Message returns the reassembled message. It is only meaningful once
// Complete returns true.
func (r *Reassembler) Message() []byte {
	if len(r.raw) < lengthSize {
		return nil
	}
	return r.raw[lengthSize:]
}
