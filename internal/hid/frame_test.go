package hid_test

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/hid"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func reassemble(t *testing.T, channel uint16, packets [][]byte) []byte {
	t.Helper()
	r := hid.NewReassembler(channel)
	for i, pkt := range packets {
		require.False(t, r.Complete(), "complete before packet %d", i)
		require.NoError(t, r.Add(pkt))
	}
	require.True(t, r.Complete())
	return r.Message()
}

func TestFramer_RoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test data

	sizes := []int{0, 1, 2, 57, 58, 59, 64, 121, 255, 1000, 10000}
	for _, packetSize := range []int{6, 7, 16, 64, 65} {
		for _, n := range sizes {
			msg := make([]byte, n)
			for i := range msg {
				msg[i] = byte(rng.UintN(256))
			}

			f := hid.Framer{Channel: 0x0101, PacketSize: packetSize}
			packets, err := f.Packets(msg)
			require.NoError(t, err)

			space := packetSize - hid.HeaderSize
			assert.Len(t, packets, (n+2+space-1)/space, "packet size %d, message %d", packetSize, n)
			for _, pkt := range packets {
				assert.Len(t, pkt, packetSize)
			}

			assert.Equal(t, msg, reassemble(t, 0x0101, packets), "packet size %d, message %d", packetSize, n)
		}
	}
}

func TestFramer_HeaderLayout(t *testing.T) {
	t.Parallel()
	f := hid.Framer{Channel: 0xbeef}
	packets, err := f.Packets(make([]byte, 100))
	require.NoError(t, err)
	require.Len(t, packets, 2)

	assert.Equal(t, []byte{0xbe, 0xef, 0x05, 0x00, 0x00, 0x00, 100}, packets[0][:7])
	assert.Equal(t, []byte{0xbe, 0xef, 0x05, 0x00, 0x01}, packets[1][:5])
}

func TestFramer_Errors(t *testing.T) {
	t.Parallel()

	_, err := hid.Framer{PacketSize: 5}.Packets([]byte{1})
	require.ErrorIs(t, err, hid.ErrPacketSize)

	_, err = hid.Framer{}.Packets(make([]byte, 0x10000))
	require.ErrorIs(t, err, hid.ErrMessageTooLong)
}

func TestReassembler_ChannelZeroIsLocked(t *testing.T) {
	t.Parallel()
	packets, err := hid.Framer{Channel: 0}.Packets([]byte{0x69, 0x85})
	require.NoError(t, err)

	r := hid.NewReassembler(0x1234)
	err = r.Add(packets[0])
	require.Error(t, err)

	var chErr *hid.InvalidChannelError
	require.ErrorAs(t, err, &chErr)
	assert.True(t, chErr.Locked())
	require.ErrorIs(t, err, wardenerr.ErrDeviceLocked)
	assert.True(t, wardenerr.IsFailure(err))
}

func TestReassembler_OtherChannelIsFatal(t *testing.T) {
	t.Parallel()
	packets, err := hid.Framer{Channel: 0x4321}.Packets([]byte{1, 2, 3})
	require.NoError(t, err)

	err = hid.NewReassembler(0x1234).Add(packets[0])
	var chErr *hid.InvalidChannelError
	require.ErrorAs(t, err, &chErr)
	assert.False(t, chErr.Locked())
	assert.Equal(t, uint16(0x4321), chErr.Received)
	require.ErrorIs(t, err, wardenerr.ErrProtocol)
	assert.False(t, wardenerr.IsFailure(err))
}

func TestReassembler_ProtocolViolations(t *testing.T) {
	t.Parallel()
	packets, err := hid.Framer{Channel: 7}.Packets(make([]byte, 200))
	require.NoError(t, err)

	t.Run("bad tag", func(t *testing.T) {
		t.Parallel()
		pkt := append([]byte(nil), packets[0]...)
		pkt[2] = 0x01
		require.ErrorIs(t, hid.NewReassembler(7).Add(pkt), wardenerr.ErrProtocol)
	})

	t.Run("out of order", func(t *testing.T) {
		t.Parallel()
		r := hid.NewReassembler(7)
		require.NoError(t, r.Add(packets[0]))
		require.ErrorIs(t, r.Add(packets[2]), wardenerr.ErrProtocol)
	})

	t.Run("first packet with wrong sequence", func(t *testing.T) {
		t.Parallel()
		pkt := append([]byte(nil), packets[0]...)
		binary.BigEndian.PutUint16(pkt[3:], 1)
		require.ErrorIs(t, hid.NewReassembler(7).Add(pkt), wardenerr.ErrProtocol)
	})

	t.Run("short packet", func(t *testing.T) {
		t.Parallel()
		err := hid.NewReassembler(7).Add([]byte{0, 7, 5})
		require.ErrorIs(t, err, wardenerr.ErrProtocol)
		assert.False(t, errors.Is(err, wardenerr.ErrDeviceLocked))
	})
}

func TestModelName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pid  uint32
		want string
	}{
		{0x0000, "Ledger Blue"},
		{0x0001, "Ledger Nano S"},
		{0x1011, "Ledger Nano S"},
		{0x0004, "Ledger Nano X"},
		{0x4011, "Ledger Nano X"},
		{0x5011, "Ledger Nano S Plus"},
		{0x0005, "Ledger Nano S Plus"},
		{0x6011, "Ledger Stax"},
		{0x9911, "Ledger"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hid.ModelName(tt.pid), "pid 0x%04x", tt.pid)
	}
}
