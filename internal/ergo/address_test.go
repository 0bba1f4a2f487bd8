package ergo_test

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/ergo"
)

func testPubKey(seed byte) []byte {
	return secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32)).PubKey().SerializeCompressed()
}

func TestP2PKAddress_RoundTrip(t *testing.T) {
	t.Parallel()
	pub := testPubKey(7)

	for _, tt := range []struct {
		network ergo.NetworkType
		prefix  string
	}{
		{ergo.Mainnet, "9"},
		{ergo.Testnet, "3"},
	} {
		addr, err := ergo.P2PKAddress(tt.network, pub)
		require.NoError(t, err)

		s := addr.String()
		assert.Equal(t, tt.prefix, s[:1], "network %s", tt.network)

		decoded, err := ergo.DecodeAddress(s)
		require.NoError(t, err)
		assert.True(t, decoded.Equal(addr))
		assert.Equal(t, pub, decoded.PublicKey())
		assert.Equal(t, append([]byte{0x00, 0x08, 0xcd}, pub...), decoded.ErgoTree())
	}
}

func TestDecodeAddress_Errors(t *testing.T) {
	t.Parallel()
	addr, err := ergo.P2PKAddress(ergo.Mainnet, testPubKey(9))
	require.NoError(t, err)
	s := addr.String()

	// Flip the last character to break the checksum.
	last := s[len(s)-1]
	repl := byte('2')
	if last == repl {
		repl = '3'
	}
	_, err = ergo.DecodeAddress(s[:len(s)-1] + string(repl))
	require.Error(t, err)

	_, err = ergo.DecodeAddress("0OIl")
	require.ErrorIs(t, err, ergo.ErrInvalidAddress)

	_, err = ergo.DecodeAddress("")
	require.ErrorIs(t, err, ergo.ErrInvalidAddress)
}

func TestP2PKAddress_RejectsBadKey(t *testing.T) {
	t.Parallel()
	_, err := ergo.P2PKAddress(ergo.Mainnet, make([]byte, 33))
	require.ErrorIs(t, err, ergo.ErrInvalidPubKey)

	_, err = ergo.P2PKAddress(ergo.Mainnet, secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{1}, 32)).PubKey().SerializeUncompressed())
	require.ErrorIs(t, err, ergo.ErrInvalidPubKey)
}

func TestParseNetwork(t *testing.T) {
	t.Parallel()
	n, err := ergo.ParseNetwork("TESTNET")
	require.NoError(t, err)
	assert.Equal(t, ergo.Testnet, n)
	assert.Equal(t, "testnet", n.String())

	n, err = ergo.ParseNetwork("mainnet")
	require.NoError(t, err)
	assert.Equal(t, ergo.Mainnet, n)

	_, err = ergo.ParseNetwork("regtest")
	require.ErrorIs(t, err, ergo.ErrUnknownNetwork)
}

func TestMinerFeeTree(t *testing.T) {
	t.Parallel()
	assert.True(t, ergo.IsMinerFeeTree(append([]byte(nil), ergo.MinerFeeTree...)))
	assert.False(t, ergo.IsMinerFeeTree(ergo.P2PKTree(testPubKey(1))))
	assert.Equal(t, byte(0x10), ergo.MinerFeeTree[0])
}

func TestParseAddressBytes(t *testing.T) {
	t.Parallel()
	addr, err := ergo.P2PKAddress(ergo.Testnet, testPubKey(3))
	require.NoError(t, err)

	raw, err := base58.Decode(addr.String())
	require.NoError(t, err)

	parsed, err := ergo.ParseAddressBytes(raw)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(addr))

	raw[len(raw)-1] ^= 0xff
	_, err = ergo.ParseAddressBytes(raw)
	require.ErrorIs(t, err, ergo.ErrInvalidChecksum)

	_, err = ergo.ParseAddressBytes([]byte{0x01})
	require.ErrorIs(t, err, ergo.ErrInvalidAddress)
}
