package ergo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/ergo"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestExtendedPublicKey_MatchesPrivateDerivation(t *testing.T) {
	t.Parallel()
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x42}, 32), ergo.HDParams{})
	require.NoError(t, err)

	account := master
	for _, i := range ergo.AccountPath() {
		account, err = account.ChildBIP32Std(i)
		require.NoError(t, err)
	}
	xpub, err := ergo.WrapExtendedKey(account, ergo.AccountPath())
	require.NoError(t, err)
	assert.Equal(t, "m/44'/429'/0'", ergo.FormatPath(xpub.Path()))

	// Rebuild from the raw key material the way a device hands it over.
	rebuilt, err := ergo.NewExtendedPublicKey(xpub.PublicKey(), chainCodeOf(t, account), ergo.AccountPath())
	require.NoError(t, err)

	change, err := rebuilt.Child(0)
	require.NoError(t, err)
	leaf, err := change.Child(5)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/429'/0'/0/5", ergo.FormatPath(leaf.Path()))

	priv, err := account.ChildBIP32Std(0)
	require.NoError(t, err)
	priv, err = priv.ChildBIP32Std(5)
	require.NoError(t, err)
	assert.Equal(t, priv.SerializedPubKey(), leaf.PublicKey())

	_, err = leaf.Child(ergo.H(0))
	require.ErrorIs(t, err, ergo.ErrHardenedFromPublic)
}

// chainCodeOf extracts the chain code from the BIP32 serialization:
// version(4) depth(1) fingerprint(4) child(4) chaincode(32) key(33).
func chainCodeOf(t *testing.T, k *hdkeychain.ExtendedKey) []byte {
	t.Helper()
	s := k.Neuter().String()
	raw := decodeCheck(t, s)
	return raw[13:45]
}

func TestNewExtendedPublicKey_Validation(t *testing.T) {
	t.Parallel()
	_, err := ergo.NewExtendedPublicKey(make([]byte, 33), make([]byte, 32), nil)
	require.ErrorIs(t, err, ergo.ErrInvalidPubKey)

	_, err = ergo.NewExtendedPublicKey(testPubKey(3), make([]byte, 31), nil)
	require.Error(t, err)
}

func TestOfflineContext(t *testing.T) {
	t.Parallel()
	c := ergo.OfflineContext{Network: ergo.Testnet}
	assert.Equal(t, ergo.Testnet, c.NetworkType())

	_, err := c.SignWithKeys(context.Background(), &ergo.UnsignedTransaction{}, nil)
	require.ErrorIs(t, err, wardenerr.ErrNotSupported)

	tx := &ergo.UnsignedTransaction{
		Inputs: []ergo.InputBox{
			{BoxID: bytes.Repeat([]byte{1}, 32), Extension: []byte{0x00}},
			{BoxID: bytes.Repeat([]byte{2}, 32)},
		},
		DataInputs: []ergo.InputBox{{BoxID: bytes.Repeat([]byte{3}, 32)}},
	}
	signed, err := c.AssembleWithProof(tx, []byte{0xaa, 0xbb})
	require.NoError(t, err)
	require.Len(t, signed.Proofs, 2)
	assert.Equal(t, ergo.HexBytes{0xaa, 0xbb}, signed.Proofs[1].Proof)
	assert.Equal(t, ergo.HexBytes{0x00}, signed.Proofs[0].Extension)
	require.Len(t, signed.DataInputs, 1)

	_, err = c.AssembleWithProof(&ergo.UnsignedTransaction{}, []byte{1})
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
}

func TestUnsignedTransaction_JSON(t *testing.T) {
	t.Parallel()
	in := `{"inputs":[{"boxId":"01","transactionId":"02","index":1,"value":1000,"ergoTree":"0008cd","creationHeight":5,
	"assets":[{"tokenId":"ff","amount":3}]}],"outputs":[{"value":900,"ergoTree":"10","creationHeight":6}]}`

	var tx ergo.UnsignedTransaction
	require.NoError(t, json.Unmarshal([]byte(in), &tx))
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, ergo.HexBytes{0x00, 0x08, 0xcd}, tx.Inputs[0].ErgoTree)
	assert.Equal(t, uint64(3), tx.Inputs[0].Tokens[0].Amount)
	assert.Equal(t, uint64(900), tx.Outputs[0].Value)

	var bad ergo.UnsignedTransaction
	require.Error(t, json.Unmarshal([]byte(`{"inputs":[{"boxId":"zz"}]}`), &bad))
}
