package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/walletkey"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestRunKeyCreate(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	withMockPrompts(t, testPassword, true)

	require.NoError(t, runKeyCreate(env.cmd(), []string{"main"}))

	var got keySummary
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	assert.Equal(t, "main", got.Name)
	assert.Equal(t, walletkey.TypeLocal.Name, got.Type)
	assert.True(t, strings.HasPrefix(got.Address, "9"), "mainnet P2PK address, got %s", got.Address)
	assert.FileExists(t, got.Path)

	// The mnemonic goes to stderr only.
	assert.Contains(t, env.stderr.String(), "Write down these words")
	assert.NotContains(t, env.stdout.String(), " 1. ")

	entry, err := env.cc.Store.Load("main")
	require.NoError(t, err)
	assert.NoError(t, walletkey.VerifyPassword(entry.Blob, []byte(testPassword)))
}

func TestRunKeyCreate_BadWordCount(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	withMockPrompts(t, testPassword, true)
	setFlag(t, &createWords, 13)

	err := runKeyCreate(env.cmd(), []string{"main"})
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
}

func TestRunKeyCreate_NameChecks(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")

	err := runKeyCreate(env.cmd(), []string{"main"})
	require.ErrorIs(t, err, wardenerr.ErrKeyExists)

	err = runKeyCreate(env.cmd(), []string{"../escape"})
	require.Error(t, err)
}

func TestRunKeyRestore_Deterministic(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	withMockPrompts(t, testPassword, true)

	var addrs []string
	for _, name := range []string{"one", "two"} {
		env.reset()
		require.NoError(t, runKeyRestore(env.cmd(), []string{name}))
		var got keySummary
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
		addrs = append(addrs, got.Address)
	}
	assert.Equal(t, addrs[0], addrs[1])
}

func TestRunKeyRestore_LegacyFlag(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	withMockPrompts(t, testPassword, true)
	setFlag(t, &restoreMnemonic, testMnemonic)
	setFlag(t, &restoreLegacy, true)

	require.NoError(t, runKeyRestore(env.cmd(), []string{"old"}))

	k, _, err := env.cc.openKey(t.Context(), "old")
	require.NoError(t, err)
	local, ok := k.(*walletkey.Local)
	require.True(t, ok)
	assert.True(t, local.Nonstandard())
}

func TestRunKeyRestore_InvalidMnemonic(t *testing.T) {
	tests := []struct {
		name       string
		phrase     string
		suggestion string
	}{
		{
			name:       "typo",
			phrase:     strings.Replace(testMnemonic, "about", "abuot", 1),
			suggestion: "Word 12",
		},
		{
			name:       "checksum",
			phrase:     strings.Replace(testMnemonic, "about", "abandon", 1),
			suggestion: "checksum",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, output.FormatText)
			withMockPrompts(t, testPassword, true)
			setFlag(t, &restoreMnemonic, tc.phrase)

			err := runKeyRestore(env.cmd(), []string{"main"})
			require.ErrorIs(t, err, wardenerr.ErrInvalidMnemonic)
			assert.Contains(t, output.Describe(err).Suggestion, tc.suggestion)

			exists, err := env.cc.Store.Exists("main")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestRunKeyList(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	require.NoError(t, runKeyList(env.cmd(), nil))
	assert.Contains(t, env.stdout.String(), "No keys found")

	env.restoreLocal(t, "main")
	env.createLedger(t, "cold")

	require.NoError(t, runKeyList(env.cmd(), nil))
	text := env.stdout.String()
	assert.Contains(t, text, "NAME")
	assert.Contains(t, text, "main")
	assert.Contains(t, text, walletkey.TypeLocal.Name)
	assert.Contains(t, text, "cold")
	assert.Contains(t, text, walletkey.TypeLedger.Name)
}

func TestRunKeyDelete(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		env.restoreLocal(t, "main")
		withMockPrompts(t, testPassword, true)
		_, err := env.cc.Sessions.Start("main", []byte(testPassword), 0)
		require.NoError(t, err)

		require.NoError(t, runKeyDelete(env.cmd(), []string{"main"}))

		exists, err := env.cc.Store.Exists("main")
		require.NoError(t, err)
		assert.False(t, exists)

		sessions, err := env.cc.Sessions.List()
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("declined", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		env.restoreLocal(t, "main")
		withMockPrompts(t, testPassword, false)

		err := runKeyDelete(env.cmd(), []string{"main"})
		require.ErrorIs(t, err, wardenerr.ErrCancelled)

		exists, err := env.cc.Store.Exists("main")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("forced", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		env.restoreLocal(t, "main")
		withMockPrompts(t, testPassword, false)
		setFlag(t, &deleteForce, true)

		require.NoError(t, runKeyDelete(env.cmd(), []string{"main"}))
	})

	t.Run("missing", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		withMockPrompts(t, testPassword, true)

		err := runKeyDelete(env.cmd(), []string{"nope"})
		require.ErrorIs(t, err, wardenerr.ErrKeyNotFound)
	})
}

func TestRunKeyAddress(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.restoreLocal(t, "main")
	withMockPrompts(t, testPassword, true)
	setFlag(t, &addressIndex, 2)
	setFlag(t, &addressCount, 3)

	require.NoError(t, runKeyAddress(env.cmd(), []string{"main"}))

	var got addressList
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	assert.Equal(t, "main", got.Key)
	require.Len(t, got.Addresses, 3)
	assert.Equal(t, uint32(2), got.Addresses[0].Index)
	assert.Equal(t, "m/44'/429'/0'/0/2", got.Addresses[0].Path)
	assert.NotEqual(t, got.Addresses[0].Address, got.Addresses[1].Address)
}

func TestRunKeyAddress_MatchesCreatedAddress(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	withMockPrompts(t, testPassword, true)
	setFlag(t, &restoreMnemonic, testMnemonic)
	require.NoError(t, runKeyRestore(env.cmd(), []string{"main"}))
	var created keySummary
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &created))
	env.reset()

	setFlag(t, &addressIndex, 0)
	setFlag(t, &addressCount, 1)
	require.NoError(t, runKeyAddress(env.cmd(), []string{"main"}))
	var got addressList
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	require.Len(t, got.Addresses, 1)
	assert.Equal(t, created.Address, got.Addresses[0].Address)
}

func TestRunKeyAddress_Ledger(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.createLedger(t, "cold")
	withMockPrompts(t, testPassword, true)
	setFlag(t, &addressIndex, 0)
	setFlag(t, &addressCount, 2)

	require.NoError(t, runKeyAddress(env.cmd(), []string{"cold"}))
	var got addressList
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	assert.Len(t, got.Addresses, 2)
}

func TestRunKeyAddress_Bounds(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	withMockPrompts(t, testPassword, true)

	setFlag(t, &addressCount, 0)
	require.ErrorIs(t, runKeyAddress(env.cmd(), []string{"main"}), wardenerr.ErrInvalidInput)

	addressCount = maxAddressCount + 1
	require.ErrorIs(t, runKeyAddress(env.cmd(), []string{"main"}), wardenerr.ErrInvalidInput)

	addressCount = 2
	setFlag(t, &addressIndex, 0x7fffffff)
	require.ErrorIs(t, runKeyAddress(env.cmd(), []string{"main"}), wardenerr.ErrInvalidInput)
}

func TestRunKeyAddress_WrongPassword(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	withMockPrompts(t, "wrong password", true)
	setFlag(t, &addressCount, 1)

	err := runKeyAddress(env.cmd(), []string{"main"})
	require.ErrorIs(t, err, wardenerr.ErrAuthentication)
}

func TestRunKeyAddress_QRWithoutTerminal(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	withMockPrompts(t, testPassword, true)
	setFlag(t, &addressCount, 1)
	setFlag(t, &addressQR, true)

	require.NoError(t, runKeyAddress(env.cmd(), []string{"main"}))
	assert.True(t, strings.HasPrefix(env.stdout.String(), "9"))
	assert.Contains(t, env.stderr.String(), "QR code skipped")
}

func TestRunKeyPasswd(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	before, err := env.cc.Store.Load("main")
	require.NoError(t, err)

	withMockPrompts(t, testPassword, true)
	promptNewPasswordFn = func(int) ([]byte, error) { return []byte("new password"), nil }

	require.NoError(t, runKeyPasswd(env.cmd(), []string{"main"}))

	after, err := env.cc.Store.Load("main")
	require.NoError(t, err)
	assert.NotEqual(t, before.Blob, after.Blob)
	require.ErrorIs(t, walletkey.VerifyPassword(after.Blob, []byte(testPassword)), wardenerr.ErrAuthentication)
	assert.NoError(t, walletkey.VerifyPassword(after.Blob, []byte("new password")))
	assert.Contains(t, env.stderr.String(), "password changed")
}

func TestRunKeyPasswd_Ledger(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.createLedger(t, "cold")

	withMockPrompts(t, testPassword, true)
	promptNewPasswordFn = func(int) ([]byte, error) { return []byte("new password"), nil }

	require.NoError(t, runKeyPasswd(env.cmd(), []string{"cold"}))

	after, err := env.cc.Store.Load("cold")
	require.NoError(t, err)
	assert.NoError(t, walletkey.VerifyPassword(after.Blob, []byte("new password")))
}

func TestRunKeyPasswd_WrongOldPassword(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	before, err := env.cc.Store.Load("main")
	require.NoError(t, err)

	withMockPrompts(t, "not it", true)
	err = runKeyPasswd(env.cmd(), []string{"main"})
	require.ErrorIs(t, err, wardenerr.ErrAuthentication)

	after, err := env.cc.Store.Load("main")
	require.NoError(t, err)
	assert.Equal(t, before.Blob, after.Blob)
}

func TestRunKeyMnemonic(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.restoreLocal(t, "main")
	withMockPrompts(t, testPassword, true)

	require.NoError(t, runKeyMnemonic(env.cmd(), []string{"main"}))
	var got mnemonicExport
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	assert.Equal(t, testMnemonic, got.Mnemonic)
	assert.Empty(t, got.Passphrase)
}

func TestRunKeyMnemonic_Refusals(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		env.restoreLocal(t, "main")
		withMockPrompts(t, testPassword, false)

		err := runKeyMnemonic(env.cmd(), []string{"main"})
		require.ErrorIs(t, err, wardenerr.ErrCancelled)
		assert.Empty(t, env.stdout.String())
	})

	t.Run("ledger key", func(t *testing.T) {
		env := newTestEnv(t, output.FormatText)
		env.createLedger(t, "cold")
		withMockPrompts(t, testPassword, true)

		err := runKeyMnemonic(env.cmd(), []string{"cold"})
		require.ErrorIs(t, err, wardenerr.ErrNotSupported)
	})
}

func TestDisplayMnemonic(t *testing.T) {
	var sb strings.Builder
	displayMnemonic(&sb, testMnemonic)
	text := sb.String()
	assert.Contains(t, text, " 1. abandon")
	assert.Contains(t, text, "12. about")
	assert.Equal(t, 3, strings.Count(text, " 1. ")+strings.Count(text, " 5. ")+strings.Count(text, " 9. "), text)
}

func TestKeyFilesArePrivate(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")

	path, err := env.cc.Store.Path("main")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
