package cli

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/walletkey"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestCmdContextRoundTrip(t *testing.T) {
	cmd := &cobra.Command{}
	assert.Nil(t, GetCmdContext(cmd))

	cmd.SetContext(context.Background())
	assert.Nil(t, GetCmdContext(cmd))

	cc := &CommandContext{}
	SetCmdContext(cmd, cc)
	assert.Same(t, cc, GetCmdContext(cmd))
}

func TestCommandContext_Connector(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	assert.Same(t, env.cc.Connector, env.cc.connector(), "an injected connector wins")

	env.cc.Connector = nil
	_, ok := env.cc.connector().(*walletkey.HIDConnector)
	assert.True(t, ok, "USB by default")

	env.cc.Cfg.Ledger.EmulatorAddr = "127.0.0.1:40000"
	emu, ok := env.cc.connector().(*walletkey.EmulatorConnector)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:40000", emu.Addr)
}

func TestCommandContext_Opener(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.cc.Cfg.Security.CachePolicy = "permanent"

	o, err := env.cc.opener(nil)
	require.NoError(t, err)
	assert.Equal(t, walletkey.CachePermanent, o.CachePolicy)
	assert.Equal(t, time.Minute, o.CacheTTL)

	env.cc.Cfg.Security.CachePolicy = "sometimes"
	_, err = env.cc.opener(nil)
	require.Error(t, err)
}

func TestCommandContext_PasswordSource(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	withMockPrompts(t, "typed", true)
	source := env.cc.passwordSource("main")

	pw, err := source("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "typed", string(pw))

	_, err = env.cc.Sessions.Start("main", []byte("remembered"), time.Minute)
	require.NoError(t, err)
	pw, err = source("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "remembered", string(pw))

	env.cc.Sessions = nil
	pw, err = source("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "typed", string(pw))
}

func TestCommandContext_OpenKeyMissing(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	withMockPrompts(t, testPassword, true)

	_, _, err := env.cc.openKey(context.Background(), "nope")
	require.ErrorIs(t, err, wardenerr.ErrKeyNotFound)
}

func TestCommandContext_OpenKeyCancelled(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.restoreLocal(t, "main")
	withMockPrompts(t, testPassword, true)
	promptPasswordFn = func(string) ([]byte, error) {
		return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "no password entered")
	}

	_, _, err := env.cc.openKey(context.Background(), "main")
	require.ErrorIs(t, err, wardenerr.ErrCancelled)
}

func TestDeviceContext(t *testing.T) {
	setFlag(t, &deviceTimeout, 50*time.Millisecond)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	ctx, cancel := deviceContext(cmd)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}
