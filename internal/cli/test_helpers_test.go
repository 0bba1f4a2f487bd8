package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/ledger"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

const (
	testMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword   = "correct horse"
	testPassphrase = "backup passphrase"
)

func TestMain(m *testing.M) {
	wardencrypto.SetKDFIterations(16)
	wardencrypto.SetScryptWorkFactor(10)
	wardencrypto.SetMemoryLock(false)
	os.Exit(m.Run())
}

// setFlag sets a command flag variable for the test and restores it after.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

// withMockPrompts replaces prompt functions for testing and restores on cleanup.
func withMockPrompts(t *testing.T, password string, confirm bool) {
	t.Helper()
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	origPassphrase := promptPassphraseFn
	origBackup := promptBackupPassphraseFn
	origConfirm := promptConfirmFn
	origMnemonic := promptMnemonicFn
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
		promptPassphraseFn = origPassphrase
		promptBackupPassphraseFn = origBackup
		promptConfirmFn = origConfirm
		promptMnemonicFn = origMnemonic
	})
	promptPasswordFn = func(_ string) ([]byte, error) {
		return []byte(password), nil
	}
	promptNewPasswordFn = func(_ int) ([]byte, error) {
		return []byte(password), nil
	}
	promptPassphraseFn = func() (string, error) { return "", nil }
	promptBackupPassphraseFn = func(_ bool) (string, error) { return testPassphrase, nil }
	promptConfirmFn = func(_ string) bool { return confirm }
	promptMnemonicFn = func() (string, error) { return testMnemonic, nil }
}

// errNoEntry is returned by memKeyring for unknown secrets.
var errNoEntry = errors.New("no entry")

// memKeyring is an in-memory session keyring.
type memKeyring struct {
	mu    sync.Mutex
	store map[string]string
}

func newMemKeyring() *memKeyring {
	return &memKeyring{store: map[string]string{}}
}

func (k *memKeyring) Set(service, user, secret string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.store[service+"/"+user] = secret
	return nil
}

func (k *memKeyring) Get(service, user string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.store[service+"/"+user]
	if !ok {
		return "", errNoEntry
	}
	return v, nil
}

func (k *memKeyring) Delete(service, user string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.store, service+"/"+user)
	return nil
}

func ok(data ...byte) apdu.Response {
	return apdu.Response{Data: data, SW: apdu.SWOK}
}

// fakeErgoApp answers like version 0.1.5 of the Ergo app.
type fakeErgoApp struct {
	mu          sync.Mutex
	pubKey      []byte
	chainCode   []byte
	boxes       []ergo.InputBox
	attesting   int
	signReplies []apdu.Response
	sent        []apdu.Command
}

func newFakeErgoApp(seed byte) *fakeErgoApp {
	return &fakeErgoApp{
		pubKey:    secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32)).PubKey().SerializeCompressed(),
		chainCode: bytes.Repeat([]byte{seed ^ 0xcc}, 32),
	}
}

func (f *fakeErgoApp) Exchange(_ context.Context, cmd apdu.Command) (apdu.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)

	switch cmd.INS {
	case 0x01:
		return ok(0, 1, 5), nil
	case 0x02:
		return ok([]byte(ledger.AppName)...), nil
	case 0x10:
		return ok(append(append([]byte(nil), f.pubKey...), f.chainCode...)...), nil
	case 0x11:
		return ok(), nil
	case 0x20:
		return f.attest(cmd), nil
	case 0x21:
		return f.sign(cmd), nil
	}
	return apdu.Response{SW: apdu.SWINSNotSupport}, nil
}

func (f *fakeErgoApp) attest(cmd apdu.Command) apdu.Response {
	switch cmd.P1 {
	case 0x01:
		f.attesting++
		return ok(3)
	case 0x02:
		return ok(1)
	case 0x05:
		box := f.boxes[f.attesting-1]
		frame := append([]byte(nil), box.BoxID...)
		frame = append(frame, 1, 0)
		frame = binary.BigEndian.AppendUint64(frame, box.Value)
		frame = append(frame, 0)
		return ok(append(frame, bytes.Repeat([]byte{0xa7}, 16)...)...)
	}
	return ok()
}

func (f *fakeErgoApp) sign(cmd apdu.Command) apdu.Response {
	switch cmd.P1 {
	case 0x01:
		return ok(9)
	case 0x20:
		if len(f.signReplies) == 0 {
			return ok(bytes.Repeat([]byte{0x5a}, 56)...)
		}
		r := f.signReplies[0]
		f.signReplies = f.signReplies[1:]
		return r
	}
	return ok()
}

func (f *fakeErgoApp) count(ins byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		if c.INS == ins {
			n++
		}
	}
	return n
}

// fakeConnector hands out sessions over app.
type fakeConnector struct {
	app *fakeErgoApp
	err error
}

func (c *fakeConnector) Connect(context.Context) (*walletkey.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	return walletkey.NewSession(ledger.NewClient(c.app, nil), 0x4011, 0, nil), nil
}

// testEnv is a command context over a temporary home, with output captured.
type testEnv struct {
	cc     *CommandContext
	app    *fakeErgoApp
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()
	c := config.Defaults()
	c.Home = t.TempDir()
	c.Logging.File = ""

	env := &testEnv{
		app:    newFakeErgoApp(0x21),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	env.cc = &CommandContext{
		Cfg:      c,
		Log:      config.NullLogger(),
		Fmt:      output.NewFormatter(format, env.stdout),
		Msg:      output.Messenger{W: env.stderr},
		Store:    keystore.New(c.KeysDir()),
		Sessions: session.NewManager(c.SessionsDir(), newMemKeyring()),
		Display:  &terminalDisplay{w: env.stderr},
		Decider:  terminalDecider{},
	}
	env.cc.Connector = &fakeConnector{app: env.app}
	return env
}

// cmd returns a command carrying the environment's context.
func (e *testEnv) cmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, e.cc)
	cmd.SetOut(e.stdout)
	cmd.SetErr(e.stderr)
	return cmd
}

func (e *testEnv) reset() {
	e.stdout.Reset()
	e.stderr.Reset()
}

// restoreLocal stores testMnemonic as a LOCAL key called name.
func (e *testEnv) restoreLocal(t *testing.T, name string) {
	t.Helper()
	withMockPrompts(t, testPassword, true)
	setFlag(t, &restoreMnemonic, testMnemonic)
	require.NoError(t, runKeyRestore(e.cmd(), []string{name}))
	e.reset()
}

// createLedger stores a LEDGER key for the fake device as name.
func (e *testEnv) createLedger(t *testing.T, name string) {
	t.Helper()
	withMockPrompts(t, testPassword, true)
	require.NoError(t, runLedgerCreate(e.cmd(), []string{name}))
	e.reset()
}
