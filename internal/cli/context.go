package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/hid"
	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/prompt"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Log      *config.Logger
	Fmt      *output.Formatter
	Msg      output.Messenger
	Store    *keystore.Store
	Sessions *session.Manager

	// Devices enumerates HID devices. Nil means USB.
	Devices hid.Enumerator
	// Connector overrides the connector built from the ledger config.
	Connector walletkey.Connector
	Display   prompt.Display
	Decider   prompt.Decider
}

// NewCommandContext creates a context from the loaded configuration. The
// session manager is only built when sessions are enabled.
func NewCommandContext(c *config.Config, l *config.Logger, f *output.Formatter) *CommandContext {
	cc := &CommandContext{
		Cfg:     c,
		Log:     l,
		Fmt:     f,
		Msg:     output.Messenger{W: os.Stderr, Quiet: quiet},
		Store:   keystore.New(c.KeysDir()),
		Display: &terminalDisplay{w: os.Stderr},
		Decider: terminalDecider{},
	}
	if c.Security.SessionEnabled {
		cc.Sessions = session.NewManager(c.SessionsDir(), nil)
	}
	return cc
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached with SetCmdContext, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// Network returns the configured network.
func (c *CommandContext) Network() (ergo.NetworkType, error) {
	return c.Cfg.NetworkType()
}

// connector returns the device connector for the configured transport.
func (c *CommandContext) connector() walletkey.Connector {
	if c.Connector != nil {
		return c.Connector
	}
	lc := c.Cfg.Ledger
	if lc.EmulatorAddr != "" {
		return &walletkey.EmulatorConnector{
			Addr:      lc.EmulatorAddr,
			QueueSize: lc.QueueSize,
			Logger:    c.Log.Named("emulator"),
		}
	}
	return &walletkey.HIDConnector{
		Selector: c.selector(),
		TransportOptions: []hid.Option{
			hid.WithPacketSize(lc.PacketSize),
			hid.WithContinuationTimeout(c.Cfg.ContinuationTimeout()),
		},
		QueueSize: lc.QueueSize,
		Logger:    c.Log.Named("hid"),
	}
}

func (c *CommandContext) selector() *hid.Selector {
	enum := c.Devices
	if enum == nil {
		enum = hid.USB{}
	}
	return hid.NewSelector(enum,
		hid.WithVendorID(c.Cfg.Ledger.VendorID),
		hid.WithScanInterval(c.Cfg.ScanInterval()),
		hid.WithSelectorLogger(c.Log.Named("selector")),
	)
}

// opener builds the collaborators handed to keys. passwords may be nil for
// flows that never decrypt.
func (c *CommandContext) opener(passwords walletkey.PasswordFunc) (*walletkey.Opener, error) {
	policy, err := c.Cfg.CachePolicy()
	if err != nil {
		return nil, err
	}
	return &walletkey.Opener{
		Passwords:   passwords,
		CachePolicy: policy,
		CacheTTL:    c.Cfg.CacheTTL(),
		Connector:   c.connector(),
		Display:     c.Display,
		Decider:     c.Decider,
		Logger:      c.Log.Named("key"),
	}, nil
}

// passwordSource asks for the password of the key called name. An unlocked
// session answers the first request without prompting.
func (c *CommandContext) passwordSource(name string) walletkey.PasswordFunc {
	return func(msg string) ([]byte, error) {
		if pw, ok := c.sessionPassword(name); ok {
			return pw, nil
		}
		return promptPasswordFn(msg)
	}
}

func (c *CommandContext) sessionPassword(name string) ([]byte, bool) {
	if c.Sessions == nil || !c.Sessions.Available() {
		return nil, false
	}
	pw, _, err := c.Sessions.Password(name)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionExpired) {
			c.Log.Error("session for %s: %v", name, err)
		}
		return nil, false
	}
	c.Log.Debug("using session for %s", name)
	return pw, true
}

// openKey loads the key called name and decrypts it. For a LEDGER key this
// also connects to the device and checks it is the one the key was made on.
func (c *CommandContext) openKey(ctx context.Context, name string) (walletkey.Key, *keystore.Entry, error) {
	entry, err := c.Store.Load(name)
	if err != nil {
		return nil, nil, err
	}
	passwords := c.passwordSource(name)
	opener, err := c.opener(passwords)
	if err != nil {
		return nil, nil, err
	}

	pw, err := passwords(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return nil, nil, err
	}
	defer wardencrypto.ZeroBytes(pw)

	if entry.Type == walletkey.TypeLedger.Name {
		c.Msg.Info("Connect your Ledger and open the Ergo app...")
	}
	k, err := walletkey.Deserialize(ctx, entry.Blob, pw, opener)
	if err != nil {
		return nil, nil, err
	}
	return k, entry, nil
}

// closeKey releases a device session held by k, if any.
func closeKey(k walletkey.Key) {
	if l, ok := k.(*walletkey.Ledger); ok {
		_ = l.Close()
	}
}
