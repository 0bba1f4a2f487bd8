package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/wallet"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// maxAddressCount bounds one address listing.
const maxAddressCount = 1000

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	addressIndex uint32
	addressCount uint32
	addressQR    bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyAddressCmd = &cobra.Command{
	Use:   "address <name>",
	Short: "Derive receive addresses",
	Long: `Derive P2PK addresses at m/44'/429'/0'/0/<index> for the configured network.

Addresses come from the stored parent public key. A Ledger key still needs
its device attached, because the key checks the device when it is opened.`,
	Example: `  warden key address main
  warden key address main --index 5 --count 10
  warden key address main --qr`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyAddress,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyPasswdCmd = &cobra.Command{
	Use:   "passwd <name>",
	Short: "Change the password of a key",
	Long: `Re-encrypt a key under a new password with a fresh nonce. The old
password is always asked for, even when a session is unlocked, and the
session is ended afterwards. A Ledger key needs its device attached.`,
	Example: `  warden key passwd main`,
	Args:    cobra.ExactArgs(1),
	RunE:    runKeyPasswd,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyMnemonicCmd = &cobra.Command{
	Use:   "mnemonic <name>",
	Short: "Show the mnemonic of a LOCAL key",
	Long: `Decrypt and print the mnemonic (and passphrase, if any) of a LOCAL key.
The password is asked for every time, cached or not.`,
	Example: `  warden key mnemonic main`,
	Args:    cobra.ExactArgs(1),
	RunE:    runKeyMnemonic,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keyCmd.AddCommand(keyAddressCmd, keyPasswdCmd, keyMnemonicCmd)

	keyAddressCmd.Flags().Uint32Var(&addressIndex, "index", 0, "first address index")
	keyAddressCmd.Flags().Uint32Var(&addressCount, "count", 1, "number of addresses")
	keyAddressCmd.Flags().BoolVar(&addressQR, "qr", false, "draw the first address as a QR code")
}

// parentKeyed is implemented by every key type that keeps its parent public
// key.
type parentKeyed interface {
	ParentPublicKey() *ergo.ExtendedPublicKey
}

// addressList is the result of key address.
type addressList struct {
	Key       string           `json:"key"`
	Network   string           `json:"network"`
	Addresses []wallet.Address `json:"addresses"`
}

func (l addressList) RenderText(w io.Writer) error {
	t := output.NewTable("INDEX", "PATH", "ADDRESS").AlignRight(0)
	for _, a := range l.Addresses {
		t.AddRow(fmt.Sprint(a.Index), a.Path, a.Address)
	}
	return t.RenderText(w)
}

func runKeyAddress(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if addressCount == 0 || addressCount > maxAddressCount {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"count": fmt.Sprintf("must be between 1 and %d", maxAddressCount),
		})
	}
	if addressIndex > ergo.H(0)-addressCount {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"index": "addresses must stay below the hardened range",
		})
	}
	network, err := cc.Network()
	if err != nil {
		return err
	}

	k, _, err := cc.openKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer closeKey(k)

	pk, ok := k.(parentKeyed)
	if !ok {
		return wardenerr.Wrap(wardenerr.ErrNotSupported, "%s keys do not expose a parent public key", k.Type())
	}
	addrs, err := wallet.DeriveAddresses(pk.ParentPublicKey(), network, addressIndex, addressCount)
	if err != nil {
		return err
	}

	if addressQR && !cc.Fmt.IsJSON() {
		out(cc.Fmt.Writer(), "%s\n", addrs[0].Address)
		if !output.RenderQR(cc.Fmt.Writer(), addrs[0].Address, output.DefaultQRConfig()) {
			cc.Msg.Warn("not a terminal, QR code skipped")
		}
		return nil
	}
	return cc.Fmt.Print(addressList{Key: args[0], Network: network.String(), Addresses: addrs})
}

func runKeyPasswd(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	entry, err := cc.Store.Load(name)
	if err != nil {
		return err
	}

	oldPW, err := promptPasswordFn(fmt.Sprintf("Current password for %s: ", name))
	if err != nil {
		return err
	}
	defer wardencrypto.ZeroBytes(oldPW)
	if err := walletkey.VerifyPassword(entry.Blob, oldPW); err != nil {
		return err
	}

	newPW, err := promptNewPasswordFn(cc.Cfg.Security.MinPasswordLength)
	if err != nil {
		return err
	}
	defer wardencrypto.ZeroBytes(newPW)

	opener, err := cc.opener(promptPasswordFn)
	if err != nil {
		return err
	}
	k, err := walletkey.Deserialize(cmd.Context(), entry.Blob, oldPW, opener)
	if err != nil {
		return err
	}
	defer closeKey(k)

	// The re-encrypted key shares k's device session.
	changed, err := k.ChangedPassword(cmd.Context(), oldPW, newPW)
	if err != nil {
		return err
	}

	updated := keystore.NewEntry(name, changed)
	if err := cc.Store.Replace(updated); err != nil {
		return err
	}
	endSession(cc, name)
	cc.Msg.Success("password changed for %s", name)
	return nil
}

// mnemonicExport is the result of key mnemonic.
type mnemonicExport struct {
	Key        string `json:"key"`
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase,omitempty"`
}

func (m mnemonicExport) RenderText(w io.Writer) error {
	displayMnemonic(w, m.Mnemonic)
	if m.Passphrase != "" {
		out(w, "Passphrase: %s\n", m.Passphrase)
	}
	return nil
}

func runKeyMnemonic(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	entry, err := cc.Store.Load(name)
	if err != nil {
		return err
	}
	if entry.Type != walletkey.TypeLocal.Name {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrNotSupported, "%s keys hold no mnemonic", entry.Type),
			"The mnemonic of a Ledger key never leaves the device")
	}
	if !promptConfirmFn("Anyone who sees the mnemonic controls the funds. Show it?") {
		return wardenerr.Wrap(wardenerr.ErrCancelled, "mnemonic not shown")
	}

	pw, err := promptPasswordFn(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return err
	}
	defer wardencrypto.ZeroBytes(pw)

	opener, err := cc.opener(promptPasswordFn)
	if err != nil {
		return err
	}
	k, err := walletkey.Deserialize(cmd.Context(), entry.Blob, pw, opener)
	if err != nil {
		return err
	}
	local, ok := k.(*walletkey.Local)
	if !ok {
		return wardenerr.Wrap(wardenerr.ErrInvariant, "key %s is not LOCAL", name)
	}
	defer local.Lock()

	again := func(string) ([]byte, error) { return append([]byte(nil), pw...), nil }
	phrase, passphrase, err := local.Mnemonic(cmd.Context(), again)
	if err != nil {
		return err
	}
	return cc.Fmt.Print(mnemonicExport{Key: name, Mnemonic: phrase, Passphrase: passphrase})
}
