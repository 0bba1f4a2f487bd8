package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/hid"
	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/ledger"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/version"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var showAddressIndex uint32

// ledgerCmd is the parent command for device operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Work with Ledger devices",
	Long: `List Ledger devices, inspect the Ergo app and create keys backed by a
device. The Ergo app must be open on the device.

With ledger.emulator_addr set (or WARDEN_LEDGER_EMULATOR), commands talk to a
Speculos emulator over TCP instead of USB.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var ledgerListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List attached Ledger devices",
	Long:    `List the Ledger devices attached over USB. Only APDU interfaces are shown.`,
	Example: `  warden ledger list`,
	Args:    cobra.NoArgs,
	RunE:    runLedgerList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var ledgerInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the Ergo app name and version",
	Long: `Connect to the first Ledger device and report the open app and its
version. With ledger.min_app_version set, older apps are flagged.`,
	Example: `  warden ledger info`,
	Args:    cobra.NoArgs,
	RunE:    runLedgerInfo,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var ledgerCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a LEDGER key from the attached device",
	Long: `Export the parent public key of the attached device, after approval on
the device, and store it as a LEDGER key encrypted with a password. The key
only opens again with the same device.`,
	Example: `  warden ledger create cold`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLedgerCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var ledgerShowAddressCmd = &cobra.Command{
	Use:   "show-address <name>",
	Short: "Show an address on the device screen",
	Long: `Display the address at --index on the device so it can be compared with
the one warden derives. The address is also printed here.`,
	Example: `  warden ledger show-address cold --index 3`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLedgerShowAddress,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	ledgerCmd.GroupID = "device"
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerInfoCmd, ledgerCreateCmd, ledgerShowAddressCmd)

	ledgerCmd.PersistentFlags().DurationVar(&deviceTimeout, "timeout", defaultDeviceTimeout, "give up on the device after this long")
	ledgerShowAddressCmd.Flags().Uint32Var(&showAddressIndex, "index", 0, "address index")
}

// deviceList is the result of ledger list.
type deviceList struct {
	Devices []deviceListEntry `json:"devices"`
}

type deviceListEntry struct {
	Model     string `json:"model"`
	ProductID string `json:"product_id"`
	Serial    string `json:"serial,omitempty"`
	Path      string `json:"path"`
}

func (l deviceList) RenderText(w io.Writer) error {
	if len(l.Devices) == 0 {
		outln(w, "No Ledger devices found. Connect one and unlock it.")
		return nil
	}
	t := output.NewTable("MODEL", "PRODUCT", "PATH")
	for _, d := range l.Devices {
		t.AddRow(d.Model, d.ProductID, d.Path)
	}
	return t.RenderText(w)
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if cc.Cfg.Ledger.EmulatorAddr != "" {
		return cc.Fmt.Print(deviceList{Devices: []deviceListEntry{{
			Model:     hid.ModelName(hid.EmulatorProductID),
			ProductID: fmt.Sprintf("0x%04x", hid.EmulatorProductID),
			Path:      "tcp://" + cc.Cfg.Ledger.EmulatorAddr,
		}}})
	}

	infos, err := cc.selector().Scan()
	if err != nil {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrDeviceUnavailable, "%v", err),
			"Check USB permissions (udev rules on Linux)")
	}
	list := deviceList{Devices: make([]deviceListEntry, 0, len(infos))}
	for _, info := range infos {
		list.Devices = append(list.Devices, deviceListEntry{
			Model:     info.Model(),
			ProductID: fmt.Sprintf("0x%04x", info.ProductID),
			Serial:    info.Serial,
			Path:      info.Path,
		})
	}
	return cc.Fmt.Print(list)
}

// appInfo is the result of ledger info.
type appInfo struct {
	Model      string `json:"model"`
	App        string `json:"app"`
	Version    string `json:"version"`
	MinVersion string `json:"min_version,omitempty"`
	Supported  bool   `json:"supported"`
}

func (a appInfo) RenderText(w io.Writer) error {
	out(w, "Device:   %s\n", a.Model)
	out(w, "App:      %s %s\n", a.App, a.Version)
	if a.MinVersion != "" && !a.Supported {
		out(w, "Warning:  version %s or later is required\n", a.MinVersion)
	}
	return nil
}

func runLedgerInfo(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := deviceContext(cmd)
	defer cancel()

	opener, err := cc.opener(nil)
	if err != nil {
		return err
	}
	s, err := walletkey.Connect(ctx, opener)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	info, err := apdu.Submit(ctx, s.Queue, func(ctx context.Context) (appInfo, error) {
		name, err := s.Client.AppName(ctx)
		if err != nil {
			return appInfo{}, err
		}
		v, err := s.Client.AppVersion(ctx)
		if err != nil {
			return appInfo{}, err
		}
		return appInfo{Model: s.Model(), App: name, Version: v.String()}, nil
	}).Await(ctx)
	if err != nil {
		return err
	}

	info.MinVersion = cc.Cfg.Ledger.MinAppVersion
	info.Supported = info.MinVersion == "" || version.AtLeast(info.Version, info.MinVersion)
	if err := cc.Fmt.Print(info); err != nil {
		return err
	}
	if !info.Supported {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrDeviceUnavailable, "%s app %s is older than %s", ledger.AppName, info.Version, info.MinVersion),
			"Update the Ergo app with Ledger Live")
	}
	return nil
}

func runLedgerCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	if err := checkNewName(cc, name); err != nil {
		return err
	}

	pw, err := promptNewPasswordFn(cc.Cfg.Security.MinPasswordLength)
	if err != nil {
		return err
	}
	defer wardencrypto.ZeroBytes(pw)

	ctx, cancel := deviceContext(cmd)
	defer cancel()
	opener, err := cc.opener(cc.passwordSource(name))
	if err != nil {
		return err
	}
	k, err := walletkey.SetupLedger(ctx, pw, opener)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	network, err := cc.Network()
	if err != nil {
		return err
	}
	addr, err := k.DerivePublicAddress(network, 0)
	if err != nil {
		return err
	}
	if err := cc.Store.Save(keystore.NewEntry(name, k)); err != nil {
		return err
	}
	path, _ := cc.Store.Path(name)
	cc.Log.Debug("created %s key %s on %s", walletkey.TypeLedger, name, k.Model())
	cc.Msg.Success("created %s on %s", name, k.Model())
	return cc.Fmt.Print(keySummary{
		Name:    name,
		Type:    walletkey.TypeLedger.Name,
		Address: addr.String(),
		Path:    path,
	})
}

// shownAddress is the result of ledger show-address.
type shownAddress struct {
	Key     string `json:"key"`
	Index   uint32 `json:"index"`
	Address string `json:"address"`
}

func (a shownAddress) RenderText(w io.Writer) error {
	out(w, "%s/%d  %s\n", a.Key, a.Index, a.Address)
	return nil
}

func runLedgerShowAddress(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	network, err := cc.Network()
	if err != nil {
		return err
	}

	ctx, cancel := deviceContext(cmd)
	defer cancel()
	k, entry, err := cc.openKey(ctx, name)
	if err != nil {
		return err
	}
	defer closeKey(k)

	l, ok := k.(*walletkey.Ledger)
	if !ok {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrNotSupported, "%s is a %s key", name, entry.Type),
			"Use warden key address for LOCAL keys")
	}
	addr, err := l.DerivePublicAddress(network, showAddressIndex)
	if err != nil {
		return err
	}
	if err := cc.Fmt.Print(shownAddress{Key: name, Index: showAddressIndex, Address: addr.String()}); err != nil {
		return err
	}
	cc.Msg.Info("Compare it with the address on the device and approve it there.")
	return l.ShowAddress(ctx, network, showAddressIndex)
}
