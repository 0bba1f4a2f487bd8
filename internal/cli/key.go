package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/keystore"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/wallet"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	createWords      int
	createPassphrase bool
	createLegacy     bool

	restoreMnemonic   string
	restorePassphrase bool
	restoreLegacy     bool

	deleteForce bool
)

// keyCmd is the parent command for key operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage keys",
	Long: `Create, restore, list and manage wallet keys.

LOCAL keys keep a password encrypted mnemonic in <home>/keys. Ledger keys
are created with "warden ledger create".`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a LOCAL key from a new mnemonic",
	Long: `Generate a new BIP39 mnemonic and store it as a LOCAL key encrypted with
a password. The mnemonic is shown once; write it down.

--legacy selects the derivation older wallets used, which does not pad short
private keys when deriving hardened children.`,
	Example: `  warden key create main
  warden key create main --words 24 --passphrase`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore a LOCAL key from a mnemonic",
	Long: `Store an existing BIP39 mnemonic as a LOCAL key. Without --mnemonic the
phrase is read from the terminal without echo. Misspelt words are reported
with the closest word list entry.`,
	Example: `  warden key restore main
  warden key restore old --legacy --passphrase`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyRestore,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List keys",
	Long:    `List the keys stored in <home>/keys with their type and creation time.`,
	Example: `  warden key list -o json`,
	Args:    cobra.NoArgs,
	RunE:    runKeyList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a key file",
	Long: `Delete a stored key and end its session. A LOCAL key cannot be recovered
afterwards without its mnemonic or a backup.`,
	Example: `  warden key delete old --force`,
	Args:    cobra.ExactArgs(1),
	RunE:    runKeyDelete,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keyCmd.GroupID = "keys"
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyCreateCmd, keyRestoreCmd, keyListCmd, keyDeleteCmd)

	keyCreateCmd.Flags().IntVar(&createWords, "words", 12, "mnemonic length: 12, 15, 18, 21 or 24 words")
	keyCreateCmd.Flags().BoolVar(&createPassphrase, "passphrase", false, "protect the mnemonic with a passphrase")
	keyCreateCmd.Flags().BoolVar(&createLegacy, "legacy", false, "use the legacy key derivation")

	keyRestoreCmd.Flags().StringVar(&restoreMnemonic, "mnemonic", "", "mnemonic phrase (prompted when omitted)")
	keyRestoreCmd.Flags().BoolVar(&restorePassphrase, "passphrase", false, "the mnemonic has a passphrase")
	keyRestoreCmd.Flags().BoolVar(&restoreLegacy, "legacy", false, "use the legacy key derivation")

	keyDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "do not ask for confirmation")
}

// keySummary is the result of commands that create a key.
type keySummary struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address"`
	Path    string `json:"path"`
}

func (k keySummary) RenderText(w io.Writer) error {
	out(w, "Key:      %s (%s)\n", k.Name, k.Type)
	out(w, "Address:  %s\n", k.Address)
	out(w, "Stored:   %s\n", k.Path)
	return nil
}

// checkNewName fails when name is invalid or already taken.
func checkNewName(cc *CommandContext, name string) error {
	if err := keystore.ValidateName(name); err != nil {
		return err
	}
	exists, err := cc.Store.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrKeyExists, map[string]string{"name": name}),
			"Choose another name or delete the existing key first")
	}
	return nil
}

func runKeyCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	if err := checkNewName(cc, name); err != nil {
		return err
	}

	mnemonic, err := wallet.GenerateMnemonic(createWords)
	if err != nil {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrInvalidInput, "%v", err),
			"Use --words 12, 15, 18, 21 or 24")
	}

	summary, err := storeLocal(cc, name, mnemonic, createPassphrase, createLegacy)
	if err != nil {
		return err
	}

	displayMnemonic(cmd.ErrOrStderr(), mnemonic)
	return cc.Fmt.Print(summary)
}

func runKeyRestore(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	if err := checkNewName(cc, name); err != nil {
		return err
	}

	phrase := restoreMnemonic
	if phrase == "" {
		var err error
		if phrase, err = promptMnemonicFn(); err != nil {
			return err
		}
	}
	phrase = wallet.NormalizeMnemonicInput(phrase)
	if err := wallet.ValidateMnemonic(phrase); err != nil {
		return mnemonicError(phrase)
	}

	summary, err := storeLocal(cc, name, phrase, restorePassphrase, restoreLegacy)
	if err != nil {
		return err
	}
	cc.Msg.Success("restored %s", name)
	return cc.Fmt.Print(summary)
}

// mnemonicError explains why phrase was rejected.
func mnemonicError(phrase string) error {
	err := wardenerr.Wrap(wardenerr.ErrInvalidMnemonic, "%d words", len(strings.Fields(phrase)))
	if typos := wallet.DetectTypos(phrase); len(typos) > 0 {
		return wardenerr.WithSuggestion(err, wallet.FormatTypoSuggestions(typos))
	}
	return wardenerr.WithSuggestion(err, "Check the word order and count; the checksum does not match")
}

// storeLocal encrypts mnemonic under a new password and saves it as name.
func storeLocal(cc *CommandContext, name, mnemonic string, askPassphrase, legacy bool) (*keySummary, error) {
	var passphrase string
	if askPassphrase {
		var err error
		if passphrase, err = promptPassphraseFn(); err != nil {
			return nil, err
		}
	}

	pw, err := promptNewPasswordFn(cc.Cfg.Security.MinPasswordLength)
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(pw)

	opener, err := cc.opener(cc.passwordSource(name))
	if err != nil {
		return nil, err
	}
	k, err := walletkey.CreateLocal(legacy, mnemonic, passphrase, pw, opener)
	if err != nil {
		return nil, err
	}
	defer k.Lock()

	network, err := cc.Network()
	if err != nil {
		return nil, err
	}
	addr, err := k.DerivePublicAddress(network, 0)
	if err != nil {
		return nil, err
	}

	if err := cc.Store.Save(keystore.NewEntry(name, k)); err != nil {
		return nil, err
	}
	path, _ := cc.Store.Path(name)
	cc.Log.Debug("created %s key %s", walletkey.TypeLocal, name)

	return &keySummary{
		Name:    name,
		Type:    walletkey.TypeLocal.Name,
		Address: addr.String(),
		Path:    path,
	}, nil
}

// displayMnemonic prints the phrase as numbered words.
func displayMnemonic(w io.Writer, mnemonic string) {
	words := strings.Fields(mnemonic)
	outln(w)
	outln(w, "Write down these words in order and keep them offline:")
	outln(w)
	for i, word := range words {
		out(w, "  %2d. %-10s", i+1, word)
		if (i+1)%4 == 0 {
			outln(w)
		}
	}
	if len(words)%4 != 0 {
		outln(w)
	}
	outln(w)
}

// keyList is the result of key list.
type keyList struct {
	Keys []keyListEntry `json:"keys"`
}

type keyListEntry struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func (l keyList) RenderText(w io.Writer) error {
	if len(l.Keys) == 0 {
		outln(w, "No keys found. Create one with: warden key create <name>")
		return nil
	}
	t := output.NewTable("NAME", "TYPE", "CREATED")
	for _, k := range l.Keys {
		t.AddRow(k.Name, k.Type, k.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return t.RenderText(w)
}

func runKeyList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	entries, err := cc.Store.List()
	if err != nil {
		return err
	}
	list := keyList{Keys: make([]keyListEntry, 0, len(entries))}
	for _, e := range entries {
		list.Keys = append(list.Keys, keyListEntry{Name: e.Name, Type: e.Type, CreatedAt: e.CreatedAt})
	}
	return cc.Fmt.Print(list)
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	entry, err := cc.Store.Load(name)
	if err != nil {
		return err
	}
	if !deleteForce && !promptConfirmFn(fmt.Sprintf("Delete %s key %s?", entry.Type, name)) {
		return wardenerr.Wrap(wardenerr.ErrCancelled, "key kept")
	}
	if err := cc.Store.Delete(name); err != nil {
		return err
	}
	endSession(cc, name)
	cc.Msg.Success("deleted %s", name)
	return nil
}

// endSession drops any password session for name. A missing session is fine.
func endSession(cc *CommandContext, name string) {
	if cc.Sessions == nil || !cc.Sessions.Available() {
		return
	}
	if err := cc.Sessions.End(name); err != nil {
		cc.Log.Error("ending session for %s: %v", name, err)
	}
}
