package cli

import (
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/backup"
	"github.com/mrz1836/warden/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// backupKey is the key name for backup create.
	backupKey string
	// backupInput is the path to a backup file for restore/verify.
	backupInput string
	// backupRestoreName is the name for the restored key.
	backupRestoreName string
	// backupCheckDecrypt asks verify to decrypt the archive too.
	backupCheckDecrypt bool
)

// backupCmd is the parent command for backup operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage key backups",
	Long: `Create, verify and restore key archives encrypted with an age passphrase.

The passphrase is separate from the key password; the key file inside the
archive stays encrypted under its own password as well.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a key backup",
	Long: `Archive a key into <home>/backups with a timestamped name. The archive
carries a manifest and a SHA-256 checksum of the encrypted data.`,
	Example: `  warden backup create --key main`,
	Args:    cobra.NoArgs,
	RunE:    runBackupCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a backup file",
	Long: `Check the structure and checksum of a backup file. With --decrypt the
passphrase is asked for and the key inside is checked too.`,
	Example: `  warden backup verify --input ~/.warden/backups/main-20260101-120000.wbak
  warden backup verify --input main.wbak --decrypt`,
	Args: cobra.NoArgs,
	RunE: runBackupVerify,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a key from a backup",
	Long: `Restore a key from a backup file. An existing key with the same name is
never overwritten; use --name to restore under another name.`,
	Example: `  warden backup restore --input main.wbak
  warden backup restore --input main.wbak --name main-restored`,
	Args: cobra.NoArgs,
	RunE: runBackupRestore,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List available backups",
	Long:    `List the backup files in <home>/backups.`,
	Example: `  warden backup list`,
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runBackupList,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	backupCmd.GroupID = "security"
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupVerifyCmd, backupRestoreCmd, backupListCmd)

	backupCreateCmd.Flags().StringVar(&backupKey, "key", "", "key name (required)")
	_ = backupCreateCmd.MarkFlagRequired("key")

	backupVerifyCmd.Flags().StringVar(&backupInput, "input", "", "path to backup file (required)")
	backupVerifyCmd.Flags().BoolVar(&backupCheckDecrypt, "decrypt", false, "also decrypt with the passphrase")
	_ = backupVerifyCmd.MarkFlagRequired("input")

	backupRestoreCmd.Flags().StringVar(&backupInput, "input", "", "path to backup file (required)")
	backupRestoreCmd.Flags().StringVar(&backupRestoreName, "name", "", "new name for the restored key")
	_ = backupRestoreCmd.MarkFlagRequired("input")
}

func backupService(cc *CommandContext) *backup.Service {
	return backup.NewService(cc.Cfg.BackupsDir(), cc.Store)
}

// backupResult describes one archive.
type backupResult struct {
	Path      string    `json:"path,omitempty"`
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Host      string    `json:"host,omitempty"`
	Decrypted bool      `json:"decrypted"`
}

func newBackupResult(path string, m *backup.Manifest) backupResult {
	return backupResult{
		Path:      path,
		Key:       m.KeyName,
		Type:      m.KeyType,
		CreatedAt: m.CreatedAt,
		Host:      m.HostInfo,
	}
}

func (r backupResult) RenderText(w io.Writer) error {
	if r.Path != "" {
		out(w, "File:     %s\n", r.Path)
	}
	out(w, "Key:      %s (%s)\n", r.Key, r.Type)
	out(w, "Created:  %s\n", r.CreatedAt.Local().Format(time.RFC1123))
	if r.Host != "" {
		out(w, "Host:     %s\n", r.Host)
	}
	return nil
}

func runBackupCreate(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if _, err := cc.Store.Load(backupKey); err != nil {
		return err
	}

	passphrase, err := promptBackupPassphraseFn(true)
	if err != nil {
		return err
	}
	a, path, err := backupService(cc).Create(backupKey, passphrase)
	if err != nil {
		return err
	}
	cc.Log.Debug("backup of %s written to %s", backupKey, path)
	cc.Msg.Success("backup created")
	return cc.Fmt.Print(newBackupResult(path, &a.Manifest))
}

func runBackupVerify(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	var passphrase string
	if backupCheckDecrypt {
		var err error
		if passphrase, err = promptBackupPassphraseFn(false); err != nil {
			return err
		}
	}
	m, err := backupService(cc).Verify(backupInput, passphrase)
	if err != nil {
		return err
	}
	res := newBackupResult(backupInput, m)
	res.Decrypted = backupCheckDecrypt
	cc.Msg.Success("backup is intact")
	return cc.Fmt.Print(res)
}

func runBackupRestore(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	passphrase, err := promptBackupPassphraseFn(false)
	if err != nil {
		return err
	}
	entry, err := backupService(cc).Restore(backupInput, passphrase, backupRestoreName)
	if err != nil {
		return err
	}
	path, _ := cc.Store.Path(entry.Name)
	cc.Msg.Success("restored %s", entry.Name)
	return cc.Fmt.Print(restoredKey{Name: entry.Name, Type: entry.Type, Path: path})
}

// restoredKey is the result of backup restore.
type restoredKey struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

func (r restoredKey) RenderText(w io.Writer) error {
	out(w, "Key:      %s (%s)\n", r.Name, r.Type)
	out(w, "Stored:   %s\n", r.Path)
	return nil
}

// backupList is the result of backup list.
type backupList struct {
	Backups []backupResult `json:"backups"`
}

func (l backupList) RenderText(w io.Writer) error {
	if len(l.Backups) == 0 {
		outln(w, "No backups found. Create one with: warden backup create --key <name>")
		return nil
	}
	t := output.NewTable("FILE", "KEY", "TYPE", "CREATED")
	for _, b := range l.Backups {
		t.AddRow(filepath.Base(b.Path), b.Key, b.Type, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return t.RenderText(w)
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	names, err := backupService(cc).List()
	if err != nil {
		return err
	}
	list := backupList{Backups: make([]backupResult, 0, len(names))}
	for _, name := range names {
		p := filepath.Join(cc.Cfg.BackupsDir(), name)
		a, err := backup.Read(p)
		if err != nil {
			cc.Log.Error("skipping backup %s: %v", p, err)
			continue
		}
		list.Backups = append(list.Backups, newBackupResult(p, &a.Manifest))
	}
	return cc.Fmt.Print(list)
}
