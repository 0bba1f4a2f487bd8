package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/walletkey"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var unlockTTL time.Duration

// sessionCmd is the parent command for session operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage password sessions",
	Long: `Keep a key password available to later commands for a limited time.

An unlocked key does not ask for its password again until the session
expires (default: 15 minutes). The password is sealed in a file under
<home>/sessions and the sealing key is kept in the system keychain:
- macOS: Keychain
- Linux: Secret Service (GNOME Keyring, KWallet)
- Windows: Credential Manager

Without a keychain sessions are unavailable and every command prompts.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionUnlockCmd = &cobra.Command{
	Use:   "unlock <name>",
	Short: "Start a password session for a key",
	Long: `Ask for the password of a key, check it, and keep it for --ttl. The
check decrypts the key file only; no device is contacted.`,
	Example: `  warden session unlock main
  warden session unlock main --ttl 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionUnlock,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show active sessions and remaining time",
	Long:    `Show all active password sessions and their remaining time until expiry.`,
	Example: `  warden session status`,
	Args:    cobra.NoArgs,
	RunE:    runSessionStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionLockCmd = &cobra.Command{
	Use:   "lock [name]",
	Short: "End sessions immediately",
	Long: `End the session of one key, or every session when no name is given.

Use this when stepping away from your computer.`,
	Example: `  warden session lock
  warden session lock main`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessionLock,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sessionCmd.GroupID = "security"
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionUnlockCmd, sessionStatusCmd, sessionLockCmd)

	sessionUnlockCmd.Flags().DurationVar(&unlockTTL, "ttl", 0, "session length (default: security.session_ttl_minutes, max 60m)")
}

// sessionsUnavailable explains why no session can be used.
func sessionsUnavailable(cc *CommandContext) error {
	if !cc.Cfg.Security.SessionEnabled {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrNotSupported, "sessions are disabled"),
			"Set security.session_enabled: true in the config file")
	}
	return wardenerr.WithSuggestion(
		wardenerr.Wrap(wardenerr.ErrNotSupported, "%v", session.ErrKeyringUnavailable),
		"Install or unlock a system keychain")
}

func sessionsReady(cc *CommandContext) bool {
	return cc.Sessions != nil && cc.Sessions.Available()
}

// sessionEntry is one session in command results.
type sessionEntry struct {
	Key       string    `json:"key"`
	ExpiresIn string    `json:"expires_in"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newSessionEntry(s *session.Session, now time.Time) sessionEntry {
	return sessionEntry{
		Key:       s.KeyName,
		ExpiresIn: formatDuration(s.RemainingAt(now)),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func (e sessionEntry) RenderText(w io.Writer) error {
	out(w, "Unlocked %s for %s\n", e.Key, e.ExpiresIn)
	return nil
}

func runSessionUnlock(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if !sessionsReady(cc) {
		return sessionsUnavailable(cc)
	}
	name := args[0]
	entry, err := cc.Store.Load(name)
	if err != nil {
		return err
	}

	pw, err := promptPasswordFn(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return err
	}
	defer wardencrypto.ZeroBytes(pw)
	if err := walletkey.VerifyPassword(entry.Blob, pw); err != nil {
		return err
	}

	ttl := unlockTTL
	if ttl == 0 {
		ttl = cc.Cfg.SessionTTL()
	}
	s, err := cc.Sessions.Start(name, pw, ttl)
	if err != nil {
		return err
	}
	cc.Log.Debug("session started for %s until %s", name, s.ExpiresAt.Format(time.RFC3339))
	return cc.Fmt.Print(newSessionEntry(s, time.Now()))
}

// sessionStatus is the result of session status.
type sessionStatus struct {
	Available bool           `json:"available"`
	Sessions  []sessionEntry `json:"sessions"`
}

func (s sessionStatus) RenderText(w io.Writer) error {
	switch {
	case !s.Available:
		outln(w, "Sessions are not available (disabled or no keychain)")
	case len(s.Sessions) == 0:
		outln(w, "No active sessions")
	default:
		outln(w, "Active Sessions:")
		for _, e := range s.Sessions {
			out(w, "  %s: expires in %s\n", e.Key, e.ExpiresIn)
		}
	}
	return nil
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if !sessionsReady(cc) {
		return cc.Fmt.Print(sessionStatus{Sessions: []sessionEntry{}})
	}

	sessions, err := cc.Sessions.List()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	now := time.Now()
	status := sessionStatus{Available: true, Sessions: make([]sessionEntry, 0, len(sessions))}
	for _, s := range sessions {
		status.Sessions = append(status.Sessions, newSessionEntry(s, now))
	}
	return cc.Fmt.Print(status)
}

// lockResult is the result of session lock.
type lockResult struct {
	Ended int `json:"ended"`
}

func (r lockResult) RenderText(w io.Writer) error {
	out(w, "Ended %d session(s)\n", r.Ended)
	return nil
}

func runSessionLock(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if !sessionsReady(cc) {
		return cc.Fmt.Print(lockResult{})
	}

	if len(args) == 1 {
		live, err := cc.Sessions.List()
		if err != nil {
			return err
		}
		if err := cc.Sessions.End(args[0]); err != nil {
			return err
		}
		ended := 0
		for _, s := range live {
			if s.KeyName == args[0] {
				ended = 1
			}
		}
		return cc.Fmt.Print(lockResult{Ended: ended})
	}

	count, err := cc.Sessions.EndAll()
	if err != nil {
		return err
	}
	return cc.Fmt.Print(lockResult{Ended: count})
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
