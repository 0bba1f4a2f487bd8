package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/mrz1836/warden/internal/prompt"
	"github.com/mrz1836/warden/internal/wallet"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // swappable for tests
var (
	promptPasswordFn         = promptPassword
	promptNewPasswordFn      = promptNewPassword
	promptPassphraseFn       = promptPassphrase
	promptBackupPassphraseFn = promptBackupPassphrase
	promptConfirmFn          = promptConfirm
	promptMnemonicFn         = promptMnemonic
)

//nolint:gochecknoglobals // one buffered reader shared by line prompts
var (
	stdinOnce   sync.Once
	stdinReader *bufio.Reader
)

func stdin() *bufio.Reader {
	stdinOnce.Do(func() { stdinReader = bufio.NewReader(os.Stdin) })
	return stdinReader
}

// out is a helper for CLI output.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// readSecret reads a line without echo. Without a terminal it falls back to
// a plain line read so passwords can be piped in.
func readSecret(label string) ([]byte, error) {
	out(os.Stderr, "%s", label)
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}
	secret, err := term.ReadPassword(fd)
	outln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return secret, nil
}

func readLine() (string, error) {
	line, err := stdin().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", wardenerr.Wrap(wardenerr.ErrCancelled, "no input")
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword asks for the password of an existing key. An empty answer
// cancels. The caller zeroes the result.
func promptPassword(label string) ([]byte, error) {
	pw, err := readSecret(label)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, wardenerr.Wrap(wardenerr.ErrCancelled, "no password entered")
	}
	return pw, nil
}

// promptNewPassword asks for a new password twice. The caller zeroes the
// result.
func promptNewPassword(minLength int) ([]byte, error) {
	pw, err := readSecret("New password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) < minLength {
		wardencrypto.ZeroBytes(pw)
		return nil, wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrInvalidInput, "password is shorter than %d characters", minLength),
			"Choose a longer password or lower security.min_password_length")
	}

	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		wardencrypto.ZeroBytes(pw)
		return nil, err
	}
	defer wardencrypto.ZeroBytes(confirm)

	if string(pw) != string(confirm) {
		wardencrypto.ZeroBytes(pw)
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidInput, "passwords do not match")
	}
	return pw, nil
}

// promptPassphrase asks for an optional mnemonic passphrase.
func promptPassphrase() (string, error) {
	outln(os.Stderr, "Mnemonic passphrase (optional, leave empty for none).")
	outln(os.Stderr, "WARNING: a lost passphrase cannot be recovered.")

	pass, err := readSecret("Passphrase: ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.ZeroBytes(pass)
	if len(pass) == 0 {
		return "", nil
	}

	confirm, err := readSecret("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.ZeroBytes(confirm)

	if string(pass) != string(confirm) {
		return "", wardenerr.Wrap(wardenerr.ErrInvalidInput, "passphrases do not match")
	}
	return string(pass), nil
}

// promptBackupPassphrase asks for the archive passphrase, twice when
// creating one.
func promptBackupPassphrase(confirm bool) (string, error) {
	pass, err := readSecret("Backup passphrase: ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.ZeroBytes(pass)
	if !confirm {
		return string(pass), nil
	}

	again, err := readSecret("Confirm backup passphrase: ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.ZeroBytes(again)
	if string(pass) != string(again) {
		return "", wardenerr.Wrap(wardenerr.ErrInvalidInput, "passphrases do not match")
	}
	return string(pass), nil
}

// promptConfirm asks a yes/no question. Anything but yes is no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)
	line, err := readLine()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// promptMnemonic reads a mnemonic on one line.
func promptMnemonic() (string, error) {
	outln(os.Stderr, "Enter the mnemonic, all words on one line:")
	secret, err := readSecret("> ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.ZeroBytes(secret)
	phrase := wallet.NormalizeMnemonicInput(string(secret))
	if phrase == "" {
		return "", wardenerr.Wrap(wardenerr.ErrCancelled, "no mnemonic entered")
	}
	return phrase, nil
}

// terminalDisplay prints device prompts to the terminal.
type terminalDisplay struct {
	mu sync.Mutex
	w  io.Writer
}

func (d *terminalDisplay) Awaiting(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out(d.w, ">> %s\n", message)
}

func (d *terminalDisplay) Denied(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out(d.w, "!! %s\n", message)
}

func (d *terminalDisplay) Locked(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out(d.w, "!! %s\n", message)
}

func (d *terminalDisplay) Resolved(prompt.State) {}

// terminalDecider offers a retry on the terminal.
type terminalDecider struct{}

func (terminalDecider) OfferRetry(reason prompt.Outcome) bool {
	if reason == prompt.OutcomeLocked {
		return promptConfirmFn("Unlock the device and try again?")
	}
	return promptConfirmFn("Ask the device again?")
}
