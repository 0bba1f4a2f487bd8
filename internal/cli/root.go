// Package cli implements the warden command-line interface.
//
// Global flags and the state built from them live in package variables, the
// way cobra applications are usually laid out. The state is initialized in
// PersistentPreRunE and released in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	quiet        bool

	// Global state initialized in PersistentPreRunE
	cfg         *config.Config
	logger      *config.Logger
	formatter   *output.Formatter
	stopMetrics func()

	enrichOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Key custody for an Ergo wallet",
	Long: `Warden keeps the signing authority of an Ergo wallet.

A key is either a password encrypted mnemonic kept on this machine (LOCAL)
or a reference to a Ledger device running the Ergo app (LEDGER). Keys are
stored under <home>/keys and can be archived with an age passphrase.`,
	Example: `  warden key create main
  warden ledger create cold
  warden tx sign cold --tx unsigned.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(); err != nil {
			return err
		}
		// Cobra only hands the execution context to a subcommand that has
		// none, so a command run twice would keep the first one.
		cmd.SetContext(cmd.Root().Context())
		SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter))
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which aborts any device request in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enrichOnce.Do(func() { walkCommands(rootCmd, enrichParentLong) })

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if formatter != nil {
			_ = output.FormatError(os.Stderr, err, formatter.Format())
		} else {
			_ = output.FormatError(os.Stderr, err, output.FormatText)
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	return wardenerr.ExitCode(err)
}

// initGlobals loads the configuration and builds the logger and formatter.
// Precedence is flags, then environment, then the config file, then defaults.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.LoadOrDefault(config.Path(config.ExpandHome(home)))
	if err != nil {
		return err
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	wardencrypto.SetMemoryLock(cfg.Security.MemoryLock)

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.LogFile())
	if err != nil {
		logger = config.NullLogger()
	}

	format := output.DetectFormat(os.Stdout, output.ParseFormat(cfg.Output.DefaultFormat))
	formatter = output.NewFormatter(format, os.Stdout)

	stopMetrics = startMetricsServer(cfg.Metrics.ListenAddr, logger.Named("metrics"))
	return nil
}

// cleanup releases resources.
func cleanup() {
	if stopMetrics != nil {
		stopMetrics()
		stopMetrics = nil
	}
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "keys", Title: "Key Commands:"},
		&cobra.Group{ID: "device", Title: "Device Commands:"},
		&cobra.Group{ID: "security", Title: "Security Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "warden data directory (default: ~/.warden)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational notes")
}
