package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/warden/internal/config"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify warden configuration settings.

Settings are read from <home>/config.yaml. Environment variables (WARDEN_*)
override the file and command-line flags override both.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at <home>/config.yaml.

An existing file is only replaced with --force.`,
	Example: `  warden config init
  warden config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, after environment and flag overrides.`,
	Example: `  warden config show
  warden config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long:  `Get one configuration value by its dotted path.`,
	Example: `  warden config get security.cache_policy
  warden config get ledger.emulator_addr`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set one configuration value by its dotted path and save the file. The
result is validated before it is written.`,
	Example: `  warden config set security.cache_policy off
  warden config set network testnet
  warden config set ledger.min_app_version 1.0.5`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = "config"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func configPath(cc *CommandContext) string {
	return config.Path(cc.Cfg.HomeDir())
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := configPath(cc)

	if _, err := os.Stat(path); err == nil && !configForce {
		return wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"file": path}),
			"The configuration already exists. Use --force to overwrite it")
	}

	defaults := config.Defaults()
	defaults.Home = cc.Cfg.Home
	if err := config.Save(defaults, path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", path)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - network: mainnet or testnet")
	outln(w, "  - security.cache_policy: off, permanent or timed")
	outln(w, "  - ledger.emulator_addr: Speculos address for testing")
	outln(w, "  - logging.level: off, error or debug")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	tree, err := configTree(cc.Cfg)
	if err != nil {
		return err
	}
	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(tree)
	}
	data, err := yaml.Marshal(cc.Cfg)
	if err != nil {
		return err
	}
	_, err = cc.Fmt.Writer().Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	value, err := getConfigValue(cc.Cfg, args[0])
	if err != nil {
		return err
	}
	outln(cc.Fmt.Writer(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path := configPath(cc)

	current, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		current.Home = cc.Cfg.Home
	}
	updated, err := setConfigValue(current, args[0], args[1])
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.Save(updated, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	out(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
	return nil
}

// configTree returns c as nested maps keyed by the YAML field names.
func configTree(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func unknownKey(path string) error {
	return wardenerr.WithSuggestion(
		wardenerr.WithDetails(wardenerr.ErrNotFound, map[string]string{"path": path}),
		"Run warden config show to see the available settings")
}

// getConfigValue retrieves a leaf value from the config using dot notation.
func getConfigValue(c *config.Config, path string) (string, error) {
	tree, err := configTree(c)
	if err != nil {
		return "", err
	}
	var node any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", unknownKey(path)
		}
		if node, ok = m[part]; !ok {
			return "", unknownKey(path)
		}
	}
	if _, ok := node.(map[string]any); ok {
		return "", unknownKey(path)
	}
	return fmt.Sprint(node), nil
}

// setConfigValue returns a copy of c with the leaf at path set to value.
// The value is parsed as a YAML scalar, so numbers and booleans keep their
// type.
func setConfigValue(c *config.Config, path, value string) (*config.Config, error) {
	if _, err := getConfigValue(c, path); err != nil {
		return nil, err
	}
	tree, err := configTree(c)
	if err != nil {
		return nil, err
	}

	var scalar any
	if err := yaml.Unmarshal([]byte(value), &scalar); err != nil || isCollection(scalar) {
		scalar = value
	}

	parts := strings.Split(path, ".")
	m := tree
	for _, part := range parts[:len(parts)-1] {
		m, _ = m[part].(map[string]any)
	}
	m[parts[len(parts)-1]] = scalar

	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	updated := &config.Config{}
	if err := dec.Decode(updated); err != nil {
		return nil, wardenerr.WithDetails(wardenerr.ErrConfigInvalid, map[string]string{path: err.Error()})
	}
	return updated, nil
}

func isCollection(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
