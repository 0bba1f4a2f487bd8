// Package config loads warden's YAML configuration and derives the paths
// and device settings the commands use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/walletkey"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

var appVersionRegex = regexp.MustCompile(`^v?\d+(\.\d+){0,2}$`)

// Config is the whole configuration file.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Network  string         `yaml:"network"`
	Security SecurityConfig `yaml:"security"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SecurityConfig covers password handling and secret caching.
type SecurityConfig struct {
	CachePolicy       string `yaml:"cache_policy"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	MemoryLock        bool   `yaml:"memory_lock"`
	MinPasswordLength int    `yaml:"min_password_length"`
	SessionEnabled    bool   `yaml:"session_enabled"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// LedgerConfig covers device discovery and transport.
type LedgerConfig struct {
	VendorID              uint16 `yaml:"vendor_id"`
	PacketSize            int    `yaml:"packet_size"`
	ContinuationTimeoutMS int    `yaml:"continuation_timeout_ms"`
	ScanIntervalMS        int    `yaml:"scan_interval_ms"`
	QueueSize             int    `yaml:"queue_size"`
	EmulatorAddr          string `yaml:"emulator_addr"`
	MinAppVersion         string `yaml:"min_app_version"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads configuration from path on top of Defaults.
func Load(path string) (*Config, error) {
	data, err := fileutil.ReadLimited(path, 1<<20)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, wardenerr.WithDetails(wardenerr.ErrConfigInvalid, map[string]string{
			"path":  path,
			"error": err.Error(),
		})
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), fileutil.SecretDirMode); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, fileutil.SecretFileMode)
}

// Path returns the config file path under home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns ~/.warden, or .warden when there is no home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// HomeDir is Home with "~" expanded.
func (c *Config) HomeDir() string { return ExpandHome(c.Home) }

// KeysDir is where key files live.
func (c *Config) KeysDir() string { return filepath.Join(c.HomeDir(), "keys") }

// SessionsDir is where unlock sessions live.
func (c *Config) SessionsDir() string { return filepath.Join(c.HomeDir(), "sessions") }

// BackupsDir is where backup archives go by default.
func (c *Config) BackupsDir() string { return filepath.Join(c.HomeDir(), "backups") }

// LogFile is the log path with "~" expanded.
func (c *Config) LogFile() string { return ExpandHome(c.Logging.File) }

// NetworkType parses Network.
func (c *Config) NetworkType() (ergo.NetworkType, error) {
	return ergo.ParseNetwork(c.Network)
}

// CachePolicy parses Security.CachePolicy.
func (c *Config) CachePolicy() (walletkey.CachePolicy, error) {
	return walletkey.ParseCachePolicy(c.Security.CachePolicy)
}

// CacheTTL returns the timed cache window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Security.CacheTTLSeconds) * time.Second
}

// SessionTTL returns the unlock session length.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.SessionTTLMinutes) * time.Minute
}

// ContinuationTimeout is the wait for HID continuation packets.
func (c *Config) ContinuationTimeout() time.Duration {
	return time.Duration(c.Ledger.ContinuationTimeoutMS) * time.Millisecond
}

// ScanInterval is the device polling period.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Ledger.ScanIntervalMS) * time.Millisecond
}

// Validate checks every field a command relies on.
func (c *Config) Validate() error {
	problems := map[string]string{}

	if c.Version != 1 {
		problems["version"] = fmt.Sprintf("unsupported version %d", c.Version)
	}
	if strings.TrimSpace(c.Home) == "" {
		problems["home"] = "must not be empty"
	}
	if _, err := c.NetworkType(); err != nil {
		problems["network"] = "must be mainnet or testnet"
	}
	if _, err := c.CachePolicy(); err != nil {
		problems["security.cache_policy"] = "must be off, permanent or timed"
	}
	if c.Security.CacheTTLSeconds <= 0 {
		problems["security.cache_ttl_seconds"] = "must be positive"
	}
	if c.Security.MinPasswordLength < 1 {
		problems["security.min_password_length"] = "must be at least 1"
	}
	if c.Security.SessionTTLMinutes < 1 || c.Security.SessionTTLMinutes > 60 {
		problems["security.session_ttl_minutes"] = "must be between 1 and 60"
	}
	if c.Ledger.PacketSize < 6 {
		problems["ledger.packet_size"] = "must be at least 6"
	}
	if c.Ledger.ContinuationTimeoutMS <= 0 {
		problems["ledger.continuation_timeout_ms"] = "must be positive"
	}
	if c.Ledger.ScanIntervalMS <= 0 {
		problems["ledger.scan_interval_ms"] = "must be positive"
	}
	if c.Ledger.QueueSize < 1 {
		problems["ledger.queue_size"] = "must be at least 1"
	}
	if v := c.Ledger.MinAppVersion; v != "" && !appVersionRegex.MatchString(v) {
		problems["ledger.min_app_version"] = "must look like 0.1.5"
	}
	switch c.Output.DefaultFormat {
	case "auto", "text", "json":
	default:
		problems["output.default_format"] = "must be auto, text or json"
	}
	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		problems["output.color"] = "must be auto, always or never"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "off", "none", "error", "debug":
	default:
		problems["logging.level"] = "must be off, error or debug"
	}

	if len(problems) > 0 {
		return wardenerr.WithDetails(wardenerr.ErrConfigInvalid, problems)
	}
	return nil
}
