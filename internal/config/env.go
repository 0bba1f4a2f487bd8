package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome           = "WARDEN_HOME"
	EnvNetwork        = "WARDEN_NETWORK"
	EnvOutputFormat   = "WARDEN_OUTPUT_FORMAT"
	EnvVerbose        = "WARDEN_VERBOSE"
	EnvLogLevel       = "WARDEN_LOG_LEVEL"
	EnvCachePolicy    = "WARDEN_CACHE_POLICY"
	EnvLedgerEmulator = "WARDEN_LEDGER_EMULATOR"
	EnvMetricsAddr    = "WARDEN_METRICS_ADDR"
	EnvSessionTTL     = "WARDEN_SESSION_TTL"
	EnvNoColor        = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to cfg.
//
//nolint:gocyclo // One branch per variable
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvCachePolicy); v != "" {
		cfg.Security.CachePolicy = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvLedgerEmulator); ok {
		cfg.Ledger.EmulatorAddr = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		cfg.Metrics.ListenAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv(EnvSessionTTL); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			cfg.Security.SessionTTLMinutes = ttl
		}
	}
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
