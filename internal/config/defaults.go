package config

import (
	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/hid"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.warden",
		Network: "mainnet",
		Security: SecurityConfig{
			CachePolicy:       "timed",
			CacheTTLSeconds:   60,
			MemoryLock:        true,
			MinPasswordLength: 8,
			SessionEnabled:    true,
			SessionTTLMinutes: 15,
		},
		Ledger: LedgerConfig{
			VendorID:              hid.LedgerVendorID,
			PacketSize:            hid.DefaultPacketSize,
			ContinuationTimeoutMS: int(hid.DefaultContinuationTimeout.Milliseconds()),
			ScanIntervalMS:        int(hid.DefaultScanInterval.Milliseconds()),
			QueueSize:             apdu.DefaultQueueSize,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.warden/warden.log",
		},
	}
}
