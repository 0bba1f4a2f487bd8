package hid

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// DefaultScanInterval paces enumeration while waiting for a device.
const DefaultScanInterval = 500 * time.Millisecond

// Selector finds Ledger devices. hidapi has no portable hotplug events, so
// attachment is detected by polling enumeration.
type Selector struct {
	enum     Enumerator
	vendorID uint16
	interval time.Duration
	logger   Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithScanInterval sets the polling interval.
func WithScanInterval(d time.Duration) SelectorOption {
	return func(s *Selector) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithVendorID overrides LedgerVendorID.
func WithVendorID(id uint16) SelectorOption {
	return func(s *Selector) { s.vendorID = id }
}

// WithSelectorLogger sets the diagnostics logger.
func WithSelectorLogger(l Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector creates a selector over enum.
func NewSelector(enum Enumerator, opts ...SelectorOption) *Selector {
	s := &Selector{
		enum:     enum,
		vendorID: LedgerVendorID,
		interval: DefaultScanInterval,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the attached devices, one entry per APDU interface.
func (s *Selector) Scan() ([]DeviceInfo, error) {
	infos, err := s.enum.Enumerate(s.vendorID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(infos))
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		if info.VendorID != s.vendorID || !isAPDUInterface(info) || seen[info.Path] {
			continue
		}
		seen[info.Path] = true
		out = append(out, info)
	}
	return out, nil
}

// Watch reports devices already attached and then every device attached
// later, until ctx is done. A device that is detached and attached again is
// reported again.
func (s *Selector) Watch(ctx context.Context) <-chan DeviceInfo {
	ch := make(chan DeviceInfo)
	limiter := rate.NewLimiter(rate.Every(s.interval), 1)

	go func() {
		defer close(ch)
		known := map[string]bool{}
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			infos, err := s.Scan()
			if err != nil {
				s.logger.Error("hid: scan failed: %v", err)
				continue
			}

			current := make(map[string]bool, len(infos))
			for _, info := range infos {
				current[info.Path] = true
				if known[info.Path] {
					continue
				}
				s.logger.Debug("hid: found %s (product 0x%04x)", info.Model(), info.ProductID)
				select {
				case ch <- info:
				case <-ctx.Done():
					return
				}
			}
			known = current
		}
	}()
	return ch
}

// Await blocks until a Ledger device is attached.
func (s *Selector) Await(ctx context.Context) (DeviceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	info, ok := <-s.Watch(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return DeviceInfo{}, wardenerr.Wrap(wardenerr.ErrCancelled, "waiting for device")
		}
		return DeviceInfo{}, wardenerr.ErrDeviceNotFound
	}
	return info, nil
}

// Open opens the device through the selector's enumerator.
func (s *Selector) Open(info DeviceInfo) (Device, error) {
	return s.enum.Open(info)
}
