package hid_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/hid"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

type fakeEnumerator struct {
	mu      sync.Mutex
	devices []hid.DeviceInfo
	err     error
}

func (e *fakeEnumerator) set(devs ...hid.DeviceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = devs
}

func (e *fakeEnumerator) Enumerate(vendorID uint16) ([]hid.DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	var out []hid.DeviceInfo
	for _, d := range e.devices {
		if d.VendorID == vendorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *fakeEnumerator) Open(hid.DeviceInfo) (hid.Device, error) {
	return newFakeDevice(), nil
}

var (
	nanoX = hid.DeviceInfo{Path: "usb-1", VendorID: hid.LedgerVendorID, ProductID: 0x4011, UsagePage: 0xffa0}
	nanoS = hid.DeviceInfo{Path: "usb-2", VendorID: hid.LedgerVendorID, ProductID: 0x1011, Interface: 0}
)

func TestSelector_ScanFiltersInterfaces(t *testing.T) {
	t.Parallel()
	enum := &fakeEnumerator{}
	enum.set(
		nanoX,
		hid.DeviceInfo{Path: "usb-1-fido", VendorID: hid.LedgerVendorID, ProductID: 0x4011, UsagePage: 0xf1d0, Interface: 1},
		hid.DeviceInfo{Path: "other", VendorID: 0x1234, Interface: 0},
		nanoX,
	)

	devs, err := hid.NewSelector(enum).Scan()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "Ledger Nano X", devs[0].Model())
}

func TestSelector_AwaitReportsNewDevice(t *testing.T) {
	t.Parallel()
	enum := &fakeEnumerator{}
	sel := hid.NewSelector(enum, hid.WithScanInterval(5*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		enum.set(nanoS)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := sel.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "usb-2", info.Path)
}

func TestSelector_AwaitCancelled(t *testing.T) {
	t.Parallel()
	sel := hid.NewSelector(&fakeEnumerator{}, hid.WithScanInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := sel.Await(ctx)
	require.ErrorIs(t, err, wardenerr.ErrCancelled)
}

func TestSelector_WatchSurvivesScanErrors(t *testing.T) {
	t.Parallel()
	enum := &fakeEnumerator{err: errors.New("hidapi busy")}
	sel := hid.NewSelector(enum, hid.WithScanInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := sel.Watch(ctx)

	time.Sleep(20 * time.Millisecond)
	enum.mu.Lock()
	enum.err = nil
	enum.devices = []hid.DeviceInfo{nanoX}
	enum.mu.Unlock()

	info := <-ch
	assert.Equal(t, "usb-1", info.Path)
}
