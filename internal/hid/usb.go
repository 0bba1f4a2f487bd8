package hid

import (
	"fmt"

	"github.com/karalabe/hid"
)

// ledgerUsagePage is the vendor usage page of the APDU interface.
const ledgerUsagePage = 0xffa0

// DeviceInfo describes an attached HID device.
type DeviceInfo struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string
	UsagePage uint16
	Interface int
}

// Model returns the Ledger model name for the device.
func (d DeviceInfo) Model() string {
	return ModelName(uint32(d.ProductID))
}

// Enumerator lists and opens HID devices.
type Enumerator interface {
	Enumerate(vendorID uint16) ([]DeviceInfo, error)
	Open(info DeviceInfo) (Device, error)
}

// USB enumerates real devices through hidapi.
type USB struct{}

// Supported reports whether hidapi is available on this platform build.
func (USB) Supported() bool {
	return hid.Supported()
}

// Enumerate lists attached devices with the given vendor id.
func (USB) Enumerate(vendorID uint16) ([]DeviceInfo, error) {
	infos, err := hid.Enumerate(vendorID, 0)
	if err != nil {
		return nil, fmt.Errorf("enumerating hid devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{
			Path:      info.Path,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Serial:    info.Serial,
			Product:   info.Product,
			UsagePage: info.UsagePage,
			Interface: info.Interface,
		})
	}
	return out, nil
}

// Open opens the device at info.Path.
func (USB) Open(info DeviceInfo) (Device, error) {
	infos, err := hid.Enumerate(info.VendorID, info.ProductID)
	if err != nil {
		return nil, fmt.Errorf("enumerating hid devices: %w", err)
	}
	for _, candidate := range infos {
		if candidate.Path != info.Path {
			continue
		}
		dev, err := candidate.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", info.Path, err)
		}
		return dev, nil
	}
	return nil, fmt.Errorf("device %s is no longer attached", info.Path)
}

// isAPDUInterface filters the APDU endpoint out of the interfaces a Ledger
// exposes. Platforms without usage pages report interface numbers instead.
func isAPDUInterface(info DeviceInfo) bool {
	return info.UsagePage == ledgerUsagePage || info.Interface == 0
}
