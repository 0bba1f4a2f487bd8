package hid

// LedgerVendorID is the USB vendor id of every Ledger device.
const LedgerVendorID uint16 = 0x2c97

// EmulatorProductID is reported for the Speculos emulator link.
const EmulatorProductID uint32 = 0x1011

// ModelName returns a display name for a Ledger USB product id. Current
// firmware reports the model in the high byte with interface flags in the
// low byte. Old firmware reports a bare model number.
func ModelName(productID uint32) string {
	model := productID
	if productID > 0xff {
		model = productID >> 8
	} else {
		model <<= 4
	}

	switch model {
	case 0x00:
		return "Ledger Blue"
	case 0x10:
		return "Ledger Nano S"
	case 0x40:
		return "Ledger Nano X"
	case 0x50:
		return "Ledger Nano S Plus"
	case 0x60:
		return "Ledger Stax"
	default:
		return "Ledger"
	}
}
