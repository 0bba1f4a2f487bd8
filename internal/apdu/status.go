package apdu

import (
	"errors"
	"fmt"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Status words.
const (
	SWOK               uint16 = 0x9000
	SWDenied           uint16 = 0x6985
	SWLocked           uint16 = 0x5515
	SWWrongP1P2        uint16 = 0x6a86
	SWWrongLength      uint16 = 0x6a87
	SWINSNotSupport    uint16 = 0x6d00
	SWCLANotSupport    uint16 = 0x6e00
	SWAppNotOpen       uint16 = 0x6e01
	SWAppNotOpenLegacy uint16 = 0x6511
	SWBusy             uint16 = 0xb000
	SWBadSession       uint16 = 0xb002
	SWBadState         uint16 = 0xb0f0
	SWTooManyTokens    uint16 = 0xe00a
	SWBadFrameSig      uint16 = 0xe018
)

var statusMessages = map[uint16]string{
	SWDenied:           "denied by user",
	SWLocked:           "device is locked",
	SWWrongP1P2:        "wrong P1/P2",
	SWWrongLength:      "wrong data length",
	SWINSNotSupport:    "instruction not supported",
	SWCLANotSupport:    "class not supported",
	SWAppNotOpen:       "app is not open",
	SWAppNotOpenLegacy: "app is not open",
	SWBusy:             "device busy",
	0xb001:             "wrong response length",
	SWBadSession:       "bad session id",
	0xb003:             "wrong subcommand",
	SWBadState:         "bad state",
	0xe001:             "bad token id",
	0xe002:             "bad token value",
	0xe003:             "bad context extension size",
	0xe004:             "bad data input",
	0xe005:             "bad box id",
	0xe006:             "bad token index",
	0xe007:             "bad frame index",
	0xe008:             "bad input count",
	0xe009:             "bad output count",
	SWTooManyTokens:    "too many tokens",
	0xe00b:             "too many inputs",
	0xe00c:             "too many data inputs",
	0xe00d:             "too many input frames",
	0xe00e:             "too many outputs",
	0xe010:             "buffer error",
	0xe011:             "u64 overflow",
	0xe012:             "bad bip32 path",
	0xe014:             "not enough data",
	0xe015:             "too much data",
	0xe016:             "address generation failed",
	0xe017:             "schnorr signing failed",
	SWBadFrameSig:      "bad frame signature",
	0xe019:             "bad network type",
	0xe01a:             "chunk too small",
}

// StatusError is a non-OK status word returned by the device.
type StatusError struct {
	SW uint16
}

func (e *StatusError) Error() string {
	if msg, ok := statusMessages[e.SW]; ok {
		return fmt.Sprintf("device returned 0x%04x: %s", e.SW, msg)
	}
	return fmt.Sprintf("device returned 0x%04x", e.SW)
}

// Denied reports whether the user rejected the request on the device.
func (e *StatusError) Denied() bool {
	return e.SW == SWDenied
}

// Unwrap classifies the status word against the warden sentinels.
func (e *StatusError) Unwrap() error {
	switch e.SW {
	case SWDenied:
		return wardenerr.ErrDeviceDenied
	case SWLocked:
		return wardenerr.ErrDeviceLocked
	case SWCLANotSupport, SWINSNotSupport, SWAppNotOpen, SWAppNotOpenLegacy:
		return wardenerr.ErrDeviceUnavailable
	default:
		return wardenerr.ErrProtocol
	}
}

// IsDenied reports whether err carries a user denial status word.
func IsDenied(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Denied()
}
