// Package prompt runs device requests that wait on the user, classifying
// their failures and offering to ask again after a denial or a locked device.
package prompt

import (
	"errors"

	"github.com/mrz1836/warden/internal/apdu"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Outcome is the class of a device request result.
type Outcome int

// Outcomes.
const (
	OutcomeOK Outcome = iota
	OutcomeDenied
	OutcomeLocked
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDenied:
		return "denied"
	case OutcomeLocked:
		return "locked"
	default:
		return "fatal"
	}
}

// Retryable reports whether asking again can change the result.
func (o Outcome) Retryable() bool {
	return o == OutcomeDenied || o == OutcomeLocked
}

// Classify sorts a device request error. A denial status word and a locked
// device are retryable; everything else, including unknown status words and
// framing violations, is fatal.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case apdu.IsDenied(err), errors.Is(err, wardenerr.ErrDeviceDenied):
		return OutcomeDenied
	case errors.Is(err, wardenerr.ErrDeviceLocked):
		return OutcomeLocked
	default:
		return OutcomeFatal
	}
}
