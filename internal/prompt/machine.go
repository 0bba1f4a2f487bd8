package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mrz1836/warden/internal/metrics"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// State is a prompt machine state.
type State int

// States. Retry moves a resolved-denied or resolved-error machine back to
// awaiting-device.
const (
	StateIdle State = iota
	StateAwaitingDevice
	StateResolvedOK
	StateResolvedDenied
	StateResolvedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDevice:
		return "awaiting-device"
	case StateResolvedOK:
		return "resolved-ok"
	case StateResolvedDenied:
		return "resolved-denied"
	case StateResolvedError:
		return "resolved-error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

//nolint:gochecknoglobals // transition table
var transitions = map[State][]State{
	StateIdle:           {StateAwaitingDevice},
	StateAwaitingDevice: {StateResolvedOK, StateResolvedDenied, StateResolvedError},
	StateResolvedOK:     {StateIdle},
	StateResolvedDenied: {StateAwaitingDevice, StateIdle},
	StateResolvedError:  {StateAwaitingDevice, StateIdle},
}

// Messages shown while a request is pending.
const (
	MessageApprove     = "Please approve the request on your Ledger device"
	MessageApproveSign = "Please approve the signing request on your Ledger device"
	MessageDenied      = "You denied the request"
	MessageLocked      = "The device is locked. Unlock it and ask again"
)

// Display shows the progress of a device request.
type Display interface {
	Awaiting(message string)
	Denied(message string)
	Locked(message string)
	Resolved(state State)
}

// Decider asks the user whether to retry after a denial or a locked device.
type Decider interface {
	OfferRetry(reason Outcome) bool
}

// Logger receives state transitions.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// NopDisplay shows nothing.
type NopDisplay struct{}

func (NopDisplay) Awaiting(string) {}
func (NopDisplay) Denied(string)   {}
func (NopDisplay) Locked(string)   {}
func (NopDisplay) Resolved(State)  {}

// Never declines every retry offer.
type Never struct{}

// OfferRetry implements Decider.
func (Never) OfferRetry(Outcome) bool { return false }

// Machine drives one device request at a time through its states. A machine
// is reused across retries and across requests but must not run two requests
// at once.
type Machine struct {
	mu      sync.Mutex
	state   State
	display Display
	decider Decider
	logger  Logger
}

// NewMachine returns an idle machine. Nil arguments fall back to a silent
// display, a decider that never retries and a discarding logger.
func NewMachine(display Display, decider Decider, logger Logger) *Machine {
	if display == nil {
		display = NopDisplay{}
	}
	if decider == nil {
		decider = Never{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Machine{display: display, decider: decider, logger: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) transition(to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			m.logger.Debug("prompt: %s -> %s", m.state, to)
			m.state = to
			return
		}
	}
	panic(fmt.Sprintf("%v: prompt transition %s -> %s", wardenerr.ErrInvariant, m.state, to))
}

func (m *Machine) resolve(to State, outcome Outcome) {
	m.transition(to)
	metrics.RecordPromptOutcome(outcome.String())
	m.display.Resolved(to)
}

// Run shows message, runs req and resolves the machine from its result. On a
// denial or a locked device the decider may send the machine back to
// awaiting-device, which runs req again. A final denial returns the denial
// error so callers can tell it apart from a Failure; a final locked device
// returns ErrDeviceLocked. Context cancellation returns ErrCancelled.
func Run[T any](ctx context.Context, m *Machine, message string, req func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if m.State() != StateIdle {
		m.transition(StateIdle)
	}
	m.transition(StateAwaitingDevice)

	for {
		m.display.Awaiting(message)
		v, err := req(ctx)
		if err == nil {
			m.resolve(StateResolvedOK, OutcomeOK)
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			m.resolve(StateResolvedError, OutcomeFatal)
			return zero, wardenerr.Wrap(wardenerr.ErrCancelled, "device request")
		}

		outcome := Classify(err)
		switch outcome {
		case OutcomeDenied:
			m.resolve(StateResolvedDenied, outcome)
			m.display.Denied(MessageDenied)
		case OutcomeLocked:
			m.resolve(StateResolvedError, outcome)
			m.display.Locked(MessageLocked)
		default:
			m.resolve(StateResolvedError, outcome)
			m.logger.Error("prompt: device request failed: %v", err)
			return zero, err
		}

		if !m.decider.OfferRetry(outcome) {
			return zero, err
		}
		m.transition(StateAwaitingDevice)
	}
}
