// Package errors provides structured error handling for Warden.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitAuth     = 3 // Authentication failed or cancelled
	ExitNotFound = 4 // Resource not found
	ExitDevice   = 5 // Hardware device refused or is unavailable
)

// WardenError is the structured error type for Warden.
type WardenError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WardenError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WardenError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WardenError.
func (e *WardenError) Is(target error) bool {
	var t *WardenError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &WardenError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &WardenError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Failures: recoverable, user-facing conditions.
	ErrAuthentication = &WardenError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "incorrect password",
		ExitCode: ExitAuth,
	}

	ErrCancelled = &WardenError{
		Code:     "CANCELLED",
		Message:  "operation cancelled",
		ExitCode: ExitAuth,
	}

	ErrDeviceLocked = &WardenError{
		Code:       "DEVICE_LOCKED",
		Message:    "device is locked",
		Suggestion: "Unlock your Ledger with its PIN and try again",
		ExitCode:   ExitDevice,
	}

	// Device errors.
	ErrDeviceDenied = &WardenError{
		Code:     "DEVICE_DENIED",
		Message:  "request was denied on the device",
		ExitCode: ExitDevice,
	}

	ErrDeviceNotFound = &WardenError{
		Code:       "DEVICE_NOT_FOUND",
		Message:    "no Ledger device found",
		Suggestion: "Connect your Ledger over USB and unlock it",
		ExitCode:   ExitDevice,
	}

	ErrDeviceUnavailable = &WardenError{
		Code:       "DEVICE_UNAVAILABLE",
		Message:    "the Ergo app is not open on the device",
		Suggestion: "Open the Ergo app on your Ledger first",
		ExitCode:   ExitDevice,
	}

	ErrWrongDevice = &WardenError{
		Code:     "WRONG_DEVICE",
		Message:  "this wallet does not belong to the connected device",
		ExitCode: ExitDevice,
	}

	ErrProtocol = &WardenError{
		Code:     "PROTOCOL_ERROR",
		Message:  "device protocol violation",
		ExitCode: ExitGeneral,
	}

	ErrInvariant = &WardenError{
		Code:     "INTERNAL_INVARIANT",
		Message:  "internal invariant violated",
		ExitCode: ExitGeneral,
	}

	// Key errors.
	ErrKeyNotFound = &WardenError{
		Code:     "KEY_NOT_FOUND",
		Message:  "key not found",
		ExitCode: ExitNotFound,
	}

	ErrKeyExists = &WardenError{
		Code:     "KEY_EXISTS",
		Message:  "key already exists",
		ExitCode: ExitInput,
	}

	ErrUnknownKeyType = &WardenError{
		Code:     "UNKNOWN_KEY_TYPE",
		Message:  "unknown wallet key type",
		ExitCode: ExitInput,
	}

	ErrInvalidMnemonic = &WardenError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrNotSupported = &WardenError{
		Code:     "NOT_SUPPORTED",
		Message:  "operation not supported for this key type",
		ExitCode: ExitInput,
	}

	ErrTooManyTokens = &WardenError{
		Code:     "TOO_MANY_TOKENS",
		Message:  "too many distinct tokens (max 20)",
		ExitCode: ExitInput,
	}

	// Config-specific errors.
	ErrConfigInvalid = &WardenError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	// Backup-specific errors.
	ErrBackupCorrupted = &WardenError{
		Code:     "BACKUP_CORRUPTED",
		Message:  "backup file is corrupted - checksum mismatch",
		ExitCode: ExitInput,
	}
)

// New creates a new WardenError with the given code and message.
func New(code, message string) *WardenError {
	return &WardenError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *WardenError
	if errors.As(err, &se) {
		return &WardenError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *WardenError
	if errors.As(err, &se) {
		return &WardenError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *WardenError
	if errors.As(err, &se) {
		return &WardenError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &WardenError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// IsFailure reports whether err is a recoverable, user-facing failure:
// a wrong password, a cancelled prompt or a locked device. Failures are
// shown to the user and never treated as defects.
func IsFailure(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrDeviceLocked)
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *WardenError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *WardenError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
