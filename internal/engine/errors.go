package engine

import (
	"errors"
	"fmt"
)

// WiringError represents an error detected by a slot or container operation.
//
// Wiring errors include:
//   - Invalid handler: a nil handler passed to Register/Deregister
//   - Capacity: an add would exceed max registrations, or a remove would
//     drop below min registrations
//   - Unknown handler: Deregister found no matching registration
//   - Insufficient registrations: Invoke attempted below the min bound
//   - Invalid setting: a cardinality bound was rejected
//   - Unknown slot: DeleteSlot given a name the container does not track
//
// All of them are returned synchronously to the caller of the offending
// operation; none is ever logged and swallowed by the engine.
type WiringError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Slot names the affected slot, if any.
	Slot string

	// Handler names the affected handler, if any.
	Handler string
}

// ErrorCode categorizes wiring errors.
type ErrorCode string

const (
	// ErrCodeInvalidHandler indicates a handler that cannot be invoked.
	ErrCodeInvalidHandler ErrorCode = "INVALID_HANDLER"

	// ErrCodeCapacity indicates a max/min registrations limit was hit.
	ErrCodeCapacity ErrorCode = "CAPACITY"

	// ErrCodeUnknownHandler indicates Deregister found nothing to remove.
	ErrCodeUnknownHandler ErrorCode = "UNKNOWN_HANDLER"

	// ErrCodeInsufficientRegistrations indicates Invoke ran below min registrations.
	ErrCodeInsufficientRegistrations ErrorCode = "INSUFFICIENT_REGISTRATIONS"

	// ErrCodeInvalidSetting indicates a rejected settings mutation.
	ErrCodeInvalidSetting ErrorCode = "INVALID_SETTING"

	// ErrCodeUnknownSlot indicates a slot name the container does not track.
	ErrCodeUnknownSlot ErrorCode = "UNKNOWN_SLOT"
)

// Error implements the error interface.
func (e *WiringError) Error() string {
	if e.Slot != "" && e.Handler != "" {
		return fmt.Sprintf("%s: %s (slot=%s, handler=%s)", e.Code, e.Message, e.Slot, e.Handler)
	}
	if e.Slot != "" {
		return fmt.Sprintf("%s: %s (slot=%s)", e.Code, e.Message, e.Slot)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a WiringError.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var we *WiringError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// IsInvalidHandlerError returns true if err is an invalid handler error.
func IsInvalidHandlerError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidHandler
}

// IsCapacityError returns true if err is a max/min registrations limit error.
func IsCapacityError(err error) bool {
	return CodeOf(err) == ErrCodeCapacity
}

// IsUnknownHandlerError returns true if err reports a handler that is not wired.
func IsUnknownHandlerError(err error) bool {
	return CodeOf(err) == ErrCodeUnknownHandler
}

// IsInsufficientRegistrationsError returns true if err reports an Invoke
// attempted below the effective min registrations.
func IsInsufficientRegistrationsError(err error) bool {
	return CodeOf(err) == ErrCodeInsufficientRegistrations
}

// IsInvalidSettingError returns true if err reports a rejected settings mutation.
func IsInvalidSettingError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidSetting
}

// IsUnknownSlotError returns true if err reports an untracked slot name.
func IsUnknownSlotError(err error) bool {
	return CodeOf(err) == ErrCodeUnknownSlot
}

// NewInvalidHandlerError creates a WiringError for a handler that cannot be invoked.
func NewInvalidHandlerError(slot string, h *Handler) *WiringError {
	return &WiringError{
		Code:    ErrCodeInvalidHandler,
		Message: fmt.Sprintf("argument not callable: %v", h),
		Slot:    slot,
	}
}

// NewCapacityError creates a WiringError for a max/min registrations limit.
func NewCapacityError(slot string, h *Handler, message string) *WiringError {
	return &WiringError{
		Code:    ErrCodeCapacity,
		Message: message,
		Slot:    slot,
		Handler: h.Name(),
	}
}

// NewUnknownHandlerError creates a WiringError for a failed Deregister.
// The message prefix distinguishes identity-only ("unknown function") from
// exact-match ("non-wired function") lookups.
func NewUnknownHandlerError(slot string, h *Handler, exact bool) *WiringError {
	prefix := "unknown function"
	if exact {
		prefix = "non-wired function"
	}
	return &WiringError{
		Code:    ErrCodeUnknownHandler,
		Message: fmt.Sprintf("%s %v", prefix, h),
		Slot:    slot,
		Handler: h.Name(),
	}
}

// NewInsufficientRegistrationsError creates a WiringError for an Invoke below min.
func NewInsufficientRegistrationsError(slot string, count, min int) *WiringError {
	return &WiringError{
		Code:    ErrCodeInsufficientRegistrations,
		Message: fmt.Sprintf("less than min registrations wired (%d < %d)", count, min),
		Slot:    slot,
	}
}

// NewInvalidSettingError creates a WiringError for a rejected settings mutation.
func NewInvalidSettingError(slot, message string) *WiringError {
	return &WiringError{
		Code:    ErrCodeInvalidSetting,
		Message: message,
		Slot:    slot,
	}
}

// NewUnknownSlotError creates a WiringError for an untracked slot name.
func NewUnknownSlotError(slot string) *WiringError {
	return &WiringError{
		Code:    ErrCodeUnknownSlot,
		Message: fmt.Sprintf("unknown slot %q", slot),
		Slot:    slot,
	}
}

// CoupledFailureError is returned by Invoke when returns and !ignoreFailures
// are both in effect and a handler failed.
//
// Records holds the per-registration outcomes produced before the
// short-circuit, in registration order; the last one carries the failure.
type CoupledFailureError struct {
	Slot    string
	Records []Record
}

// Error implements the error interface.
func (e *CoupledFailureError) Error() string {
	f := e.Failure()
	if f == nil {
		return fmt.Sprintf("COUPLED_FAILURE: handler failed (slot=%s, records=%d)", e.Slot, len(e.Records))
	}
	return fmt.Sprintf("COUPLED_FAILURE: %s (slot=%s, records=%d)", f.Message, e.Slot, len(e.Records))
}

// Failure returns the failure that stopped the invocation.
func (e *CoupledFailureError) Failure() *Failure {
	if len(e.Records) == 0 {
		return nil
	}
	return e.Records[len(e.Records)-1].Failure
}

// Unwrap exposes the handler's original error so errors.Is can see through
// the aggregate.
func (e *CoupledFailureError) Unwrap() error {
	if f := e.Failure(); f != nil {
		return f
	}
	return nil
}

// AsCoupledFailure extracts a CoupledFailureError from err.
// Uses errors.As to handle wrapped errors.
func AsCoupledFailure(err error) (*CoupledFailureError, bool) {
	var ce *CoupledFailureError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
