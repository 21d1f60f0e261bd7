package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// FailureKind distinguishes how a handler failed.
type FailureKind string

const (
	// FailureError means the handler returned a non-nil error.
	FailureError FailureKind = "error"

	// FailurePanic means the handler panicked and the panic was recovered.
	FailurePanic FailureKind = "panic"
)

// Failure is a captured handler failure, stored as data in a Record.
//
// Cause is the handler's error exactly as returned. For panics it is the
// panic value when that value is an error, otherwise an error describing it.
type Failure struct {
	Kind    FailureKind
	Message string
	Cause   error

	// Stack is the goroutine stack at the point of a recovered panic.
	// Empty for FailureError.
	Stack []byte
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the handler's original error.
func (f *Failure) Unwrap() error {
	return f.Cause
}

func captureError(err error) *Failure {
	return &Failure{Kind: FailureError, Message: err.Error(), Cause: err}
}

func capturePanic(v any, stack []byte) *Failure {
	cause, ok := v.(error)
	if !ok {
		cause = fmt.Errorf("%v", v)
	}
	return &Failure{
		Kind:    FailurePanic,
		Message: "panic: " + cause.Error(),
		Cause:   cause,
		Stack:   stack,
	}
}

// Record is the outcome of calling one registration: either a Value or a
// Failure, never both.
type Record struct {
	Failure *Failure
	Value   any
}

// Failed reports whether the registration failed.
func (r Record) Failed() bool {
	return r.Failure != nil
}

// Err returns the failure as an error, or a nil error on success.
func (r Record) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// IsFailureOf reports whether r failed with an error matching target.
func (r Record) IsFailureOf(target error) bool {
	return r.Failure != nil && errors.Is(r.Failure, target)
}

// callHandler invokes h, converting a returned error or a panic into a
// Failure.
func callHandler(ctx context.Context, h *Handler, args Args) (value any, failure *Failure) {
	defer func() {
		if v := recover(); v != nil {
			value = nil
			failure = capturePanic(v, debug.Stack())
		}
	}()

	value, err := h.fn(ctx, args)
	if err != nil {
		return nil, captureError(err)
	}
	return value, nil
}
