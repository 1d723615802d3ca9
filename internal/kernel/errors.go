// Package kernel holds types shared across every kernel subsystem: the
// error taxonomy, the proposal/verdict/artifact data model, and the
// per-turn state snapshot that flows from Session through Proposer,
// Policy Engine, and Gatekeeper.
package kernel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure mode the kernel can produce, per the
// error taxonomy in the specification. The Gatekeeper maps a KernelError's
// Kind to a verdict; nothing else in the kernel uses panic/recover as
// control flow.
type ErrorKind string

const (
	BadInput            ErrorKind = "BadInput"
	PolicyReject        ErrorKind = "PolicyReject"
	CapacityExceeded    ErrorKind = "CapacityExceeded"
	NotFound            ErrorKind = "NotFound"
	IOFailure           ErrorKind = "IOFailure"
	SandboxViolation    ErrorKind = "SandboxViolation"
	ModelProtocolFailure ErrorKind = "ModelProtocolFailure"
	Cancelled           ErrorKind = "Cancelled"
)

// KernelError wraps a failure with its taxonomy kind and the operation that
// produced it, so callers can both log a readable message and switch on Kind.
type KernelError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *KernelError) Unwrap() error { return e.Err }

// Newf builds a KernelError with a formatted cause.
func Newf(kind ErrorKind, op, format string, args ...interface{}) *KernelError {
	return &KernelError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap builds a KernelError around an existing error.
func Wrap(kind ErrorKind, op string, err error) *KernelError {
	return &KernelError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *KernelError.
func KindOf(err error) (ErrorKind, bool) {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}
