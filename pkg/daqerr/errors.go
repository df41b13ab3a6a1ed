// Package daqerr provides the classified error taxonomy used across the
// daemon: registry lookups, capability operations, plan validation, run
// execution, and the external API surface all report errors through the
// same Code, so a driver failure maps the same way whether it's observed
// by a plan, by the run engine, or by a service handler.
package daqerr

import (
	"errors"
	"fmt"
)

// Code classifies an error for dispatch and wire mapping (see spec §7).
type Code string

const (
	// NotFound indicates the addressed entity does not exist.
	NotFound Code = "not_found"

	// FailedPrecondition indicates the entity exists but its state forbids
	// the operation (already armed, already streaming, wrong capability).
	FailedPrecondition Code = "failed_precondition"

	// InvalidArgument indicates syntactically or semantically bad input.
	InvalidArgument Code = "invalid_argument"

	// Unavailable indicates a transient failure: comms, timeout, disconnect.
	Unavailable Code = "unavailable"

	// DeadlineExceeded indicates a request exceeded its deadline.
	DeadlineExceeded Code = "deadline_exceeded"

	// Unimplemented indicates the operation is not supported by this
	// device or driver.
	Unimplemented Code = "unimplemented"

	// Internal indicates a bug or unexpected condition.
	Internal Code = "internal"
)

// Error is a classified error with optional device/operation context.
type Error struct {
	Code      Code
	Message   string
	Device    string
	Operation string
	Err       error
	Details   map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Device != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (device=%s, op=%s): %s", e.Code, e.Message, e.Device, e.Operation, e.unwrapMessage())
	case e.Device != "":
		return fmt.Sprintf("[%s] %s (device=%s): %s", e.Code, e.Message, e.Device, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.unwrapMessage())
	}
}

// Unwrap returns the underlying error for error-chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements errors.Is comparison by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// New creates an Error of the given code without a message template.
func New(code Code, message string) *Error {
	return newError(code, message, nil)
}

// Wrap creates an Error of the given code wrapping an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return newError(code, message, err)
}

// NewNotFound creates a NotFound error.
func NewNotFound(message string, err error) *Error { return newError(NotFound, message, err) }

// NewFailedPrecondition creates a FailedPrecondition error.
func NewFailedPrecondition(message string, err error) *Error {
	return newError(FailedPrecondition, message, err)
}

// NewInvalidArgument creates an InvalidArgument error.
func NewInvalidArgument(message string, err error) *Error {
	return newError(InvalidArgument, message, err)
}

// NewUnavailable creates an Unavailable error.
func NewUnavailable(message string, err error) *Error { return newError(Unavailable, message, err) }

// NewDeadlineExceeded creates a DeadlineExceeded error.
func NewDeadlineExceeded(message string, err error) *Error {
	return newError(DeadlineExceeded, message, err)
}

// NewUnimplemented creates an Unimplemented error.
func NewUnimplemented(message string, err error) *Error {
	return newError(Unimplemented, message, err)
}

// NewInternal creates an Internal error.
func NewInternal(message string, err error) *Error { return newError(Internal, message, err) }

// WithDevice adds device-id context to an error.
func (e *Error) WithDevice(deviceID string) *Error {
	e.Device = deviceID
	return e
}

// WithOperation adds operation-name context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the Code from err, returning Internal if err does not
// carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err is a daqerr.Error of the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
