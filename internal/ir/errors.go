package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes every failure the registry, the environment and the
// session can report.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the caller lacks the required privilege.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeOutOfRange indicates the referenced entity does not exist.
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// ErrCodeAlreadyAdopted indicates the entity already has an owner.
	ErrCodeAlreadyAdopted ErrorCode = "ALREADY_ADOPTED"

	// ErrCodeBusy indicates a request is already in flight for the session.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeEnvironmentRejected indicates the environment declined the request.
	ErrCodeEnvironmentRejected ErrorCode = "ENVIRONMENT_REJECTED"

	// ErrCodeEnvironmentFailed indicates the request was accepted but failed.
	ErrCodeEnvironmentFailed ErrorCode = "ENVIRONMENT_FAILED"

	// ErrCodeNetworkMismatch indicates the wallet is on the wrong network.
	ErrCodeNetworkMismatch ErrorCode = "NETWORK_MISMATCH"

	// ErrCodeAbandoned indicates tracking of a pending request was dropped
	// because the session identity changed.
	ErrCodeAbandoned ErrorCode = "ABANDONED"

	// ErrCodeDisconnected indicates the session has no connected identity.
	ErrCodeDisconnected ErrorCode = "DISCONNECTED"
)

// Reason strings reported by the registry and the environment.
const (
	ReasonOnlyOwner      = "Only owner can add pets"
	ReasonDoesNotExist   = "Pet does not exist"
	ReasonAlreadyAdopted = "Pet already adopted"
	ReasonOutOfBounds    = "value out-of-bounds"
	ReasonTxFailed       = "Transaction failed"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a description for logs.
	Message string

	// Reason is the human-readable reason supplied by the environment,
	// empty when none was supplied.
	Reason string

	// Err is an optional underlying cause.
	Err error
}

// NewError creates an Error.
func NewError(code ErrorCode, message, reason string) *Error {
	return &Error{Code: code, Message: message, Reason: reason}
}

// WrapError creates an Error around an underlying cause.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (reason=%q)", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the error code from err.
// Returns "" if err is nil or carries no code.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ReasonOf returns the human-readable reason carried by err, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
