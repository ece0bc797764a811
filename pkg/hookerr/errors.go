// Package hookerr defines the classified errors surfaced by the transfer hook.
// Every error aborts the enclosing ledger transaction; the class tells the
// caller whether retrying with different parameters can succeed.
package hookerr

import (
	"errors"
	"fmt"
)

// Class represents the classification of a hook error.
type Class string

const (
	// ClassPolicyViolation marks a transfer rejected by policy. The caller may
	// retry with a different amount or destination.
	ClassPolicyViolation Class = "policy_violation"

	// ClassUnauthorized marks an operation attempted by the wrong signer.
	ClassUnauthorized Class = "unauthorized"

	// ClassIntegration marks programming or integration mistakes such as
	// malformed instructions or mismatched accounts.
	ClassIntegration Class = "integration"
)

// Code identifies a specific failure. Codes are stable and are surfaced to
// callers both by name and by number.
type Code string

const (
	CodeAmountExceedsLimit     Code = "AMOUNT_EXCEEDS_LIMIT"
	CodeDestinationNotAllowed  Code = "DESTINATION_NOT_ALLOWED"
	CodePolicyViolation        Code = "POLICY_VIOLATION"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeAlreadyInitialized     Code = "ALREADY_INITIALIZED"
	CodeOutOfRange             Code = "OUT_OF_RANGE"
	CodeMalformedInstruction   Code = "MALFORMED_INSTRUCTION"
	CodeUnsupportedInstruction Code = "UNSUPPORTED_INSTRUCTION"
	CodeCapacityExceeded       Code = "CAPACITY_EXCEEDED"
	CodeAccountMismatch        Code = "ACCOUNT_MISMATCH"
	CodeAccountNotFound        Code = "ACCOUNT_NOT_FOUND"
	CodeNotEnoughAccounts      Code = "NOT_ENOUGH_ACCOUNTS"
	CodeMalformedDescriptor    Code = "MALFORMED_DESCRIPTOR"
	CodeSeedConfigTooLarge     Code = "SEED_CONFIG_TOO_LARGE"
	CodeArithmeticOverflow     Code = "ARITHMETIC_OVERFLOW"
)

var codeNumbers = map[Code]uint32{
	CodeAmountExceedsLimit:     6000,
	CodeDestinationNotAllowed:  6001,
	CodePolicyViolation:        6002,
	CodeUnauthorized:           6003,
	CodeAlreadyInitialized:     6004,
	CodeOutOfRange:             6005,
	CodeMalformedInstruction:   6006,
	CodeUnsupportedInstruction: 6007,
	CodeCapacityExceeded:       6008,
	CodeAccountMismatch:        6009,
	CodeAccountNotFound:        6010,
	CodeNotEnoughAccounts:      6011,
	CodeMalformedDescriptor:    6012,
	CodeSeedConfigTooLarge:     6013,
	CodeArithmeticOverflow:     6014,
}

var codeClasses = map[Code]Class{
	CodeAmountExceedsLimit:    ClassPolicyViolation,
	CodeDestinationNotAllowed: ClassPolicyViolation,
	CodePolicyViolation:       ClassPolicyViolation,
	CodeUnauthorized:          ClassUnauthorized,
}

// Sentinel errors for use with errors.Is. Matching compares codes only, so a
// wrapped error carrying extra context still matches its sentinel.
var (
	ErrAmountExceedsLimit     = New(CodeAmountExceedsLimit, "transfer amount exceeds limit")
	ErrDestinationNotAllowed  = New(CodeDestinationNotAllowed, "destination not in allow-list")
	ErrPolicyViolation        = New(CodePolicyViolation, "transfer rejected by policy")
	ErrUnauthorized           = New(CodeUnauthorized, "caller is not the policy authority")
	ErrAlreadyInitialized     = New(CodeAlreadyInitialized, "account already initialized")
	ErrOutOfRange             = New(CodeOutOfRange, "seed read out of range")
	ErrMalformedInstruction   = New(CodeMalformedInstruction, "malformed instruction data")
	ErrUnsupportedInstruction = New(CodeUnsupportedInstruction, "unsupported instruction")
	ErrCapacityExceeded       = New(CodeCapacityExceeded, "allow-list capacity exceeded")
	ErrAccountMismatch        = New(CodeAccountMismatch, "account constraint violated")
	ErrAccountNotFound        = New(CodeAccountNotFound, "account not found")
	ErrNotEnoughAccounts      = New(CodeNotEnoughAccounts, "not enough accounts")
	ErrMalformedDescriptor    = New(CodeMalformedDescriptor, "malformed account descriptor")
	ErrSeedConfigTooLarge     = New(CodeSeedConfigTooLarge, "seed configuration too large")
	ErrArithmeticOverflow     = New(CodeArithmeticOverflow, "arithmetic overflow")
)

// Error is a classified hook error with context.
type Error struct {
	// Class is the error classification.
	Class Class `json:"class"`

	// Code identifies the failure.
	Code Code `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Account is the account address involved, if any.
	Account string `json:"account,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Details contains additional context.
	Details map[string]interface{} `json:"details,omitempty"`
}

// New creates an error for code with its default class.
func New(code Code, message string) *Error {
	class, ok := codeClasses[code]
	if !ok {
		class = ClassIntegration
	}
	return &Error{
		Class:   class,
		Code:    code,
		Message: message,
	}
}

// Newf creates an error for code with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an error for code that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.Err = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Account != "" {
		msg = fmt.Sprintf("%s (account=%s)", msg, e.Account)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Number returns the numeric code surfaced on the wire.
func (e *Error) Number() uint32 {
	return codeNumbers[e.Code]
}

// WithAccount adds account context to an error.
func (e *Error) WithAccount(address string) *Error {
	e.Account = address
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code carried by err, or "" if err is not a hook error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ClassOf returns the class carried by err, or "" if err is not a hook error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsPolicyViolation returns true if err rejected a transfer on policy grounds.
func IsPolicyViolation(err error) bool {
	return ClassOf(err) == ClassPolicyViolation
}

// IsRetryable returns true if the caller may retry with different parameters.
// Only policy violations qualify; everything else needs a code or signer change.
func IsRetryable(err error) bool {
	return IsPolicyViolation(err)
}
