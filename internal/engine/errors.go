package engine

import (
	"errors"
	"fmt"
)

// Error is a domain error returned by engine entrypoints.
//
// Every Error aborts its operation with no state change. Storage failures
// are not Errors; they are returned wrapped with fmt.Errorf.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidParameter indicates caller input outside its bounds.
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// ErrCodeUnauthorized indicates a non-authority caller or a call after
	// release to the wild.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeEpochNotEnded indicates a premature mutation trigger.
	ErrCodeEpochNotEnded ErrorCode = "EPOCH_NOT_ENDED"

	// ErrCodeExceedsMaxWallet indicates a transfer would breach the cap.
	ErrCodeExceedsMaxWallet ErrorCode = "EXCEEDS_MAX_WALLET"

	// ErrCodeArithmeticOverflow indicates unsafe amount arithmetic.
	ErrCodeArithmeticOverflow ErrorCode = "ARITHMETIC_OVERFLOW"

	// ErrCodeAlreadyInitialized indicates a second Initialize.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeNotInitialized indicates a call before Initialize.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeInsufficientBalance indicates a sender cannot cover the amount.
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	// ErrCodeWalletNotFound indicates a wallet with no DNA record.
	ErrCodeWalletNotFound ErrorCode = "WALLET_NOT_FOUND"

	// ErrCodeNotExtinct indicates a fossil request for a living wallet.
	ErrCodeNotExtinct ErrorCode = "NOT_EXTINCT"

	// ErrCodeNotFound indicates a missing fossil or other record.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the error's code, or "" if err is not an engine Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode returns true if err is an engine Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsUnauthorized returns true if the error is an authority rejection.
func IsUnauthorized(err error) bool {
	return IsCode(err, ErrCodeUnauthorized)
}

// IsEpochNotEnded returns true if the error is a premature mutation.
func IsEpochNotEnded(err error) bool {
	return IsCode(err, ErrCodeEpochNotEnded)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// with attaches a detail key/value and returns e.
func (e *Error) with(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}
