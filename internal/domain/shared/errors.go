// Package shared holds the error kinds every domain package reports. It
// depends on nothing but the standard library.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is or the Is* helpers below.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNegativeValue      = errors.New("value cannot be negative")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrExhausted          = errors.New("capacity exhausted")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError ties a failure to the domain operation that produced it.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap exposes the cause, or the kind when there is no cause.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches either the kind or anything in the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError creates a sentinel-style domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError attaches domain context to err. A wrapped error still matches
// kind, and still matches the sentinel it was derived from when kind is one.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

var (
	// ErrUnknownBlock is the kind reported when a block code is outside A-D.
	ErrUnknownBlock = NewDomainError("identifier", "Validate", ErrInvalidInput, "unknown block")

	ErrInvalidYear       = NewDomainError("identifier", "Validate", ErrValueOutOfRange, "year must have exactly 4 digits")
	ErrNegativeCounter   = NewDomainError("identifier", "SetCounter", ErrNegativeValue, "counter cannot be negative")
	ErrSequenceOverflow  = NewDomainError("identifier", "Generate", ErrExhausted, "sequence exceeds 3 digits")
	ErrCounterStoreFault = NewDomainError("identifier", "Persist", ErrServiceUnavailable, "counter store unavailable")
)

// IsValidation reports a caller mistake: the request can never succeed as sent.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExhausted reports a block whose sequence space is used up.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// IsUnavailable reports a storage failure or a storage call that ran out of
// time.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
