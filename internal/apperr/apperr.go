// Package apperr defines the error taxonomy shared by every layer. Each error
// carries a kind (used to pick a transport status) and a stable code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers are expected to react to them.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindInsufficientStock
	KindMissingRate
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindConfig
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindMissingRate:
		return "missing_rate"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfig:
		return "config"
	case KindBusy:
		return "busy"
	default:
		return "internal"
	}
}

const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeMissingRate        = "MISSING_RATE"
	CodeInvalidTimeframe   = "INVALID_TIMEFRAME"
	CodePasskeyRequired    = "PASSKEY_REQUIRED"
	CodeNotOwner           = "NOT_OWNER"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeStoreMisconfigured = "STORE_MISCONFIGURED"
	CodeBusy               = "RESOURCE_BUSY"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeBadCredentials     = "INVALID_CREDENTIALS"
)

// Error is the concrete error value. Values are compared by code, so the
// predefined variables below work with errors.Is even after Wrap or WithDetail.
type Error struct {
	kind      Kind
	code      string
	msg       string
	available *int
	parent    error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.parent)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.parent }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

func (e *Error) Kind() Kind   { return e.kind }
func (e *Error) Code() string { return e.code }
func (e *Error) Msg() string  { return e.msg }

// Available is the on-hand quantity reported by stock errors.
func (e *Error) Available() (int, bool) {
	if e.available == nil {
		return 0, false
	}
	return *e.available, true
}

// WithDetail returns a copy carrying a more specific message.
func (e *Error) WithDetail(format string, args ...any) *Error {
	dup := *e
	dup.msg = fmt.Sprintf(format, args...)
	return &dup
}

// Wrap returns a copy with parent attached.
func (e *Error) Wrap(parent error) *Error {
	if parent == nil {
		return e
	}
	dup := *e
	dup.parent = parent
	return &dup
}

var (
	ErrValidation         = New(KindValidation, CodeValidation, "validation failed")
	ErrInvalidQuantity    = New(KindValidation, CodeInvalidQuantity, "sale quantity cannot be zero")
	ErrInsufficientStock  = New(KindInsufficientStock, CodeInsufficientStock, "insufficient stock")
	ErrMissingRate        = New(KindMissingRate, CodeMissingRate, "no exchange rate available")
	ErrInvalidTimeframe   = New(KindValidation, CodeInvalidTimeframe, "invalid timeframe")
	ErrPasskeyRequired    = New(KindUnauthorized, CodePasskeyRequired, "store passkey required")
	ErrNotOwner           = New(KindForbidden, CodeNotOwner, "store does not belong to user")
	ErrNotFound           = New(KindNotFound, CodeNotFound, "not found")
	ErrConflict           = New(KindConflict, CodeConflict, "already exists")
	ErrStoreMisconfigured = New(KindConfig, CodeStoreMisconfigured, "store authorization is misconfigured")
	ErrBusy               = New(KindBusy, CodeBusy, "resource is busy")
	ErrUnauthenticated    = New(KindUnauthorized, CodeUnauthenticated, "sign in required")
	ErrBadCredentials     = New(KindUnauthorized, CodeBadCredentials, "invalid credentials")
)

// InsufficientStock builds a stock error that states the available quantity.
func InsufficientStock(available, requested int) *Error {
	err := ErrInsufficientStock.WithDetail("only %d unit(s) available, %d requested", available, requested)
	err.available = &available
	return err
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return ErrValidation.WithDetail(format, args...)
}

// MissingRate builds a conversion error for a currency pair.
func MissingRate(from, to string) *Error {
	return ErrMissingRate.WithDetail("no exchange rate from %s to %s", from, to)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}
