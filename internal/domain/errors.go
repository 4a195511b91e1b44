package domain

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// Kind classifies failures of the booking core so callers can branch without string matching.
type Kind string

const (
	KindSeatUnavailable            Kind = "seat_unavailable"
	KindHoldExpired                Kind = "hold_expired"
	KindHoldNotFound               Kind = "hold_not_found"
	KindHoldConfirmed              Kind = "hold_confirmed"
	KindBookingNotFound            Kind = "booking_not_found"
	KindBookingExpired             Kind = "booking_expired"
	KindBookingNotHeld             Kind = "booking_not_held"
	KindInvalidTransition          Kind = "invalid_transition"
	KindNotHeld                    Kind = "not_held"
	KindNotPending                 Kind = "not_pending"
	KindNotExpirable               Kind = "not_expirable"
	KindNotCancellable             Kind = "not_cancellable"
	KindAlreadyConfirmed           Kind = "already_confirmed"
	KindWrongAttempt               Kind = "wrong_attempt"
	KindOrderNotFound              Kind = "order_not_found"
	KindSignatureInvalid           Kind = "signature_invalid"
	KindAlreadyVerifiedDifferently Kind = "already_verified_differently"
	KindAmountMismatch             Kind = "amount_mismatch"
	KindProviderUnavailable        Kind = "provider_unavailable"
	KindNotAllowed                 Kind = "not_allowed"
	KindReasonTooShort             Kind = "reason_too_short"
	KindReasonTooLong              Kind = "reason_too_long"
	KindPNRExhausted               Kind = "pnr_exhausted"
)

// Error is the typed failure returned across component boundaries of the booking core.
// errors.Is matches on Kind, so the sentinels below work with wrapped instances.
type Error struct {
	Kind    Kind
	Msg     string
	Details any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same request automatically.
func (e *Error) Retryable() bool {
	return e.Kind == KindProviderUnavailable
}

// NewError builds a typed error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a typed error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

var (
	ErrSeatUnavailable            = &Error{Kind: KindSeatUnavailable}
	ErrHoldExpired                = &Error{Kind: KindHoldExpired}
	ErrHoldNotFound               = &Error{Kind: KindHoldNotFound}
	ErrHoldConfirmed              = &Error{Kind: KindHoldConfirmed}
	ErrBookingNotFound            = &Error{Kind: KindBookingNotFound}
	ErrBookingExpired             = &Error{Kind: KindBookingExpired}
	ErrBookingNotHeld             = &Error{Kind: KindBookingNotHeld}
	ErrInvalidTransition          = &Error{Kind: KindInvalidTransition}
	ErrNotHeld                    = &Error{Kind: KindNotHeld}
	ErrNotPending                 = &Error{Kind: KindNotPending}
	ErrNotExpirable               = &Error{Kind: KindNotExpirable}
	ErrNotCancellable             = &Error{Kind: KindNotCancellable}
	ErrAlreadyConfirmed           = &Error{Kind: KindAlreadyConfirmed}
	ErrWrongAttempt               = &Error{Kind: KindWrongAttempt}
	ErrOrderNotFound              = &Error{Kind: KindOrderNotFound}
	ErrSignatureInvalid           = &Error{Kind: KindSignatureInvalid}
	ErrAlreadyVerifiedDifferently = &Error{Kind: KindAlreadyVerifiedDifferently}
	ErrAmountMismatch             = &Error{Kind: KindAmountMismatch}
	ErrProviderUnavailable        = &Error{Kind: KindProviderUnavailable}
	ErrNotAllowed                 = &Error{Kind: KindNotAllowed}
	ErrReasonTooShort             = &Error{Kind: KindReasonTooShort}
	ErrReasonTooLong              = &Error{Kind: KindReasonTooLong}
)

// SeatUnavailable reports the conflicting seats of a rejected hold.
func SeatUnavailable(seats []string) *Error {
	return &Error{
		Kind:    KindSeatUnavailable,
		Msg:     "kursi tidak tersedia: " + strings.Join(seats, ","),
		Details: seats,
	}
}

// KindOf extracts the Kind of a typed error, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Store-level sentinels shared by the MySQL and in-memory repositories.
var (
	// ErrStaleWrite means a compare-and-swap lost against a concurrent writer.
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicate means a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate key")
)
