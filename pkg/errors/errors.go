package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Scheduling engine conditions. Each maps to a distinct code so the UI can
	// render an accurate message rather than a generic failure.
	ErrSlotNotFound             = New("SLOT_NOT_FOUND", http.StatusNotFound, "slot not found")
	ErrSlotAlreadyBooked        = New("SLOT_ALREADY_BOOKED", http.StatusConflict, "this slot is already booked")
	ErrDuplicateActiveBooking   = New("DUPLICATE_ACTIVE_BOOKING", http.StatusConflict, "an active booking already exists for this subject")
	ErrSubjectBlocked           = New("SUBJECT_BLOCKED", http.StatusConflict, "booking for this subject is blocked until your faculty allows rebooking")
	ErrFacultyUnavailable       = New("FACULTY_UNAVAILABLE", http.StatusConflict, "faculty is currently unavailable for booking")
	ErrBookingNotFound          = New("BOOKING_NOT_FOUND", http.StatusNotFound, "booking not found")
	ErrNotConfirmed             = New("NOT_CONFIRMED", http.StatusPreconditionFailed, "booking is not in confirmed state")
	ErrWithinCancellationWindow = New("WITHIN_CANCELLATION_WINDOW", http.StatusPreconditionFailed, "cancellation is not allowed this close to the slot time")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
