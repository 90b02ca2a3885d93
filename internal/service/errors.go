package service

import (
	"errors"
	"fmt"
	"strings"
)

// Business-rule failures returned to callers.  Each carries a message that
// can be shown to the end user as-is.
var (
	ErrPastDate                 = errors.New("travel date is in the past")
	ErrNoSeatsAvailable         = errors.New("no seats available for the selected time slot")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrAlreadyCancelled         = errors.New("booking is already cancelled")
	ErrCancellationWindowClosed = errors.New("cancellation window has closed for this booking")
	ErrForbidden                = errors.New("forbidden")
	ErrPaymentAlreadyCompleted  = errors.New("payment already completed")
	ErrPaymentNotSucceeded      = errors.New("payment not successful")
	ErrPaymentsDisabled         = errors.New("payments are not configured")
)

// FieldError is a single failed input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every invalid input field of a request at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "validation failed: " + strings.Join(names, ", ")
}

// InvalidTransitionError is returned when a booking or payment status
// change is not allowed from the booking's current state.
type InvalidTransitionError struct {
	Field string // "status" or "paymentStatus"
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change %s from %s to %s", e.Field, e.From, e.To)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is an *InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
