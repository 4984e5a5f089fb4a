package appointments

import (
	"errors"
	"fmt"

	"github.com/wolfman30/consult-booking/internal/scheduling"
)

var (
	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrConflict is returned when a slot key is already held by a live appointment.
	ErrConflict = errors.New("slot already booked")

	// ErrInvalidTransition is returned when a status or payment change breaks the state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyPaid is returned when a payment is requested for a paid appointment.
	ErrAlreadyPaid = errors.New("appointment already paid")
)

// ConflictError names the slot key that could not be reserved.
type ConflictError struct {
	Key scheduling.SlotKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s already booked", e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError describes a rejected state change.
type InvalidTransitionError struct {
	Field  string // "status" or "payment_status"
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Field, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
