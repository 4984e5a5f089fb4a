package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/internal/scheduling"
)

// Store persists appointments and enforces the slot and state invariants
// atomically. Update methods report changed=false when the call repeated a
// value the appointment already held.
type Store interface {
	// Reserve inserts a pending appointment, failing with ErrConflict when a
	// live appointment already holds the slot key.
	Reserve(ctx context.Context, params ReserveParams) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to PaymentStatus) (*Appointment, bool, error)
	// ResetPaymentForRetry moves a failed payment back to pending so a new
	// attempt can start. It bumps PaymentAttempts and clears PaymentRef.
	ResetPaymentForRetry(ctx context.Context, id uuid.UUID) (*Appointment, bool, error)
	// UpdateStatus applies a status transition and returns the status the
	// appointment held immediately before this write.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, Status, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	ListByDoctorDate(ctx context.Context, doctorID string, date scheduling.Date) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	// ListStalePending returns pending, unpaid appointments created before the cutoff.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Appointment, error)
}
