package appointments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/consult-booking/internal/scheduling"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Live reports whether an appointment in this status holds its slot.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// PaymentStatus tracks the charge for an appointment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether p is paid or failed.
func (p PaymentStatus) Terminal() bool {
	return p == PaymentPaid || p == PaymentFailed
}

// PatientDetails is the free-form contact information captured with a booking.
type PatientDetails struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	HealthIssue string `json:"health_issue,omitempty"`
}

// Appointment is a patient's reservation of one doctor slot.
type Appointment struct {
	ID                 uuid.UUID           `json:"id"`
	DoctorID           string              `json:"doctor_id"`
	PatientID          string              `json:"patient_id"`
	Date               scheduling.Date     `json:"date"`
	TimeSlot           scheduling.TimeSlot `json:"time_slot"`
	Status             Status              `json:"status"`
	PaymentStatus      PaymentStatus       `json:"payment_status"`
	Amount             decimal.Decimal     `json:"amount"`
	PaymentRef         string              `json:"payment_ref,omitempty"`
	PaymentAttempts    int                 `json:"payment_attempts"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	Patient            PatientDetails      `json:"patient"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// SlotKey returns the (doctor, date, slot) triple the appointment occupies.
func (a Appointment) SlotKey() scheduling.SlotKey {
	return scheduling.SlotKey{DoctorID: a.DoctorID, Date: a.Date, TimeSlot: a.TimeSlot}
}

// OccupiesSlot reports whether the appointment currently blocks its slot key.
func (a Appointment) OccupiesSlot() bool {
	return a.Status.Live()
}

// Occupants adapts a list of appointments for scheduling.Grid.FreeSlots.
func Occupants(list []*Appointment) []scheduling.Occupant {
	out := make([]scheduling.Occupant, 0, len(list))
	for _, a := range list {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// ReserveParams carries everything needed to insert a pending appointment.
// Amount must already include the platform fee.
type ReserveParams struct {
	DoctorID  string
	PatientID string
	Date      scheduling.Date
	TimeSlot  scheduling.TimeSlot
	Amount    decimal.Decimal
	Patient   PatientDetails
}

func (p ReserveParams) slotKey() scheduling.SlotKey {
	return scheduling.SlotKey{DoctorID: p.DoctorID, Date: p.Date, TimeSlot: p.TimeSlot}
}
