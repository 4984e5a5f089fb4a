package events

import "time"

// Event type names written to the outbox.
const (
	TypeAppointmentReserved      = "appointment_reserved.v1"
	TypePaymentIntentCreated     = "payment_intent_created.v1"
	TypePaymentSucceeded         = "payment_succeeded.v1"
	TypePaymentFailed            = "payment_failed.v1"
	TypeAppointmentStatusChanged = "appointment_status_changed.v1"
)

type AppointmentReservedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	Date          string    `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	Amount        string    `json:"amount"`
	ReservedAt    time.Time `json:"reserved_at"`
}

type PaymentIntentCreatedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

type PaymentSucceededV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	Provider      string    `json:"provider,omitempty"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	Amount        string    `json:"amount"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type PaymentFailedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	Provider      string    `json:"provider,omitempty"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	Amount        string    `json:"amount"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type AppointmentStatusChangedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Reason        string    `json:"reason,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}
