package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

var gateTracer = otel.Tracer("consult.internal.payments")

// ErrSupersededIntent is returned when a failure is reported for an intent
// that is no longer the appointment's current payment attempt.
var ErrSupersededIntent = errors.New("payments: intent superseded by a newer attempt")

// OutcomeStatus is the processor's verdict on a charge.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Outcome is a reported payment result.
type Outcome struct {
	Status        OutcomeStatus
	ProviderRef   string
	FailureReason string
}

func Success(providerRef string) Outcome {
	return Outcome{Status: OutcomeSuccess, ProviderRef: providerRef}
}

func Failure(providerRef, reason string) Outcome {
	return Outcome{Status: OutcomeFailure, ProviderRef: providerRef, FailureReason: reason}
}

// ParseOutcomeStatus accepts "success" or "failure" in any case.
func ParseOutcomeStatus(raw string) (OutcomeStatus, error) {
	switch OutcomeStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case OutcomeSuccess:
		return OutcomeSuccess, nil
	case OutcomeFailure:
		return OutcomeFailure, nil
	}
	return "", fmt.Errorf("payments: unknown outcome %q", raw)
}

// IntentHandle is returned to the patient to complete a charge client side.
type IntentHandle struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref"`
	ClientSecret  string    `json:"client_secret"`
	CheckoutURL   string    `json:"checkout_url,omitempty"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	// Reused is set when the appointment's open intent was returned instead
	// of a new one.
	Reused bool `json:"reused,omitempty"`
}

// Gate drives the payment side of an appointment: it opens intents with the
// processor and applies reported outcomes.
type Gate struct {
	store     appointments.Store
	lifecycle *appointments.Lifecycle
	processor Processor
	ledger    IntentLedger
	publisher events.Publisher
	velocity  VelocityLimiter
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	currency  string
}

// GateConfig groups the Gate's optional collaborators.
type GateConfig struct {
	Ledger    IntentLedger
	Publisher events.Publisher
	Velocity  VelocityLimiter
	Metrics   *metrics.BookingMetrics
	Logger    *logging.Logger
	Currency  string
}

func NewGate(store appointments.Store, lifecycle *appointments.Lifecycle, processor Processor, cfg GateConfig) *Gate {
	if store == nil || lifecycle == nil {
		panic("payments: store and lifecycle required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Gate{
		store:     store,
		lifecycle: lifecycle,
		processor: processor,
		ledger:    cfg.Ledger,
		publisher: cfg.Publisher,
		velocity:  cfg.Velocity,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		currency:  cfg.Currency,
	}
}

// CreateIntent opens a charge for the appointment's frozen amount. While an
// intent is open it is returned again rather than opening a second charge. A
// failed payment is reset to pending first so the patient can retry.
func (g *Gate) CreateIntent(ctx context.Context, appointmentID uuid.UUID) (*IntentHandle, error) {
	ctx, span := gateTracer.Start(ctx, "payments.create_intent")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID.String()))

	if g.processor == nil {
		return nil, errors.New("payments: no processor configured")
	}
	appt, err := g.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("payments: create intent: %w", err)
	}
	switch {
	case appt.PaymentStatus == appointments.PaymentPaid:
		return nil, appointments.ErrAlreadyPaid
	case appt.Status != appointments.StatusPending:
		return nil, &appointments.InvalidTransitionError{
			Field:  "payment_status",
			From:   string(appt.PaymentStatus),
			To:     string(appointments.PaymentPending),
			Reason: "appointment is " + string(appt.Status),
		}
	case appt.PaymentStatus == appointments.PaymentPending && appt.PaymentRef != "":
		return g.reuseIntent(ctx, appt)
	}
	if g.velocity != nil {
		res, err := g.velocity.CheckIntentVelocity(ctx, appt.PatientID)
		if err == nil && !res.Allowed {
			return nil, ErrTooManyAttempts
		}
	}
	if appt.PaymentStatus == appointments.PaymentFailed {
		if appt, _, err = g.store.ResetPaymentForRetry(ctx, appointmentID); err != nil {
			return nil, fmt.Errorf("payments: create intent: %w", err)
		}
	}

	intent, err := g.processor.CreateIntent(ctx, IntentParams{
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		Amount:         appt.Amount,
		Currency:       g.currency,
		Description:    fmt.Sprintf("Consultation %s %s", appt.Date, appt.TimeSlot),
		ReceiptEmail:   appt.Patient.Email,
		IdempotencyKey: intentIdempotencyKey(appt.ID, appt.PaymentAttempts),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: create intent: %w", err)
	}
	if err := g.store.SetPaymentRef(ctx, appt.ID, intent.ProviderRef); err != nil {
		return nil, fmt.Errorf("payments: create intent: %w", err)
	}
	if g.ledger != nil {
		if err := g.ledger.Record(ctx, IntentRecord{
			AppointmentID: appt.ID,
			Provider:      g.processor.Name(),
			ProviderRef:   intent.ProviderRef,
			Amount:        appt.Amount,
			Currency:      g.currency,
			Status:        IntentCreated,
		}); err != nil {
			g.logger.Error("failed to record payment intent", "error", err, "appointment_id", appt.ID)
		}
	}
	g.publish(ctx, appt.ID, events.TypePaymentIntentCreated, events.PaymentIntentCreatedV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID.String(),
		Provider:      g.processor.Name(),
		ProviderRef:   intent.ProviderRef,
		Amount:        appt.Amount.String(),
		Currency:      g.currency,
		CreatedAt:     time.Now().UTC(),
	})
	g.logger.Info("payment intent created", "appointment_id", appt.ID, "provider", g.processor.Name(), "provider_ref", intent.ProviderRef)

	return &IntentHandle{
		AppointmentID: appt.ID,
		Provider:      g.processor.Name(),
		ProviderRef:   intent.ProviderRef,
		ClientSecret:  intent.ClientSecret,
		CheckoutURL:   intent.CheckoutURL,
		Amount:        appt.Amount.String(),
		Currency:      g.currency,
	}, nil
}

func (g *Gate) reuseIntent(ctx context.Context, appt *appointments.Appointment) (*IntentHandle, error) {
	intent, err := g.processor.RetrieveIntent(ctx, appt.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("payments: reuse intent: %w", err)
	}
	g.logger.Info("payment intent reused", "appointment_id", appt.ID, "provider_ref", appt.PaymentRef)
	return &IntentHandle{
		AppointmentID: appt.ID,
		Provider:      g.processor.Name(),
		ProviderRef:   intent.ProviderRef,
		ClientSecret:  intent.ClientSecret,
		CheckoutURL:   intent.CheckoutURL,
		Amount:        appt.Amount.String(),
		Currency:      g.currency,
		Reused:        true,
	}, nil
}

// CompletePayment applies a processor outcome. Success marks the payment paid
// and confirms the appointment; repeating it is a no-op. Failure marks the
// payment failed and leaves the appointment pending; a failure naming an
// intent other than the current one returns ErrSupersededIntent.
func (g *Gate) CompletePayment(ctx context.Context, appointmentID uuid.UUID, outcome Outcome) (*appointments.Appointment, error) {
	ctx, span := gateTracer.Start(ctx, "payments.complete_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("payment.outcome", string(outcome.Status)),
	)

	switch outcome.Status {
	case OutcomeSuccess:
		return g.applySuccess(ctx, appointmentID, outcome)
	case OutcomeFailure:
		return g.applyFailure(ctx, appointmentID, outcome)
	}
	return nil, fmt.Errorf("payments: unknown outcome %q", outcome.Status)
}

func (g *Gate) applySuccess(ctx context.Context, id uuid.UUID, outcome Outcome) (*appointments.Appointment, error) {
	appt, changed, err := g.store.UpdatePaymentStatus(ctx, id, appointments.PaymentPaid)
	if err != nil {
		return nil, fmt.Errorf("payments: complete payment: %w", err)
	}
	g.metrics.ObservePayment(string(OutcomeSuccess), !changed)
	if changed {
		g.updateLedger(ctx, id, outcome.ProviderRef, IntentSucceeded)
		g.publish(ctx, id, events.TypePaymentSucceeded, events.PaymentSucceededV1{
			EventID:       uuid.NewString(),
			AppointmentID: id.String(),
			PatientID:     appt.PatientID,
			Provider:      g.processorName(),
			ProviderRef:   outcome.ProviderRef,
			Amount:        appt.Amount.String(),
			OccurredAt:    time.Now().UTC(),
		})
	}

	switch appt.Status {
	case appointments.StatusPending:
		confirmed, err := g.lifecycle.Confirm(ctx, id)
		if err == nil {
			return confirmed, nil
		}
		if !errors.Is(err, appointments.ErrInvalidTransition) {
			return nil, fmt.Errorf("payments: confirm: %w", err)
		}
		// Lost a race with another confirmation or a cancellation.
		return g.store.Get(ctx, id)
	case appointments.StatusCancelled:
		g.logger.Warn("payment succeeded for cancelled appointment", "appointment_id", id, "provider_ref", outcome.ProviderRef)
	}
	return appt, nil
}

func (g *Gate) applyFailure(ctx context.Context, id uuid.UUID, outcome Outcome) (*appointments.Appointment, error) {
	if outcome.ProviderRef != "" {
		current, err := g.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("payments: complete payment: %w", err)
		}
		if current.PaymentRef != outcome.ProviderRef {
			g.logger.Info("ignoring failure for superseded payment intent",
				"appointment_id", id, "provider_ref", outcome.ProviderRef, "current_ref", current.PaymentRef)
			return nil, ErrSupersededIntent
		}
	}
	appt, changed, err := g.store.UpdatePaymentStatus(ctx, id, appointments.PaymentFailed)
	if err != nil {
		return nil, fmt.Errorf("payments: complete payment: %w", err)
	}
	g.metrics.ObservePayment(string(OutcomeFailure), !changed)
	if changed {
		g.updateLedger(ctx, id, outcome.ProviderRef, IntentFailed)
		g.publish(ctx, id, events.TypePaymentFailed, events.PaymentFailedV1{
			EventID:       uuid.NewString(),
			AppointmentID: id.String(),
			PatientID:     appt.PatientID,
			Provider:      g.processorName(),
			ProviderRef:   outcome.ProviderRef,
			Amount:        appt.Amount.String(),
			FailureReason: outcome.FailureReason,
			OccurredAt:    time.Now().UTC(),
		})
		g.logger.Info("payment failed", "appointment_id", id, "reason", outcome.FailureReason)
	}
	return appt, nil
}

func (g *Gate) updateLedger(ctx context.Context, id uuid.UUID, ref, status string) {
	if g.ledger == nil {
		return
	}
	if err := g.ledger.UpdateStatus(ctx, id, ref, status); err != nil {
		g.logger.Error("failed to update payment intent ledger", "error", err, "appointment_id", id)
	}
}

func (g *Gate) publish(ctx context.Context, id uuid.UUID, eventType string, payload any) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, id.String(), eventType, payload); err != nil {
		g.logger.Error("failed to publish payment event", "error", err, "appointment_id", id, "type", eventType)
	}
}

func (g *Gate) processorName() string {
	if g.processor == nil {
		return ""
	}
	return g.processor.Name()
}
