package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

var lifecycleTracer = otel.Tracer("consult.internal.appointments")

// Lifecycle applies status transitions through the store and emits the
// resulting status-change events.
type Lifecycle struct {
	store     Store
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

func NewLifecycle(store Store, publisher events.Publisher, m *metrics.BookingMetrics, logger *logging.Logger) *Lifecycle {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Lifecycle{store: store, publisher: publisher, metrics: m, logger: logger}
}

// Transition moves the appointment to the target status. Cancelling frees
// the slot key in the same store write.
func (l *Lifecycle) Transition(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, error) {
	ctx, span := lifecycleTracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.to", string(to)),
	)

	appt, from, err := l.store.UpdateStatus(ctx, id, to, reason)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: transition: %w", err)
	}

	l.metrics.ObserveTransition(string(from), string(appt.Status))
	l.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"from", from,
		"to", appt.Status,
	)
	l.publish(ctx, appt, events.TypeAppointmentStatusChanged, events.AppointmentStatusChangedV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID.String(),
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		From:          string(from),
		To:            string(appt.Status),
		Reason:        reason,
		ChangedAt:     time.Now().UTC(),
	})
	return appt, nil
}

// Confirm moves a paid, pending appointment to confirmed.
func (l *Lifecycle) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.Transition(ctx, id, StatusConfirmed, "")
}

func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	return l.Transition(ctx, id, StatusCancelled, reason)
}

func (l *Lifecycle) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.Transition(ctx, id, StatusCompleted, "")
}

func (l *Lifecycle) publish(ctx context.Context, appt *Appointment, eventType string, payload any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, appt.ID.String(), eventType, payload); err != nil {
		l.logger.Error("failed to publish appointment event", "error", err, "appointment_id", appt.ID, "type", eventType)
	}
}
