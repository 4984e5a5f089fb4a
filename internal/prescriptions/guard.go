package prescriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

var tracer = otel.Tracer("consult.internal.prescriptions")

// ErrPaymentRequired is returned when a prescription is requested for an
// appointment that has not been paid.
var ErrPaymentRequired = errors.New("prescriptions: payment required")

// Guard decides whether a prescription may be issued for an appointment.
// Issuance is allowed only once the consultation fee is paid.
type Guard struct {
	store  appointments.Store
	logger *logging.Logger
}

func NewGuard(store appointments.Store, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{store: store, logger: logger}
}

// CanIssue reports whether the appointment's payment is complete.
func (g *Guard) CanIssue(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "prescriptions.can_issue")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID.String()))

	appt, err := g.store.Get(ctx, appointmentID)
	if err != nil {
		return false, fmt.Errorf("prescriptions: can issue: %w", err)
	}
	return appt.PaymentStatus == appointments.PaymentPaid, nil
}

// Authorize returns ErrPaymentRequired unless CanIssue holds.
func (g *Guard) Authorize(ctx context.Context, appointmentID uuid.UUID) error {
	ok, err := g.CanIssue(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !ok {
		g.logger.Warn("prescription blocked: payment incomplete", "appointment_id", appointmentID)
		return ErrPaymentRequired
	}
	return nil
}
