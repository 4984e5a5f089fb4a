// Package booking turns booking requests into pending appointments.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/doctors"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/internal/scheduling"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

var tracer = otel.Tracer("consult.internal.booking")

var (
	// ErrDoctorNotFound is returned when the requested doctor is unknown.
	ErrDoctorNotFound = fmt.Errorf("booking: %w", doctors.ErrNotFound)

	// ErrInvalidSlot is returned when the time slot is not on the grid.
	ErrInvalidSlot = errors.New("booking: time slot not on grid")

	// ErrInvalidDate is returned for a malformed calendar date.
	ErrInvalidDate = errors.New("booking: invalid date")

	// ErrPatientRequired is returned when no patient id accompanies the request.
	ErrPatientRequired = errors.New("booking: patient id required")
)

// Request is a patient's booking attempt.
type Request struct {
	DoctorID  string
	PatientID string
	Date      scheduling.Date
	TimeSlot  scheduling.TimeSlot
	Patient   appointments.PatientDetails
}

// Coordinator prices and reserves appointments.
type Coordinator struct {
	grid        *scheduling.Grid
	doctors     doctors.Directory
	store       appointments.Store
	publisher   events.Publisher
	platformFee decimal.Decimal
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
}

func NewCoordinator(grid *scheduling.Grid, directory doctors.Directory, store appointments.Store, platformFee decimal.Decimal, publisher events.Publisher, m *metrics.BookingMetrics, logger *logging.Logger) *Coordinator {
	if directory == nil || store == nil {
		panic("booking: directory and store required")
	}
	if grid == nil {
		grid = scheduling.DefaultGrid()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		grid:        grid,
		doctors:     directory,
		store:       store,
		publisher:   publisher,
		platformFee: platformFee,
		metrics:     m,
		logger:      logger,
	}
}

// Book validates the request and reserves the slot. The amount is frozen at
// the doctor's fee plus the platform fee.
func (c *Coordinator) Book(ctx context.Context, req Request) (*appointments.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor.id", req.DoctorID),
		attribute.String("slot.date", req.Date.String()),
		attribute.String("slot.time", req.TimeSlot.String()),
	)
	start := time.Now()

	if strings.TrimSpace(req.PatientID) == "" {
		return nil, ErrPatientRequired
	}
	date, err := scheduling.ParseDate(req.Date.String())
	if err != nil {
		c.metrics.ObserveReservation("invalid", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	slot, err := scheduling.ParseTimeSlot(req.TimeSlot.String())
	if err != nil || !c.grid.Contains(slot) {
		c.metrics.ObserveReservation("invalid", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, req.TimeSlot)
	}
	doctor, err := c.lookupDoctor(ctx, req.DoctorID)
	if err != nil {
		c.metrics.ObserveReservation("invalid", time.Since(start).Seconds())
		return nil, err
	}

	appt, err := c.store.Reserve(ctx, appointments.ReserveParams{
		DoctorID:  doctor.ID,
		PatientID: req.PatientID,
		Date:      date,
		TimeSlot:  slot,
		Amount:    doctor.ConsultationFee.Add(c.platformFee),
		Patient:   req.Patient,
	})
	if err != nil {
		span.RecordError(err)
		outcome := "error"
		if errors.Is(err, appointments.ErrConflict) {
			outcome = "conflict"
		}
		c.metrics.ObserveReservation(outcome, time.Since(start).Seconds())
		return nil, fmt.Errorf("booking: reserve: %w", err)
	}
	c.metrics.ObserveReservation("created", time.Since(start).Seconds())
	c.logger.Info("appointment reserved",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date,
		"time_slot", appt.TimeSlot,
		"amount", appt.Amount.String(),
	)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, appt.ID.String(), events.TypeAppointmentReserved, events.AppointmentReservedV1{
			EventID:       uuid.NewString(),
			AppointmentID: appt.ID.String(),
			DoctorID:      appt.DoctorID,
			PatientID:     appt.PatientID,
			Date:          appt.Date.String(),
			TimeSlot:      appt.TimeSlot.String(),
			Amount:        appt.Amount.String(),
			ReservedAt:    appt.CreatedAt,
		}); err != nil {
			c.logger.Error("failed to publish reservation event", "error", err, "appointment_id", appt.ID)
		}
	}
	return appt, nil
}

// FreeSlots lists the grid values not held by a live appointment for the
// doctor on the given day.
func (c *Coordinator) FreeSlots(ctx context.Context, doctorID string, date scheduling.Date) ([]scheduling.TimeSlot, error) {
	day, err := scheduling.ParseDate(date.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if _, err := c.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	existing, err := c.store.ListByDoctorDate(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("booking: free slots: %w", err)
	}
	return c.grid.FreeSlots(doctorID, day, appointments.Occupants(existing)), nil
}

func (c *Coordinator) lookupDoctor(ctx context.Context, doctorID string) (*doctors.Doctor, error) {
	doctor, err := c.doctors.Get(ctx, doctorID)
	if errors.Is(err, doctors.ErrNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: doctor lookup: %w", err)
	}
	return doctor, nil
}
