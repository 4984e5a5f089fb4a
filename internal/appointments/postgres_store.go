package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/consult-booking/internal/scheduling"
)

const uniqueViolation = "23505"

type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments in Postgres. Slot exclusivity comes
// from the partial unique index appointments_live_slot_idx.
type PostgresStore struct {
	db queryable
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db queryable) *PostgresStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresStore{db: db}
}

const selectColumns = `id, doctor_id, patient_id, to_char(appointment_date, 'YYYY-MM-DD'), time_slot,
	status, payment_status, amount::text, COALESCE(payment_ref, ''), COALESCE(cancellation_reason, ''),
	patient_name, patient_email, patient_phone, health_issue, created_at, updated_at, payment_attempts`

type rowScanner interface {
	Scan(dest ...any) error
}

// extraScanner appends destinations for columns returned after selectColumns.
type extraScanner struct {
	row   rowScanner
	extra []any
}

func (e extraScanner) Scan(dest ...any) error {
	return e.row.Scan(append(dest, e.extra...)...)
}

func withExtra(row rowScanner, extra ...any) rowScanner {
	return extraScanner{row: row, extra: extra}
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var (
		a                     Appointment
		date, slot            string
		status, paymentStatus string
		amount                string
	)
	if err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &date, &slot,
		&status, &paymentStatus, &amount, &a.PaymentRef, &a.CancellationReason,
		&a.Patient.Name, &a.Patient.Email, &a.Patient.Phone, &a.Patient.HealthIssue,
		&a.CreatedAt, &a.UpdatedAt, &a.PaymentAttempts,
	); err != nil {
		return nil, err
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("appointments: parse amount %q: %w", amount, err)
	}
	a.Date = scheduling.Date(date)
	a.TimeSlot = scheduling.TimeSlot(slot)
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	a.Amount = dec
	return &a, nil
}

func (s *PostgresStore) Reserve(ctx context.Context, params ReserveParams) (*Appointment, error) {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, time_slot, status, payment_status, amount,
			patient_name, patient_email, patient_phone, health_issue
		)
		VALUES ($1, $2, $3, $4::date, $5, 'pending', 'pending', $6::numeric, $7, $8, $9, $10)
		ON CONFLICT (doctor_id, appointment_date, time_slot) WHERE status IN ('pending', 'confirmed') DO NOTHING
		RETURNING ` + selectColumns
	row := s.db.QueryRow(ctx, query,
		uuid.New(), params.DoctorID, params.PatientID, params.Date.String(), params.TimeSlot.String(),
		params.Amount.String(), params.Patient.Name, params.Patient.Email, params.Patient.Phone, params.Patient.HealthIssue,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == uniqueViolation) {
			return nil, &ConflictError{Key: params.slotKey()}
		}
		return nil, fmt.Errorf("appointments: reserve: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to PaymentStatus) (*Appointment, bool, error) {
	if !to.Terminal() {
		return nil, false, &InvalidTransitionError{Field: "payment_status", To: string(to), Reason: "target must be paid or failed"}
	}
	query := `
		UPDATE appointments
		SET payment_status = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING ` + selectColumns
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id, string(to)))
	if err == nil {
		return appt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("appointments: update payment status: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	noop, err := checkPaymentTransition(current, to)
	if err != nil {
		return nil, false, err
	}
	if !noop {
		return nil, false, &InvalidTransitionError{Field: "payment_status", From: string(current.PaymentStatus), To: string(to), Reason: "concurrent update"}
	}
	return current, false, nil
}

func (s *PostgresStore) ResetPaymentForRetry(ctx context.Context, id uuid.UUID) (*Appointment, bool, error) {
	query := `
		UPDATE appointments
		SET payment_status = 'pending', payment_attempts = payment_attempts + 1, payment_ref = NULL, updated_at = now()
		WHERE id = $1 AND payment_status = 'failed' AND status = 'pending'
		RETURNING ` + selectColumns
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id))
	if err == nil {
		return appt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("appointments: reset payment: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	noop, err := checkPaymentRetry(current)
	if err != nil {
		return nil, false, err
	}
	if !noop {
		return nil, false, &InvalidTransitionError{Field: "payment_status", From: string(current.PaymentStatus), To: string(PaymentPending), Reason: "concurrent update"}
	}
	return current, false, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, Status, error) {
	sources := sourceStatuses(to)
	if !to.Valid() || len(sources) == 0 {
		return nil, "", &InvalidTransitionError{Field: "status", To: string(to), Reason: "no transition leads here"}
	}
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}
	// prev locks the row so the returned prior status is the one this write replaced.
	query := `
		WITH prev AS (
			SELECT id AS prev_id, status AS prev_status FROM appointments WHERE id = $1 FOR UPDATE
		)
		UPDATE appointments
		SET status = $2::text,
			cancellation_reason = CASE WHEN $2::text = 'cancelled' AND $3::text <> '' THEN $3::text ELSE cancellation_reason END,
			updated_at = now()
		FROM prev
		WHERE id = prev.prev_id
			AND status = ANY($4::text[])
			AND ($2::text <> 'confirmed' OR payment_status = 'paid')
		RETURNING ` + selectColumns + `, prev.prev_status`
	var prior string
	appt, err := scanAppointment(withExtra(s.db.QueryRow(ctx, query, id, string(to), reason, from), &prior))
	if err == nil {
		return appt, Status(prior), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("appointments: update status: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := checkStatusTransition(current, to); err != nil {
		return nil, "", err
	}
	return nil, "", &InvalidTransitionError{Field: "status", From: string(current.Status), To: string(to), Reason: "concurrent update"}
}

func (s *PostgresStore) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	ct, err := s.db.Exec(ctx, `UPDATE appointments SET payment_ref = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("appointments: set payment ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByDoctorDate(ctx context.Context, doctorID string, date scheduling.Date) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2::date
		ORDER BY time_slot, created_at`
	return s.list(ctx, "list by doctor", query, doctorID, date.String())
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, time_slot DESC`
	return s.list(ctx, "list by patient", query, patientID)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE status = 'pending' AND payment_status <> 'paid' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return s.list(ctx, "list stale pending", query, before, limit)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: %s: scan: %w", op, err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: %s: %w", op, err)
	}
	return out, nil
}
