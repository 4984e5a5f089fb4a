package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Ledger statuses for recorded intents.
const (
	IntentCreated   = "created"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
)

// IntentRecord is one audited charge attempt.
type IntentRecord struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Provider      string
	ProviderRef   string
	Amount        decimal.Decimal
	Currency      string
	Status        string
	CreatedAt     time.Time
}

// IntentLedger keeps an audit trail of payment intents.
type IntentLedger interface {
	Record(ctx context.Context, rec IntentRecord) error
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, providerRef, status string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IntentRepository persists the ledger in payment_intents.
type IntentRepository struct {
	db execer
}

func NewIntentRepository(pool *pgxpool.Pool) *IntentRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &IntentRepository{db: pool}
}

func newIntentRepositoryWithExec(db execer) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Record(ctx context.Context, rec IntentRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = IntentCreated
	}
	query := `
		INSERT INTO payment_intents (id, appointment_id, provider, provider_ref, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (provider, provider_ref) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, rec.ID, rec.AppointmentID, rec.Provider, rec.ProviderRef, rec.Amount.String(), rec.Currency, rec.Status); err != nil {
		return fmt.Errorf("payments: record intent: %w", err)
	}
	return nil
}

// UpdateStatus marks the intent with the given provider ref. An empty ref
// updates the latest intent recorded for the appointment.
func (r *IntentRepository) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, providerRef, status string) error {
	query := `
		UPDATE payment_intents
		SET status = $3, updated_at = now()
		WHERE id = (
			SELECT id FROM payment_intents
			WHERE appointment_id = $1 AND ($2 = '' OR provider_ref = $2)
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	if _, err := r.db.Exec(ctx, query, appointmentID, providerRef, status); err != nil {
		return fmt.Errorf("payments: update intent status: %w", err)
	}
	return nil
}

// MemoryLedger is an in-process IntentLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	records []IntentRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Record(_ context.Context, rec IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = IntentCreated
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryLedger) UpdateStatus(_ context.Context, appointmentID uuid.UUID, providerRef, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := &m.records[i]
		if rec.AppointmentID != appointmentID {
			continue
		}
		if providerRef == "" || rec.ProviderRef == providerRef {
			rec.Status = status
			return nil
		}
	}
	return nil
}

// Records returns a copy of the ledger.
func (m *MemoryLedger) Records() []IntentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]IntentRecord(nil), m.records...)
}
