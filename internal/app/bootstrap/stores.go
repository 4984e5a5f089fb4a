package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/payments"
)

// OutboxStore is both the write side used by domain components and the read
// side drained by the deliverer.
type OutboxStore interface {
	events.Publisher
	events.Outbox
}

// Stores groups the persistence backends for one process.
type Stores struct {
	Appointments appointments.Store
	Outbox       OutboxStore
	Processed    events.Deduper
	Ledger       payments.IntentLedger
	// Durable is false when everything lives in process memory.
	Durable bool
}

// BuildStores returns Postgres-backed stores when pool is set and in-memory
// stores otherwise.
func BuildStores(pool *pgxpool.Pool) Stores {
	if pool == nil {
		return Stores{
			Appointments: appointments.NewMemoryStore(),
			Outbox:       events.NewMemoryOutbox(),
			Processed:    events.NewMemoryDeduper(),
			Ledger:       payments.NewMemoryLedger(),
		}
	}
	return Stores{
		Appointments: appointments.NewPostgresStore(pool),
		Outbox:       events.NewOutboxStore(pool),
		Processed:    events.NewProcessedStore(pool),
		Ledger:       payments.NewIntentRepository(pool),
		Durable:      true,
	}
}
