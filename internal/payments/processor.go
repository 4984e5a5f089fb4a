package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentParams describes one charge attempt for an appointment.
type IntentParams struct {
	AppointmentID uuid.UUID
	PatientID     string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	ReceiptEmail  string
	// IdempotencyKey makes a repeated create for the same attempt return the
	// intent the processor already opened.
	IdempotencyKey string
}

// ProviderIntent is the processor's handle for a charge attempt.
type ProviderIntent struct {
	ProviderRef  string
	ClientSecret string
	// CheckoutURL is set by processors that host their own payment page.
	CheckoutURL string
}

// Processor creates payment intents with an external payment provider.
type Processor interface {
	Name() string
	CreateIntent(ctx context.Context, params IntentParams) (*ProviderIntent, error)
	// RetrieveIntent returns the handle of an intent opened earlier.
	RetrieveIntent(ctx context.Context, providerRef string) (*ProviderIntent, error)
}

// intentIdempotencyKey identifies one payment attempt of an appointment.
func intentIdempotencyKey(appointmentID uuid.UUID, attempt int) string {
	return fmt.Sprintf("consult-intent-%s-%d", appointmentID, attempt)
}

// minorUnits converts a decimal amount to the smallest currency unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
