package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/consult-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("consult.internal.payments.stripe")

// StripeIntentService creates Stripe PaymentIntents for consultation fees.
type StripeIntentService struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

func NewStripeIntentService(secretKey string, logger *logging.Logger) *StripeIntentService {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeIntentService{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeIntentService) WithBaseURL(baseURL string) *StripeIntentService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun returns synthetic intents without calling Stripe.
func (s *StripeIntentService) WithDryRun(enabled bool) *StripeIntentService {
	s.dryRun = enabled
	return s
}

func (s *StripeIntentService) Name() string { return "stripe" }

func (s *StripeIntentService) CreateIntent(ctx context.Context, params IntentParams) (*ProviderIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	cents := minorUnits(params.Amount)
	span.SetAttributes(
		attribute.String("appointment.id", params.AppointmentID.String()),
		attribute.Int64("payment.amount_minor", cents),
	)

	if cents <= 0 {
		return nil, fmt.Errorf("payments: stripe amount must be positive, got %s", params.Amount)
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}

	if s.dryRun {
		fakeID := "pi_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping payment intent creation",
			"appointment_id", params.AppointmentID, "amount_minor", cents)
		return &ProviderIntent{ProviderRef: fakeID, ClientSecret: fakeID + "_secret_dryrun"}, nil
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(cents, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	if params.ReceiptEmail != "" {
		form.Set("receipt_email", params.ReceiptEmail)
	}
	// Webhooks map the intent back to the appointment through metadata.
	form.Set("metadata[appointment_id]", params.AppointmentID.String())
	if params.PatientID != "" {
		form.Set("metadata[patient_id]", params.PatientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}
	return s.do(req, span)
}

// RetrieveIntent fetches an existing PaymentIntent so its client secret can be
// handed out again.
func (s *StripeIntentService) RetrieveIntent(ctx context.Context, providerRef string) (*ProviderIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider_ref", providerRef))

	if strings.TrimSpace(providerRef) == "" {
		return nil, fmt.Errorf("payments: stripe intent id required")
	}
	if s.dryRun {
		return &ProviderIntent{ProviderRef: providerRef, ClientSecret: providerRef + "_secret_dryrun"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/payment_intents/"+url.PathEscape(providerRef), nil)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", s.apiVersion)
	return s.do(req, span)
}

func (s *StripeIntentService) do(req *http.Request, span trace.Span) (*ProviderIntent, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, readStripeError(resp.Body))
	}

	var parsed stripePaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.ID == "" || parsed.ClientSecret == "" {
		return nil, fmt.Errorf("payments: stripe response missing intent id or client secret")
	}
	return &ProviderIntent{ProviderRef: parsed.ID, ClientSecret: parsed.ClientSecret}, nil
}

// stripePaymentIntent is the subset of Stripe's PaymentIntent we need.
type stripePaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Metadata     map[string]string `json:"metadata"`
	LastError    *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"last_payment_error"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// readStripeError extracts the message from a Stripe error body.
func readStripeError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "unknown error"
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(data)
}
