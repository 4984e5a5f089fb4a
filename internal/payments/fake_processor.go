package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/pkg/logging"
)

// FakeProcessor is a dev/demo processor that issues synthetic intents. The
// outcome is reported later through the admin payment-outcome endpoint.
//
// This MUST be gated by ALLOW_FAKE_PAYMENTS and is refused in production.
type FakeProcessor struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeProcessor(publicBaseURL string, logger *logging.Logger) *FakeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeProcessor{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (p *FakeProcessor) Name() string { return "fake" }

func (p *FakeProcessor) CreateIntent(ctx context.Context, params IntentParams) (*ProviderIntent, error) {
	_ = ctx
	if params.AppointmentID == uuid.Nil {
		return nil, fmt.Errorf("payments: fake processor requires appointment id")
	}
	if p.publicBaseURL != "" && !isValidBaseURL(p.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake processor PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	ref := "fake_pi_" + uuid.New().String()
	intent := &ProviderIntent{ProviderRef: ref, ClientSecret: ref + "_secret"}
	if p.publicBaseURL != "" {
		intent.CheckoutURL = fmt.Sprintf("%s/payments/fake/%s", p.publicBaseURL, params.AppointmentID)
	}
	p.logger.Info("fake payment intent created", "appointment_id", params.AppointmentID, "provider_ref", ref)
	return intent, nil
}

func (p *FakeProcessor) RetrieveIntent(ctx context.Context, providerRef string) (*ProviderIntent, error) {
	_ = ctx
	if !strings.HasPrefix(providerRef, "fake_pi_") {
		return nil, fmt.Errorf("payments: fake processor does not know intent %q", providerRef)
	}
	return &ProviderIntent{ProviderRef: providerRef, ClientSecret: providerRef + "_secret"}, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
