package bootstrap

import (
	"errors"
	"strings"

	appconfig "github.com/wolfman30/consult-booking/internal/config"
	"github.com/wolfman30/consult-booking/internal/payments"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// ErrNoProcessor is returned when neither Stripe nor the fake processor is
// configured.
var ErrNoProcessor = errors.New("bootstrap: no payment processor configured (set STRIPE_SECRET_KEY or ALLOW_FAKE_PAYMENTS)")

// BuildProcessor picks Stripe when a secret key (or dry run) is configured and
// falls back to the fake processor only when explicitly allowed outside
// production.
func BuildProcessor(cfg *appconfig.Config, logger *logging.Logger) (payments.Processor, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if strings.TrimSpace(cfg.StripeSecretKey) != "" || cfg.StripeDryRun {
		logger.Info("payment processor: stripe", "dry_run", cfg.StripeDryRun)
		return payments.NewStripeIntentService(cfg.StripeSecretKey, logger).WithDryRun(cfg.StripeDryRun), nil
	}
	if cfg.AllowFakePayments && !cfg.IsProduction() {
		logger.Warn("payment processor: fake (development only)")
		return payments.NewFakeProcessor(cfg.PublicBaseURL, logger), nil
	}
	return nil, ErrNoProcessor
}
