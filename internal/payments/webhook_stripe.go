package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
	signatureTolerance   = 5 * time.Minute
)

// StripeWebhookHandler applies PaymentIntent outcomes reported by Stripe.
type StripeWebhookHandler struct {
	webhookSecret string
	gate          *Gate
	processed     events.Deduper
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	now           func() time.Time
	allowUnsigned bool
}

func NewStripeWebhookHandler(webhookSecret string, gate *Gate, processed events.Deduper, m *metrics.BookingMetrics, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		gate:          gate,
		processed:     processed,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// AllowUnsigned accepts events without a signature when no webhook secret is
// configured. Only for local development against the Stripe CLI or curl.
func (h *StripeWebhookHandler) AllowUnsigned() *StripeWebhookHandler {
	h.allowUnsigned = true
	return h
}

func (h *StripeWebhookHandler) authentic(payload []byte, header string) bool {
	if h.webhookSecret == "" {
		if h.allowUnsigned {
			h.logger.Warn("accepting unsigned stripe webhook (development)")
		}
		return h.allowUnsigned
	}
	return verifyStripeSignature(h.webhookSecret, payload, header, h.now())
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !h.authentic(payload, r.Header.Get("Stripe-Signature")) {
		h.metrics.ObserveWebhook("unknown", "forbidden")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	var outcome Outcome
	intent := evt.Data.Object
	switch evt.Type {
	case stripeEventSucceeded:
		outcome = Success(intent.ID)
	case stripeEventFailed:
		reason := ""
		if intent.LastError != nil {
			reason = intent.LastError.Message
		}
		outcome = Failure(intent.ID, reason)
	default:
		h.metrics.ObserveWebhook(evt.Type, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		if seen, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID); err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		} else if seen {
			h.metrics.ObserveWebhook(evt.Type, "duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	appointmentID, err := uuid.Parse(intent.Metadata["appointment_id"])
	if err != nil {
		h.logger.Warn("stripe webhook missing appointment metadata", "event_id", evt.ID, "metadata", intent.Metadata)
		// Acknowledge to prevent retries but can't progress workflow
		h.metrics.ObserveWebhook(evt.Type, "unroutable")
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.gate.CompletePayment(r.Context(), appointmentID, outcome); err != nil {
		if errors.Is(err, appointments.ErrNotFound) || errors.Is(err, appointments.ErrInvalidTransition) {
			h.logger.Warn("stripe outcome not applied", "error", err, "event_id", evt.ID, "appointment_id", appointmentID)
			h.metrics.ObserveWebhook(evt.Type, "rejected")
			h.markProcessed(r, evt.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		if errors.Is(err, ErrSupersededIntent) {
			h.metrics.ObserveWebhook(evt.Type, "superseded")
			h.markProcessed(r, evt.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("failed to apply stripe outcome", "error", err, "event_id", evt.ID, "appointment_id", appointmentID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWebhook(evt.Type, "applied")
	h.markProcessed(r, evt.ID)
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) markProcessed(r *http.Request, eventID string) {
	if h.processed == nil {
		return
	}
	if _, err := h.processed.MarkProcessed(r.Context(), "stripe", eventID); err != nil {
		h.logger.Error("failed to record processed event", "error", err)
	}
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripePaymentIntent `json:"object"`
	} `json:"data"`
}

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the Stripe-Signature header
// as: t=<timestamp>,v1=<signature>[,v0=<test_signature>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := now.Sub(time.Unix(ts, 0)); d > signatureTolerance || d < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}
