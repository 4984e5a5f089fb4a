package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
)

const testWebhookSecret = "whsec_test"

var webhookNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func stripeSign(t *testing.T, payload []byte, ts time.Time) string {
	t.Helper()
	timestamp := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(eventID, eventType, intentID string, appointmentID uuid.UUID, failure string) []byte {
	metadata := ""
	if appointmentID != uuid.Nil {
		metadata = fmt.Sprintf(`"appointment_id":%q`, appointmentID.String())
	}
	lastError := "null"
	if failure != "" {
		lastError = fmt.Sprintf(`{"message":%q,"code":"card_declined"}`, failure)
	}
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":{"id":%q,"status":"x","metadata":{%s},"last_payment_error":%s}}}`,
		eventID, eventType, webhookNow.Unix(), intentID, metadata, lastError))
}

type webhookFixture struct {
	gateFixture
	handler  *StripeWebhookHandler
	deduper  *events.MemoryDeduper
	registry *prometheus.Registry
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	f := newGateFixture(t)
	deduper := events.NewMemoryDeduper()
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	h := NewStripeWebhookHandler(testWebhookSecret, f.gate, deduper, m, nil)
	h.now = func() time.Time { return webhookNow }
	return webhookFixture{gateFixture: f, handler: h, deduper: deduper, registry: reg}
}

func webhookCount(t *testing.T, reg *prometheus.Registry, eventType, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "consult_payments_webhooks_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["event_type"] == eventType && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func (f webhookFixture) deliver(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)
	return rec
}

func TestStripeWebhookSucceededConfirms(t *testing.T) {
	f := newWebhookFixture(t)
	appt := f.reserve(t, "09:00")
	handle, err := f.gate.CreateIntent(context.Background(), appt.ID)
	require.NoError(t, err)

	payload := stripeEvent("evt_1", stripeEventSucceeded, handle.ProviderRef, appt.ID, "")
	rec := f.deliver(t, payload, stripeSign(t, payload, webhookNow))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusConfirmed, got.Status)
	assert.Equal(t, appointments.PaymentPaid, got.PaymentStatus)

	seen, err := f.deduper.AlreadyProcessed(context.Background(), "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, stripeEventSucceeded, "applied"))

	// Redelivery of the same event is acknowledged without side effects.
	before := len(f.outbox.Entries())
	rec = f.deliver(t, payload, stripeSign(t, payload, webhookNow))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.outbox.Entries(), before)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, stripeEventSucceeded, "duplicate"))
}

func TestStripeWebhookFailureKeepsAppointmentPending(t *testing.T) {
	f := newWebhookFixture(t)
	appt := f.reserve(t, "10:00")
	handle, err := f.gate.CreateIntent(context.Background(), appt.ID)
	require.NoError(t, err)

	payload := stripeEvent("evt_2", stripeEventFailed, handle.ProviderRef, appt.ID, "Your card was declined.")
	rec := f.deliver(t, payload, stripeSign(t, payload, webhookNow))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusPending, got.Status)
	assert.Equal(t, appointments.PaymentFailed, got.PaymentStatus)
}

func TestStripeWebhookIgnoresFailureForSupersededIntent(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	appt := f.reserve(t, "10:00")
	first, err := f.gate.CreateIntent(ctx, appt.ID)
	require.NoError(t, err)
	_, err = f.gate.CompletePayment(ctx, appt.ID, Failure(first.ProviderRef, "card_declined"))
	require.NoError(t, err)
	retry, err := f.gate.CreateIntent(ctx, appt.ID)
	require.NoError(t, err)

	payload := stripeEvent("evt_late", stripeEventFailed, first.ProviderRef, appt.ID, "Your card was declined.")
	rec := f.deliver(t, payload, stripeSign(t, payload, webhookNow))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.PaymentPending, got.PaymentStatus)
	assert.Equal(t, retry.ProviderRef, got.PaymentRef)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, stripeEventFailed, "superseded"))

	seen, err := f.deduper.AlreadyProcessed(ctx, "stripe", "evt_late")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	appt := f.reserve(t, "09:00")
	payload := stripeEvent("evt_3", stripeEventSucceeded, "pi_1", appt.ID, "")

	cases := map[string]string{
		"missing":  "",
		"tampered": stripeSign(t, []byte(`{"id":"other"}`), webhookNow),
		"stale":    stripeSign(t, payload, webhookNow.Add(-10*time.Minute)),
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.deliver(t, payload, sig)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}

	got, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.PaymentPending, got.PaymentStatus)
}

func TestStripeWebhookAcknowledgesUnusableEvents(t *testing.T) {
	f := newWebhookFixture(t)

	ignored := stripeEvent("evt_4", "charge.refunded", "pi_1", uuid.New(), "")
	rec := f.deliver(t, ignored, stripeSign(t, ignored, webhookNow))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, "charge.refunded", "ignored"))

	noMetadata := stripeEvent("evt_5", stripeEventSucceeded, "pi_1", uuid.Nil, "")
	rec = f.deliver(t, noMetadata, stripeSign(t, noMetadata, webhookNow))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, stripeEventSucceeded, "unroutable"))

	unknown := stripeEvent("evt_6", stripeEventSucceeded, "pi_1", uuid.New(), "")
	rec = f.deliver(t, unknown, stripeSign(t, unknown, webhookNow))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), webhookCount(t, f.registry, stripeEventSucceeded, "rejected"))
	seen, err := f.deduper.AlreadyProcessed(context.Background(), "stripe", "evt_6")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestVerifyStripeSignatureRequiresSecret(t *testing.T) {
	assert.False(t, verifyStripeSignature("", []byte("{}"), "", webhookNow))
	assert.False(t, verifyStripeSignature("", []byte("{}"), "t=1,v1=00", webhookNow))
	assert.False(t, verifyStripeSignature("secret", []byte("{}"), "t=abc,v1=00", webhookNow))
	assert.False(t, verifyStripeSignature("secret", []byte("{}"), "garbage", webhookNow))
}

func TestStripeWebhookWithoutSecretRejectsUnsignedEvents(t *testing.T) {
	f := newGateFixture(t)
	appt := f.reserve(t, "09:00")
	payload := stripeEvent("evt_7", stripeEventSucceeded, "pi_1", appt.ID, "")

	h := NewStripeWebhookHandler("", f.gate, events.NewMemoryDeduper(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	got, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusPending, got.Status)
	assert.Equal(t, appointments.PaymentPending, got.PaymentStatus)

	// Development wiring opts in explicitly.
	h.AllowUnsigned()
	rec = httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
