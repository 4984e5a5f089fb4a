package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/booking"
	"github.com/wolfman30/consult-booking/internal/doctors"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/internal/payments"
	"github.com/wolfman30/consult-booking/internal/prescriptions"
	"github.com/wolfman30/consult-booking/internal/scheduling"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

const (
	patientSecret = "patient-secret"
	adminSecret   = "admin-secret"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	store := appointments.NewMemoryStore()
	outbox := events.NewMemoryOutbox()
	directory := doctors.NewStaticDirectory(doctors.Doctor{ID: "D", Name: "Dr. Rao", ConsultationFee: decimal.NewFromInt(50)})
	lifecycle := appointments.NewLifecycle(store, outbox, m, logger)
	coordinator := booking.NewCoordinator(scheduling.DefaultGrid(), directory, store, decimal.NewFromInt(10), outbox, m, logger)
	gate := payments.NewGate(store, lifecycle, payments.NewFakeProcessor("", logger), payments.GateConfig{
		Ledger:    payments.NewMemoryLedger(),
		Publisher: outbox,
		Metrics:   m,
		Logger:    logger,
	})

	cfg := &Config{
		Logger:            logger,
		Booking:           booking.NewHandler(coordinator, logger),
		Appointments:      appointments.NewHandler(store, lifecycle, logger),
		Payments:          payments.NewHandler(gate, store, logger),
		StripeWebhook:     payments.NewStripeWebhookHandler("whsec", gate, events.NewMemoryDeduper(), m, logger),
		Prescriptions:     prescriptions.NewHandler(prescriptions.NewGuard(store, logger), store, logger),
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:   adminSecret,
		PatientAuthSecret: patientSecret,
	}
	return New(cfg)
}

func token(t *testing.T, secret, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func call(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rr := call(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])
}

func TestHealthHandlerReportsFailingDependency(t *testing.T) {
	health := NewHealthHandler(nil).
		Register("postgres", func(context.Context) error { return nil }).
		Register("redis", func(context.Context) error { return errors.New("connection refused") })
	router := New(&Config{Health: health})

	rr := call(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "ok", "redis": "down"}, body["dependencies"])
}

func TestRouterRequiresAuth(t *testing.T) {
	router := newTestRouter(t)
	patient := token(t, patientSecret, "P1")

	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/appointments", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/appointments", token(t, adminSecret, "ops"), nil).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodPost, "/admin/appointments/x/status", patient, map[string]string{"status": "cancelled"}).Code)
	assert.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/appointments", patient, nil).Code)
}

func TestRouterBookingFlow(t *testing.T) {
	router := newTestRouter(t)
	p1 := token(t, patientSecret, "P1")
	p2 := token(t, patientSecret, "P2")
	admin := token(t, adminSecret, "ops")

	slots := decode[map[string]any](t, call(t, router, http.MethodGet, "/doctors/D/slots?date=2024-05-01", "", nil))
	assert.Contains(t, slots["slots"], "09:00")
	assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, "/doctors/nobody/slots?date=2024-05-01", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/doctors/D/slots?date=May", "", nil).Code)

	booking := map[string]any{
		"doctor_id": "D",
		"date":      "2024-05-01",
		"time_slot": "09:00",
		"patient":   map[string]string{"name": "Ann", "email": "ann@example.com"},
	}
	rr := call(t, router, http.MethodPost, "/appointments", p1, booking)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	appt := decode[appointments.Appointment](t, rr)
	assert.Equal(t, "60", appt.Amount.String())
	assert.Equal(t, appointments.StatusPending, appt.Status)

	// The slot is gone for everyone, including a second patient.
	assert.Equal(t, http.StatusConflict, call(t, router, http.MethodPost, "/appointments", p2, booking).Code)
	slots = decode[map[string]any](t, call(t, router, http.MethodGet, "/doctors/D/slots?date=2024-05-01", "", nil))
	assert.NotContains(t, slots["slots"], "09:00")

	base := "/appointments/" + appt.ID.String()
	assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, base, p2, nil).Code)

	eligibility := decode[map[string]any](t, call(t, router, http.MethodGet, base+"/prescription-eligibility", p1, nil))
	assert.Equal(t, false, eligibility["can_issue"])

	rr = call(t, router, http.MethodPost, base+"/payment-intent", p1, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	handle := decode[payments.IntentHandle](t, rr)
	assert.NotEmpty(t, handle.ClientSecret)

	// Asking again hands back the open intent instead of a second charge.
	rr = call(t, router, http.MethodPost, base+"/payment-intent", p1, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, handle.ProviderRef, decode[payments.IntentHandle](t, rr).ProviderRef)

	rr = call(t, router, http.MethodPost, "/admin/appointments/"+appt.ID.String()+"/payment-outcome", admin,
		map[string]string{"outcome": "success", "provider_ref": handle.ProviderRef})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := decode[appointments.Appointment](t, call(t, router, http.MethodGet, base, p1, nil))
	assert.Equal(t, appointments.StatusConfirmed, got.Status)
	assert.Equal(t, appointments.PaymentPaid, got.PaymentStatus)

	eligibility = decode[map[string]any](t, call(t, router, http.MethodGet, base+"/prescription-eligibility", admin, nil))
	assert.Equal(t, true, eligibility["can_issue"])

	assert.Equal(t, http.StatusConflict, call(t, router, http.MethodPost, base+"/payment-intent", p1, nil).Code)

	// Cancelling frees the slot again.
	rr = call(t, router, http.MethodPost, "/admin/appointments/"+appt.ID.String()+"/status", admin,
		map[string]string{"status": "cancelled", "reason": "patient request"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	slots = decode[map[string]any](t, call(t, router, http.MethodGet, "/doctors/D/slots?date=2024-05-01", "", nil))
	assert.Contains(t, slots["slots"], "09:00")

	mine := decode[map[string][]appointments.Appointment](t, call(t, router, http.MethodGet, "/appointments", p1, nil))
	require.Len(t, mine["appointments"], 1)
	assert.Equal(t, appointments.StatusCancelled, mine["appointments"][0].Status)

	metricsBody := call(t, router, http.MethodGet, "/metrics", "", nil).Body.String()
	assert.Contains(t, metricsBody, "consult_booking_reservations_total")
}

func TestRouterCORSPreflightAdvertisesRouteMethods(t *testing.T) {
	router := New(&Config{
		Appointments:       appointments.NewHandler(appointments.NewMemoryStore(), nil, nil),
		CORSAllowedOrigins: []string{"https://clinic.example"},
		PatientAuthSecret:  patientSecret,
		AdminAuthSecret:    adminSecret,
	})

	preflight := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://clinic.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := preflight("/admin/appointments/42/status")
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))

	rr = preflight("/appointments")
	assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"), "booking routes are not mounted")

	rr = preflight("/health")
	assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
}
