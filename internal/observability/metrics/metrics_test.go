package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservation("created", 0.01)
	m.ObserveReservation("created", 0.02)
	m.ObserveReservation("conflict", 0.01)
	m.ObservePayment("success", false)
	m.ObservePayment("success", true)
	m.ObserveTransition("pending", "confirmed")
	m.ObserveWebhook("payment_intent.succeeded", "applied")

	if got := testutil.ToFloat64(m.reservationsTotal.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created reservations, got %v", got)
	}
	if got := testutil.ToFloat64(m.reservationsTotal.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.paymentsTotal.WithLabelValues("success", "true")); got != 1 {
		t.Fatalf("expected 1 duplicate success, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("pending", "confirmed")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.CollectAndCount(m.reserveLatency); got != 2 {
		t.Fatalf("expected 2 latency series, got %d", got)
	}
}

func TestBookingMetricsDefaultRegistry(t *testing.T) {
	m := NewBookingMetrics(nil)
	m.ObserveWebhook("payment_intent.payment_failed", "applied")
	prometheus.DefaultRegisterer.Unregister(m.reservationsTotal)
	prometheus.DefaultRegisterer.Unregister(m.paymentsTotal)
	prometheus.DefaultRegisterer.Unregister(m.transitionsTotal)
	prometheus.DefaultRegisterer.Unregister(m.webhooksTotal)
	prometheus.DefaultRegisterer.Unregister(m.reserveLatency)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveReservation("created", 0.1)
	m.ObservePayment("failure", false)
	m.ObserveTransition("pending", "cancelled")
	m.ObserveWebhook("event", "ignored")
}
