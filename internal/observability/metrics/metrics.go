package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking and payment flows.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	paymentsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	webhooksTotal     *prometheus.CounterVec
	reserveLatency    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "payments",
			Name:      "outcomes_total",
			Help:      "Payment outcomes applied to appointments",
		}, []string{"outcome", "duplicate"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "payments",
			Name:      "webhooks_total",
			Help:      "Processor webhooks by event type and result",
		}, []string{"event_type", "result"}),
		reserveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consult",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of the reserve call",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.paymentsTotal, m.transitionsTotal, m.webhooksTotal, m.reserveLatency)
	return m
}

// ObserveReservation records one reserve attempt. Outcome is one of
// "created", "conflict", "invalid" or "error".
func (m *BookingMetrics) ObserveReservation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
	m.reserveLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObservePayment(outcome string, duplicate bool) {
	if m == nil {
		return
	}
	label := "false"
	if duplicate {
		label = "true"
	}
	m.paymentsTotal.WithLabelValues(outcome, label).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(eventType, result).Inc()
}
