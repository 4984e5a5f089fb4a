package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/consult-booking/internal/http/middleware"
	"github.com/wolfman30/consult-booking/internal/payments"
	"github.com/wolfman30/consult-booking/internal/prescriptions"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Booking            *booking.Handler
	Appointments       *appointments.Handler
	Payments           *payments.Handler
	StripeWebhook      *payments.StripeWebhookHandler
	Prescriptions      *prescriptions.Handler
	Health             *HealthHandler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string

	AdminAuthSecret   string
	PatientAuthSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	var cors *httpmiddleware.CORS
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors = httpmiddleware.NewCORS(cfg.CORSAllowedOrigins)
		r.Use(cors.Handler)
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(cfg.Logger)
	}

	// Public endpoints (health, metrics, processor webhooks, slot search)
	r.Group(func(public chi.Router) {
		public.Get("/health", health.Check)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.Booking != nil {
			public.With(httpmiddleware.RateLimit(cfg.RateLimiter)).
				Get("/doctors/{doctorID}/slots", cfg.Booking.ListFreeSlots)
		}
	})

	// Patient routes
	r.Group(func(patient chi.Router) {
		patient.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		patient.Use(httpmiddleware.PatientJWT(cfg.PatientAuthSecret))
		if cfg.Booking != nil {
			patient.Post("/appointments", cfg.Booking.CreateAppointment)
		}
		if cfg.Appointments != nil {
			patient.Get("/appointments", cfg.Appointments.ListMine)
			patient.Get("/appointments/{id}", cfg.Appointments.Get)
		}
		if cfg.Payments != nil {
			patient.Post("/appointments/{id}/payment-intent", cfg.Payments.CreateIntent)
		}
	})

	if cfg.Prescriptions != nil {
		r.With(httpmiddleware.PatientOrAdminJWT(cfg.PatientAuthSecret, cfg.AdminAuthSecret)).
			Get("/appointments/{id}/prescription-eligibility", cfg.Prescriptions.Eligibility)
	}

	// Operator routes
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Route("/appointments/{id}", func(appt chi.Router) {
			if cfg.Appointments != nil {
				appt.Post("/status", cfg.Appointments.ChangeStatus)
			}
			if cfg.Payments != nil {
				appt.Post("/payment-outcome", cfg.Payments.ReportOutcome)
			}
		})
	})

	if cors != nil {
		cors.Bind(r)
	}
	return r
}
