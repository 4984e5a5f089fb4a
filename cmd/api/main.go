package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/consult-booking/internal/api/router"
	"github.com/wolfman30/consult-booking/internal/app/bootstrap"
	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/internal/booking"
	appconfig "github.com/wolfman30/consult-booking/internal/config"
	"github.com/wolfman30/consult-booking/internal/events"
	httpmiddleware "github.com/wolfman30/consult-booking/internal/http/middleware"
	"github.com/wolfman30/consult-booking/internal/observability/metrics"
	"github.com/wolfman30/consult-booking/internal/observability/tracing"
	"github.com/wolfman30/consult-booking/internal/payments"
	"github.com/wolfman30/consult-booking/internal/prescriptions"
	"github.com/wolfman30/consult-booking/internal/scheduling"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting consult-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing := tracing.Setup(rootCtx, tracing.Options{
		ServiceName: "consult-booking-api",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)

	application, err := buildApp(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close()
	application.StartBackground(rootCtx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(application.Handler, "consult-api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app holds the wired HTTP handler plus the background workers that share
// its stores.
type app struct {
	Handler   http.Handler
	Stores    bootstrap.Stores
	Deliverer *events.Deliverer
	Sweeper   *booking.ExpirySweeper
	Limiter   *httpmiddleware.RateLimiter

	pool   *pgxpool.Pool
	redis  *redis.Client
	logger *logging.Logger
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	stores := bootstrap.BuildStores(pool)
	directory, err := bootstrap.BuildDoctorDirectory(cfg, redisClient, logger)
	if err != nil {
		return nil, err
	}
	grid, err := scheduling.NewGrid(cfg.SlotStep, scheduling.MorningSession, scheduling.AfternoonSession)
	if err != nil {
		return nil, err
	}
	processor, err := bootstrap.BuildProcessor(cfg, logger)
	if err != nil {
		return nil, err
	}
	delivery, err := bootstrap.BuildDeliveryHandler(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metricsHandler, bookingMetrics := setupMetrics()

	lifecycle := appointments.NewLifecycle(stores.Appointments, stores.Outbox, bookingMetrics, logger)
	coordinator := booking.NewCoordinator(grid, directory, stores.Appointments, cfg.PlatformFee, stores.Outbox, bookingMetrics, logger)
	gateCfg := payments.GateConfig{
		Ledger:    stores.Ledger,
		Publisher: stores.Outbox,
		Metrics:   bookingMetrics,
		Logger:    logger,
		Currency:  cfg.StripeCurrency,
	}
	if redisClient != nil && cfg.IntentMaxAttempts > 0 {
		gateCfg.Velocity = payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
			MaxIntentsPerPatient: cfg.IntentMaxAttempts,
			Window:               cfg.IntentAttemptWindow,
		}, logger)
	}
	gate := payments.NewGate(stores.Appointments, lifecycle, processor, gateCfg)
	guard := prescriptions.NewGuard(stores.Appointments, logger)

	health := router.NewHealthHandler(logger)
	if pool != nil {
		health.Register("postgres", pool.Ping)
	}
	if redisClient != nil {
		health.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	handler := router.New(&router.Config{
		Logger:             logger,
		Booking:            booking.NewHandler(coordinator, logger),
		Appointments:       appointments.NewHandler(stores.Appointments, lifecycle, logger),
		Payments:           payments.NewHandler(gate, stores.Appointments, logger),
		StripeWebhook:      buildStripeWebhook(cfg, gate, stores, bookingMetrics, logger),
		Prescriptions:      prescriptions.NewHandler(guard, stores.Appointments, logger),
		Health:             health,
		MetricsHandler:     metricsHandler,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		PatientAuthSecret:  cfg.PatientJWTSecret,
	})

	return &app{
		Handler:   handler,
		Stores:    stores,
		Deliverer: events.NewDeliverer(stores.Outbox, delivery, logger).WithInterval(cfg.OutboxPollInterval),
		Sweeper:   booking.NewExpirySweeper(stores.Appointments, lifecycle, cfg.PendingExpiry, cfg.ExpirySweepInterval, logger),
		Limiter:   limiter,
		pool:      pool,
		redis:     redisClient,
		logger:    logger,
	}, nil
}

// buildStripeWebhook returns nil, leaving /webhooks/stripe unmounted, unless
// events can be authenticated or fake payments are enabled outside production.
func buildStripeWebhook(cfg *appconfig.Config, gate *payments.Gate, stores bootstrap.Stores, m *metrics.BookingMetrics, logger *logging.Logger) *payments.StripeWebhookHandler {
	if !cfg.StripeWebhookEnabled() {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; stripe webhook route disabled")
		return nil
	}
	h := payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, gate, stores.Processed, m, logger)
	if cfg.StripeWebhookSecret == "" {
		h.AllowUnsigned()
	}
	return h
}

// StartBackground launches the outbox deliverer, the optional expiry
// sweeper and rate limiter eviction. All stop when ctx is cancelled.
func (a *app) StartBackground(ctx context.Context) {
	go a.Deliverer.Start(ctx)
	if a.Sweeper.Enabled() {
		go a.Sweeper.Start(ctx)
	} else {
		a.logger.Info("pending expiry sweeper disabled")
	}
	a.Limiter.StartEviction(ctx, 5*time.Minute, 10*time.Minute)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(registry)
}
