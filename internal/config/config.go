package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	DoctorCacheTTL time.Duration
	DoctorsJSON    string

	// Booking
	PlatformFee         decimal.Decimal
	SlotStep            time.Duration
	PendingExpiry       time.Duration
	ExpirySweepInterval time.Duration

	// Payments
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeDryRun        bool
	StripeCurrency      string
	AllowFakePayments   bool
	IntentMaxAttempts   int
	IntentAttemptWindow time.Duration

	// Auth
	AdminJWTSecret   string
	PatientJWTSecret string

	// HTTP
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Events
	OutboxPollInterval  time.Duration
	EventsQueueURL      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Tracing
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads configuration from environment variables, after applying a
// local .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		DoctorCacheTTL: getEnvAsDuration("DOCTOR_CACHE_TTL", 10*time.Minute),
		DoctorsJSON:    getEnv("DOCTORS_JSON", ""),

		PlatformFee:         getEnvAsDecimal("PLATFORM_FEE", decimal.NewFromInt(10)),
		SlotStep:            getEnvAsDuration("SLOT_STEP", 30*time.Minute),
		PendingExpiry:       getEnvAsDuration("PENDING_EXPIRY", 0),
		ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),
		StripeCurrency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		AllowFakePayments:   getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		IntentMaxAttempts:   getEnvAsInt("INTENT_MAX_ATTEMPTS", 5),
		IntentAttemptWindow: getEnvAsDuration("INTENT_ATTEMPT_WINDOW", time.Hour),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		PatientJWTSecret: getEnv("PATIENT_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

// StripeWebhookEnabled reports whether /webhooks/stripe should be mounted.
// Without a signing secret the route only exists for fake-payment development.
func (c *Config) StripeWebhookEnabled() bool {
	if strings.TrimSpace(c.StripeWebhookSecret) != "" {
		return true
	}
	return c.AllowFakePayments && !c.IsProduction()
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects configurations that are unsafe to serve traffic with.
func (c *Config) Validate() error {
	if c.PlatformFee.IsNegative() {
		return errors.New("PLATFORM_FEE must not be negative")
	}
	if c.SlotStep <= 0 {
		return errors.New("SLOT_STEP must be positive")
	}
	if c.PendingExpiry < 0 {
		return errors.New("PENDING_EXPIRY must not be negative")
	}
	if !c.IsProduction() {
		return nil
	}
	if c.AdminJWTSecret == "" || c.PatientJWTSecret == "" {
		return errors.New("ADMIN_JWT_SECRET and PATIENT_JWT_SECRET are required in production")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}
	if c.AllowFakePayments {
		return errors.New("ALLOW_FAKE_PAYMENTS cannot be enabled in production")
	}
	if strings.TrimSpace(c.StripeSecretKey) != "" && strings.TrimSpace(c.StripeWebhookSecret) == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required in production when STRIPE_SECRET_KEY is set")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
