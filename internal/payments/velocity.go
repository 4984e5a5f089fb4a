package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/consult-booking/pkg/logging"
)

// ErrTooManyAttempts is returned when a patient opens more payment intents
// than the velocity window allows.
var ErrTooManyAttempts = errors.New("payments: too many payment attempts")

// VelocityLimiter caps how often a patient may start a charge.
type VelocityLimiter interface {
	CheckIntentVelocity(ctx context.Context, patientID string) (*VelocityResult, error)
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max intents per patient per window
	MaxIntentsPerPatient int
	Window               time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxIntentsPerPatient: 5,
		Window:               time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// VelocityChecker counts intent attempts in Redis for fraud prevention.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultVelocityConfig()
	if config.MaxIntentsPerPatient <= 0 {
		config.MaxIntentsPerPatient = defaults.MaxIntentsPerPatient
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

func intentVelocityKey(patientID string) string {
	return fmt.Sprintf("velocity:intent:%s", patientID)
}

// CheckIntentVelocity records one attempt and reports whether it is allowed.
// Redis failures fail open.
func (v *VelocityChecker) CheckIntentVelocity(ctx context.Context, patientID string) (*VelocityResult, error) {
	ctx, span := stripeTracer.Start(ctx, "velocity.check_intent")
	defer span.End()
	span.SetAttributes(attribute.String("patient.id", patientID))

	key := intentVelocityKey(patientID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxIntentsPerPatient,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxIntentsPerPatient,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment attempts in %s", v.config.MaxIntentsPerPatient, v.config.Window)
		v.logger.Warn("payment intent velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", v.config.MaxIntentsPerPatient,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// ResetIntentVelocity clears the counter for a patient (operator use).
func (v *VelocityChecker) ResetIntentVelocity(ctx context.Context, patientID string) error {
	return v.redis.Del(ctx, intentVelocityKey(patientID)).Err()
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
