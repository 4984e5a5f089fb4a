package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/consult-booking/internal/config"
	"github.com/wolfman30/consult-booking/internal/doctors"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

// BuildDoctorDirectory seeds the static directory from DOCTORS_JSON and puts
// the Redis cache in front of it when a client is available.
func BuildDoctorDirectory(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (doctors.Directory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	static, err := doctors.ParseStatic(cfg.DoctorsJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: doctors: %w", err)
	}
	if static.Len() == 0 {
		logger.Warn("doctor directory is empty; set DOCTORS_JSON")
	}
	if redisClient == nil {
		return static, nil
	}
	logger.Info("doctor directory cached in redis", "ttl", cfg.DoctorCacheTTL, "doctors", static.Len())
	return doctors.NewRedisDirectory(redisClient, static, cfg.DoctorCacheTTL, logger), nil
}
