package doctors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/consult-booking/pkg/logging"
)

// RedisDirectory caches doctor profiles in Redis in front of a source
// directory. Redis failures degrade to the source.
type RedisDirectory struct {
	redis  *redis.Client
	source Directory
	ttl    time.Duration
	logger *logging.Logger
}

func NewRedisDirectory(client *redis.Client, source Directory, ttl time.Duration, logger *logging.Logger) *RedisDirectory {
	if client == nil {
		panic("doctors: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisDirectory{redis: client, source: source, ttl: ttl, logger: logger}
}

func (d *RedisDirectory) key(doctorID string) string {
	return fmt.Sprintf("doctor:%s", doctorID)
}

func (d *RedisDirectory) Get(ctx context.Context, doctorID string) (*Doctor, error) {
	data, err := d.redis.Get(ctx, d.key(doctorID)).Bytes()
	switch {
	case err == nil:
		var doc Doctor
		if err := json.Unmarshal(data, &doc); err == nil {
			return &doc, nil
		}
		d.logger.Warn("discarding corrupt doctor cache entry", "doctor_id", doctorID)
	case errors.Is(err, redis.Nil):
	default:
		d.logger.Warn("doctor cache read failed", "error", err, "doctor_id", doctorID)
	}

	if d.source == nil {
		return nil, ErrNotFound
	}
	doc, err := d.source.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := d.Set(ctx, doc); err != nil {
		d.logger.Warn("doctor cache write failed", "error", err, "doctor_id", doctorID)
	}
	return doc, nil
}

// Set stores a doctor profile in the cache.
func (d *RedisDirectory) Set(ctx context.Context, doc *Doctor) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("doctors: marshal doctor: %w", err)
	}
	if err := d.redis.Set(ctx, d.key(doc.ID), data, d.ttl).Err(); err != nil {
		return fmt.Errorf("doctors: cache doctor: %w", err)
	}
	return nil
}
