package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestVelocityChecker_CheckIntentVelocity(t *testing.T) {
	mr, client := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxIntentsPerPatient: 3, Window: time.Hour}, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := checker.CheckIntentVelocity(ctx, "P1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "attempt %d", i)
		assert.Equal(t, i, result.CurrentCount)
	}
	result, err := checker.CheckIntentVelocity(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 3, result.MaxAllowed)
	assert.NotEmpty(t, result.Message)

	other, err := checker.CheckIntentVelocity(ctx, "P2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// The window expires.
	mr.FastForward(time.Hour + time.Second)
	result, err = checker.CheckIntentVelocity(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)

	require.NoError(t, checker.ResetIntentVelocity(ctx, "P2"))
	assert.False(t, mr.Exists(intentVelocityKey("P2")))
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{}, nil)
	mr.SetError("READONLY")

	result, err := checker.CheckIntentVelocity(context.Background(), "P1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "velocity check unavailable", result.Message)
}

type denyVelocity struct{}

func (denyVelocity) CheckIntentVelocity(context.Context, string) (*VelocityResult, error) {
	return &VelocityResult{Allowed: false}, nil
}

func TestGateCreateIntentHonorsVelocity(t *testing.T) {
	f := newGateFixture(t)
	gate := NewGate(f.store, f.lifecycle, f.processor, GateConfig{Velocity: denyVelocity{}})
	appt := f.reserve(t, "09:00")

	_, err := gate.CreateIntent(context.Background(), appt.ID)
	assert.True(t, errors.Is(err, ErrTooManyAttempts))
	assert.Empty(t, f.processor.calls)
}
