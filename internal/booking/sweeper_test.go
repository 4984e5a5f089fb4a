package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consult-booking/internal/appointments"
)

func TestExpirySweeperCancelsStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.coordinator.Book(ctx, bookReq("D", "P1", "2024-05-01", "09:00"))
	require.NoError(t, err)
	paid, err := f.coordinator.Book(ctx, bookReq("D", "P2", "2024-05-01", "09:30"))
	require.NoError(t, err)
	_, _, err = f.store.UpdatePaymentStatus(ctx, paid.ID, appointments.PaymentPaid)
	require.NoError(t, err)

	sweeper := NewExpirySweeper(f.store, f.lifecycle, 15*time.Minute, time.Minute, nil)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	require.True(t, sweeper.Enabled())

	assert.Equal(t, 1, sweeper.Sweep(ctx))

	got, err := f.store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusCancelled, got.Status)
	assert.Equal(t, expiryReason, got.CancellationReason)

	kept, err := f.store.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusPending, kept.Status)

	assert.Equal(t, 0, sweeper.Sweep(ctx))
}

func TestExpirySweeperIgnoresFreshAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coordinator.Book(ctx, bookReq("D", "P1", "2024-05-01", "09:00"))
	require.NoError(t, err)

	sweeper := NewExpirySweeper(f.store, f.lifecycle, time.Hour, time.Minute, nil)
	assert.Equal(t, 0, sweeper.Sweep(ctx))
}

func TestExpirySweeperDisabledByDefault(t *testing.T) {
	f := newFixture(t)
	sweeper := NewExpirySweeper(f.store, f.lifecycle, 0, 0, nil)
	assert.False(t, sweeper.Enabled())
	assert.Equal(t, 0, sweeper.Sweep(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
