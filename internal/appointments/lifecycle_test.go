package appointments

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consult-booking/internal/events"
)

func TestLifecycleFullPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	outbox := events.NewMemoryOutbox()
	lc := NewLifecycle(store, outbox, nil, nil)

	appt, err := store.Reserve(ctx, reserveParams("D1", "P1", "2024-06-01", "09:00"))
	require.NoError(t, err)

	_, err = lc.Confirm(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition, "confirmation requires payment")
	assert.Empty(t, outbox.Entries())

	_, _, err = store.UpdatePaymentStatus(ctx, appt.ID, PaymentPaid)
	require.NoError(t, err)

	confirmed, err := lc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := lc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = lc.Cancel(ctx, appt.ID, "late")
	require.ErrorIs(t, err, ErrInvalidTransition)

	entries := outbox.Entries()
	require.Len(t, entries, 2)
	var changed events.AppointmentStatusChangedV1
	require.NoError(t, json.Unmarshal(entries[1].Payload, &changed))
	assert.Equal(t, "confirmed", changed.From)
	assert.Equal(t, "completed", changed.To)
	assert.Equal(t, appt.ID.String(), entries[1].AggregateID)
}

func TestLifecycleCancelFreesSlot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	lc := NewLifecycle(store, nil, nil, nil)

	appt, err := store.Reserve(ctx, reserveParams("D1", "P1", "2024-06-01", "09:00"))
	require.NoError(t, err)

	cancelled, err := lc.Cancel(ctx, appt.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "changed mind", cancelled.CancellationReason)

	_, err = store.Reserve(ctx, reserveParams("D1", "P2", "2024-06-01", "09:00"))
	assert.NoError(t, err)
}

func TestLifecycleUnknownAppointment(t *testing.T) {
	lc := NewLifecycle(NewMemoryStore(), nil, nil, nil)
	_, err := lc.Complete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

// racingStore applies a competing write just before the lifecycle's own update.
type racingStore struct {
	*MemoryStore
	race func()
}

func (r *racingStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, Status, error) {
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return r.MemoryStore.UpdateStatus(ctx, id, to, reason)
}

func TestLifecycleReportsStatusReplacedByWrite(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	outbox := events.NewMemoryOutbox()

	appt, err := inner.Reserve(ctx, reserveParams("D1", "P1", "2024-06-01", "09:00"))
	require.NoError(t, err)
	_, _, err = inner.UpdatePaymentStatus(ctx, appt.ID, PaymentPaid)
	require.NoError(t, err)

	store := &racingStore{MemoryStore: inner, race: func() {
		_, _, err := inner.UpdateStatus(ctx, appt.ID, StatusConfirmed, "")
		require.NoError(t, err)
	}}
	lc := NewLifecycle(store, outbox, nil, nil)

	cancelled, err := lc.Cancel(ctx, appt.ID, "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	entries := outbox.Entries()
	require.Len(t, entries, 1)
	var changed events.AppointmentStatusChangedV1
	require.NoError(t, json.Unmarshal(entries[0].Payload, &changed))
	assert.Equal(t, "confirmed", changed.From)
	assert.Equal(t, "cancelled", changed.To)
}
