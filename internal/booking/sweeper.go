package booking

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/consult-booking/internal/appointments"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

const expiryReason = "payment window expired"

// ExpirySweeper cancels pending, unpaid appointments older than maxAge so
// their slots return to the grid.
type ExpirySweeper struct {
	store     appointments.Store
	lifecycle *appointments.Lifecycle
	maxAge    time.Duration
	interval  time.Duration
	batchSize int
	logger    *logging.Logger
	now       func() time.Time
}

func NewExpirySweeper(store appointments.Store, lifecycle *appointments.Lifecycle, maxAge, interval time.Duration, logger *logging.Logger) *ExpirySweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		store:     store,
		lifecycle: lifecycle,
		maxAge:    maxAge,
		interval:  interval,
		batchSize: 100,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a positive expiry window is configured.
func (s *ExpirySweeper) Enabled() bool {
	return s != nil && s.maxAge > 0 && s.store != nil && s.lifecycle != nil
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of cancelled appointments.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	if !s.Enabled() {
		return 0
	}
	cutoff := s.now().Add(-s.maxAge)
	stale, err := s.store.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("expiry sweep list failed", "error", err)
		return 0
	}
	cancelled := 0
	for _, appt := range stale {
		if _, err := s.lifecycle.Cancel(ctx, appt.ID, expiryReason); err != nil {
			if errors.Is(err, appointments.ErrInvalidTransition) {
				continue
			}
			s.logger.Error("expiry cancel failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		s.logger.Info("expired pending appointments", "count", cancelled, "cutoff", cutoff)
	}
	return cancelled
}
