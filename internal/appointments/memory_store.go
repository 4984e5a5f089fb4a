package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/consult-booking/internal/scheduling"
)

// MemoryStore keeps appointments in process. A single mutex covers the
// check-and-insert in Reserve, so the slot index never holds two live entries.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	live  map[scheduling.SlotKey]uuid.UUID
	order []uuid.UUID
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[uuid.UUID]*Appointment),
		live: make(map[scheduling.SlotKey]uuid.UUID),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Reserve(ctx context.Context, params ReserveParams) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := params.slotKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.live[key]; taken {
		return nil, &ConflictError{Key: key}
	}
	now := s.now()
	appt := &Appointment{
		ID:            uuid.New(),
		DoctorID:      params.DoctorID,
		PatientID:     params.PatientID,
		Date:          params.Date,
		TimeSlot:      params.TimeSlot,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Amount:        params.Amount,
		Patient:       params.Patient,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[appt.ID] = appt
	s.live[key] = appt.ID
	s.order = append(s.order, appt.ID)
	return clone(appt), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(appt), nil
}

func (s *MemoryStore) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to PaymentStatus) (*Appointment, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	noop, err := checkPaymentTransition(appt, to)
	if err != nil {
		return nil, false, err
	}
	if noop {
		return clone(appt), false, nil
	}
	appt.PaymentStatus = to
	appt.UpdatedAt = s.now()
	return clone(appt), true, nil
}

func (s *MemoryStore) ResetPaymentForRetry(ctx context.Context, id uuid.UUID) (*Appointment, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	noop, err := checkPaymentRetry(appt)
	if err != nil {
		return nil, false, err
	}
	if noop {
		return clone(appt), false, nil
	}
	appt.PaymentStatus = PaymentPending
	appt.PaymentAttempts++
	appt.PaymentRef = ""
	appt.UpdatedAt = s.now()
	return clone(appt), true, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.byID[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	if err := checkStatusTransition(appt, to); err != nil {
		return nil, "", err
	}
	from := appt.Status
	appt.Status = to
	if to == StatusCancelled && reason != "" {
		appt.CancellationReason = reason
	}
	appt.UpdatedAt = s.now()
	if !to.Live() {
		key := appt.SlotKey()
		if s.live[key] == appt.ID {
			delete(s.live, key)
		}
	}
	return clone(appt), from, nil
}

func (s *MemoryStore) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	appt.PaymentRef = ref
	appt.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListByDoctorDate(ctx context.Context, doctorID string, date scheduling.Date) ([]*Appointment, error) {
	return s.filter(ctx, func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date == date
	}, func(a, b *Appointment) bool {
		return a.TimeSlot < b.TimeSlot
	}, 0)
}

func (s *MemoryStore) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	return s.filter(ctx, func(a *Appointment) bool {
		return a.PatientID == patientID
	}, func(a, b *Appointment) bool {
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.TimeSlot > b.TimeSlot
	}, 0)
}

func (s *MemoryStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Appointment, error) {
	return s.filter(ctx, func(a *Appointment) bool {
		return a.Status == StatusPending && a.PaymentStatus != PaymentPaid && a.CreatedAt.Before(before)
	}, func(a, b *Appointment) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	}, limit)
}

// filter walks appointments in insertion order, so sorts are stable.
func (s *MemoryStore) filter(ctx context.Context, keep func(*Appointment) bool, less func(a, b *Appointment) bool, limit int) ([]*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]*Appointment, 0)
	for _, id := range s.order {
		if appt := s.byID[id]; keep(appt) {
			out = append(out, clone(appt))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(a *Appointment) *Appointment {
	cp := *a
	return &cp
}
