// Package doctors provides read-only access to the doctor directory used
// for pricing and slot lookups.
package doctors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a doctor id is unknown.
var ErrNotFound = errors.New("doctor not found")

// Doctor is the subset of a doctor profile the booking core needs.
type Doctor struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	Specialty       string          `json:"specialty,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
}

// Directory looks up doctors by id.
type Directory interface {
	Get(ctx context.Context, doctorID string) (*Doctor, error)
}

// StaticDirectory serves a fixed set of doctors held in memory.
type StaticDirectory struct {
	mu      sync.RWMutex
	doctors map[string]Doctor
}

func NewStaticDirectory(list ...Doctor) *StaticDirectory {
	d := &StaticDirectory{doctors: make(map[string]Doctor, len(list))}
	for _, doc := range list {
		d.doctors[doc.ID] = doc
	}
	return d
}

// ParseStatic builds a directory from a JSON array of doctors, the format
// of the DOCTORS_JSON setting. Fees must be non-negative.
func ParseStatic(raw string) (*StaticDirectory, error) {
	if strings.TrimSpace(raw) == "" {
		return NewStaticDirectory(), nil
	}
	var list []Doctor
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("doctors: parse directory: %w", err)
	}
	for _, doc := range list {
		if strings.TrimSpace(doc.ID) == "" {
			return nil, errors.New("doctors: parse directory: doctor id required")
		}
		if doc.ConsultationFee.IsNegative() {
			return nil, fmt.Errorf("doctors: parse directory: negative fee for %s", doc.ID)
		}
	}
	return NewStaticDirectory(list...), nil
}

func (d *StaticDirectory) Get(_ context.Context, doctorID string) (*Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.doctors[doctorID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// Put adds or replaces a doctor.
func (d *StaticDirectory) Put(doc Doctor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[doc.ID] = doc
}

func (d *StaticDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.doctors)
}
