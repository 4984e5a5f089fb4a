package scheduling

import (
	"fmt"
	"time"
)

// Session is a contiguous run of slots; First and Last are both bookable starts.
type Session struct {
	First TimeSlot
	Last  TimeSlot
}

var (
	// MorningSession and AfternoonSession make up the standard consultation day.
	MorningSession   = Session{First: "09:00", Last: "11:30"}
	AfternoonSession = Session{First: "14:00", Last: "16:30"}
)

// Grid is the fixed, ordered set of slot start times offered every day.
type Grid struct {
	slots []TimeSlot
	index map[TimeSlot]struct{}
}

// DefaultGrid returns the standard 12-slot day in 30 minute steps.
func DefaultGrid() *Grid {
	g, err := NewGrid(30*time.Minute, MorningSession, AfternoonSession)
	if err != nil {
		panic(err)
	}
	return g
}

// NewGrid expands sessions into slot start times separated by step.
// Sessions must be given in chronological order and must not overlap.
func NewGrid(step time.Duration, sessions ...Session) (*Grid, error) {
	if step <= 0 || step%time.Minute != 0 {
		return nil, fmt.Errorf("scheduling: step must be a positive whole number of minutes, got %s", step)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("scheduling: at least one session is required")
	}
	stepMin := int(step / time.Minute)
	g := &Grid{index: make(map[TimeSlot]struct{})}
	previous := -1
	for _, s := range sessions {
		first, err := ParseTimeSlot(string(s.First))
		if err != nil {
			return nil, err
		}
		last, err := ParseTimeSlot(string(s.Last))
		if err != nil {
			return nil, err
		}
		if last.minutes() < first.minutes() {
			return nil, fmt.Errorf("scheduling: session %s-%s ends before it starts", first, last)
		}
		if first.minutes() <= previous {
			return nil, fmt.Errorf("scheduling: session starting %s overlaps the previous session", first)
		}
		for m := first.minutes(); m <= last.minutes(); m += stepMin {
			slot := TimeSlot(fmt.Sprintf("%02d:%02d", m/60, m%60))
			g.slots = append(g.slots, slot)
			g.index[slot] = struct{}{}
			previous = m
		}
	}
	return g, nil
}

// AllSlots returns every slot of the day in chronological order. The result is a copy.
func (g *Grid) AllSlots() []TimeSlot {
	out := make([]TimeSlot, len(g.slots))
	copy(out, g.slots)
	return out
}

// Contains reports whether slot is one of the grid's start times.
func (g *Grid) Contains(slot TimeSlot) bool {
	_, ok := g.index[slot]
	return ok
}

// FreeSlots returns AllSlots minus the slots held by live occupants for the
// doctor and date. Occupants for other doctors or days are ignored. An empty
// result means the day is fully booked.
func (g *Grid) FreeSlots(doctorID string, date Date, existing []Occupant) []TimeSlot {
	taken := make(map[TimeSlot]struct{}, len(existing))
	for _, o := range existing {
		if o == nil || !o.OccupiesSlot() {
			continue
		}
		key := o.SlotKey()
		if key.DoctorID != doctorID || key.Date != date {
			continue
		}
		taken[key.TimeSlot] = struct{}{}
	}
	free := make([]TimeSlot, 0, len(g.slots))
	for _, slot := range g.slots {
		if _, busy := taken[slot]; !busy {
			free = append(free, slot)
		}
	}
	return free
}
