package scheduling

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire and storage format for calendar days.
	DateLayout = "2006-01-02"
	// TimeSlotLayout is the wire and storage format for slot start times.
	TimeSlotLayout = "15:04"
)

// Date is a calendar day without a time component, always formatted as YYYY-MM-DD.
type Date string

// ParseDate validates and normalizes a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("scheduling: invalid date %q: %w", raw, err)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

// TimeSlot is the start time of a bookable slot, formatted HH:MM.
type TimeSlot string

// ParseTimeSlot validates and normalizes an HH:MM string.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	t, err := time.Parse(TimeSlotLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("scheduling: invalid time slot %q: %w", raw, err)
	}
	return TimeSlot(t.Format(TimeSlotLayout)), nil
}

func (s TimeSlot) String() string { return string(s) }

// minutes returns minutes since midnight; invalid slots sort first.
func (s TimeSlot) minutes() int {
	t, err := time.Parse(TimeSlotLayout, string(s))
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// SlotKey identifies one bookable unit of a doctor's day.
type SlotKey struct {
	DoctorID string
	Date     Date
	TimeSlot TimeSlot
}

func (k SlotKey) String() string {
	return k.DoctorID + "/" + string(k.Date) + "/" + string(k.TimeSlot)
}

// Occupant is anything that may hold a slot key, typically an appointment.
type Occupant interface {
	SlotKey() SlotKey
	OccupiesSlot() bool
}
