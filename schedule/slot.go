package schedule

import (
	"fmt"
	"time"
)

// Date is a calendar day in the reference timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateSet holds reserved days. Duplicates collapse on insert.
type DateSet map[Date]struct{}

// NewDateSet builds a set from the given days.
func NewDateSet(days ...Date) DateSet {
	s := make(DateSet, len(days))
	for _, d := range days {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(d Date) { s[d] = struct{}{} }

func (s DateSet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

// Slot is the canonical publication time-of-day.
type Slot struct {
	Hour   int
	Minute int
}

// ParseSlot reads "HH:MM".
func ParseSlot(v string) (Slot, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot time %q (want HH:MM): %w", v, err)
	}
	return Slot{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// at builds the slot instant on day y-m-d in loc. time.Date normalizes
// overflowing days, so day+1 at month end rolls into the next month.
func (s Slot) at(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, loc)
}

// ResolveNextSlot returns the earliest day from tomorrow (relative to now in
// loc) that is not in reserved, at the slot's wall-clock time in loc.
//
// Each step rebuilds the candidate from its calendar fields instead of adding
// 24h, so a DST change never shifts the wall-clock time.
func ResolveNextSlot(now time.Time, reserved DateSet, slot Slot, loc *time.Location) time.Time {
	if loc == nil {
		loc = now.Location()
	}
	y, m, d := now.In(loc).Date()
	candidate := slot.at(y, m, d+1, loc)
	for reserved.Has(DateOf(candidate)) {
		y, m, d = candidate.Date()
		candidate = slot.at(y, m, d+1, loc)
	}
	return candidate
}
