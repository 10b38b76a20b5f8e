package schedule

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Layouts accepted for stored publication timestamps. Zone-less values are UTC.
var storedLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Reservations is the parsed snapshot of already scheduled days.
type Reservations struct {
	Dates DateSet
	// Invalid holds the raw values that could not be parsed. They are not
	// part of Dates, so their day counts as free.
	Invalid []string
}

// Skipped reports how many records were left out of Dates.
func (r Reservations) Skipped() int { return len(r.Invalid) }

// ParseReservations converts stored UTC timestamps into days in loc.
// Unparseable values are logged and skipped rather than failing the batch.
func ParseReservations(raw []string, loc *time.Location, logger *log.Logger) Reservations {
	if logger == nil {
		logger = log.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	res := Reservations{Dates: make(DateSet, len(raw))}
	for _, v := range raw {
		t, ok := parseStored(v)
		if !ok {
			logger.Warn("skipping unparseable reservation date", "value", v)
			res.Invalid = append(res.Invalid, v)
			continue
		}
		res.Dates.Add(DateOf(t.In(loc)))
	}
	if n := res.Skipped(); n > 0 {
		logger.Warn("reservation dates skipped", "skipped", n, "total", len(raw))
	}
	return res
}

func parseStored(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range storedLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
