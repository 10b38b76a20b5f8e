package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// ErrInvalidReservations is returned in strict mode when a stored date cannot be parsed.
var ErrInvalidReservations = errors.New("unparseable reservation dates")

// ReservationLister returns the stored UTC publication dates of already scheduled items.
type ReservationLister interface {
	ListScheduled(ctx context.Context) ([]string, error)
}

// Options configures a Resolver.
type Options struct {
	Location *time.Location
	Slot     Slot
	// Strict fails resolution on an unparseable record instead of treating
	// its day as free.
	Strict bool
	Now    func() time.Time
}

// Resolution is the outcome of one Next call.
type Resolution struct {
	At       time.Time
	Reserved int
	Skipped  int
}

// Resolver picks the next free slot from a fresh reservation listing on every call.
type Resolver struct {
	lister ReservationLister
	opts   Options
	logger *log.Logger
}

func NewResolver(lister ReservationLister, opts Options, logger *log.Logger) (*Resolver, error) {
	if lister == nil {
		return nil, errors.New("reservation lister is required")
	}
	if opts.Location == nil {
		return nil, errors.New("reference location is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{lister: lister, opts: opts, logger: logger}, nil
}

// Next fetches the current reservations and resolves the next free slot.
func (r *Resolver) Next(ctx context.Context) (Resolution, error) {
	raw, err := r.lister.ListScheduled(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list reservations: %w", err)
	}

	res := ParseReservations(raw, r.opts.Location, r.logger)
	if r.opts.Strict && res.Skipped() > 0 {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidReservations, res.Invalid)
	}

	at := ResolveNextSlot(r.opts.Now(), res.Dates, r.opts.Slot, r.opts.Location)
	r.logger.Info("resolved publication slot",
		"slot", at.Format(time.RFC3339),
		"reserved", len(res.Dates),
		"skipped", res.Skipped())

	return Resolution{At: at, Reserved: len(res.Dates), Skipped: res.Skipped()}, nil
}
