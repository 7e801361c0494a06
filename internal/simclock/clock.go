// Package simclock manages the per-user virtual trading date. Each user
// has at most one simulation per mode: historical simulations walk a
// date cursor across the loaded price history, realtime simulations are
// pinned to their creation day.
package simclock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Aryanxx4/Safefolio/internal/model"
	"github.com/Aryanxx4/Safefolio/internal/store"
)

var (
	// ErrInvalidDays is returned when advance is asked for zero or
	// negative days.
	ErrInvalidDays = errors.New("simclock: days must be positive")

	// ErrSimulationNotFound is returned when advance targets a user
	// with no historical simulation.
	ErrSimulationNotFound = errors.New("simclock: simulation not found")
)

// Default date range used when the price table is empty, matching the
// span of the seed dataset.
var (
	defaultStart = time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultEnd   = time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Clock is the simulation clock service.
type Clock struct {
	store store.Store
	now   func() time.Time
}

// New creates a clock over the given store.
func New(st store.Store) *Clock {
	return &Clock{store: st, now: time.Now}
}

// GetOrCreate returns the user's simulation for mode, creating it on
// first access. Historical simulations span the global price date range
// with the cursor at the start; realtime simulations pin all three
// dates to today. Creation is an insert-if-absent, so concurrent first
// requests converge on one row.
func (c *Clock) GetOrCreate(ctx context.Context, userID string, mode model.Mode) (*model.Simulation, error) {
	sim, err := c.store.GetSimulation(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	if sim != nil {
		return sim, nil
	}

	var start, end time.Time
	if mode == model.ModeHistorical {
		min, max, ok, err := c.store.PriceDateRange(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			min, max = defaultStart, defaultEnd
		}
		start, end = model.Day(min), model.Day(max)
	} else {
		today := model.Day(c.now())
		start, end = today, today
	}

	return c.store.CreateSimulation(ctx, &model.Simulation{
		ID:          uuid.New().String(),
		UserID:      userID,
		Mode:        mode,
		CurrentDate: start,
		StartDate:   start,
		EndDate:     end,
	})
}

// Advance moves the historical simulation's cursor forward by days,
// clamped to the end date. Saturating rather than failing keeps the
// clock usable at the edge of the data range; downstream price lookups
// already have their own fallbacks.
func (c *Clock) Advance(ctx context.Context, userID string, days int) (*model.Simulation, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}

	sim, err := c.store.GetSimulation(ctx, userID, model.ModeHistorical)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, ErrSimulationNotFound
	}

	next := sim.CurrentDate.AddDate(0, 0, days)
	if next.After(sim.EndDate) {
		next = sim.EndDate
	}

	if err := c.store.SetSimulationDate(ctx, sim, next); err != nil {
		return nil, err
	}
	sim.CurrentDate = next
	return sim, nil
}

// Reset rewinds every simulation of the user to its start date.
func (c *Clock) Reset(ctx context.Context, userID string) error {
	return c.store.RewindSimulations(ctx, userID)
}
