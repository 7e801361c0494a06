// Package prices resolves the best-available closing price for a
// symbol on a simulation date using a three-tier fallback:
// exact date → nearest prior date → earliest available date.
//
// The last tier keeps a symbol tradeable even when its history starts
// after the simulation's current date.
package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

// Source is the read-only slice of the price store the resolver needs.
// Implementations return (nil, nil) when no matching point exists.
type Source interface {
	PriceOn(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error)
	LatestPriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error)
	EarliestPrice(ctx context.Context, symbol string) (*model.PricePoint, error)
}

// NoPriceDataError reports that a symbol has no usable price data for
// the requested date. Earliest is set when the symbol has history
// starting later, so callers can tell the user when trading opens.
type NoPriceDataError struct {
	Symbol   string
	Date     time.Time
	Earliest *time.Time
}

func (e *NoPriceDataError) Error() string {
	if e.Earliest != nil {
		return fmt.Sprintf("prices: no price data for %s on or before %s (earliest available: %s)",
			e.Symbol, e.Date.Format("2006-01-02"), e.Earliest.Format("2006-01-02"))
	}
	return fmt.Sprintf("prices: no price data for %s", e.Symbol)
}

// Tier identifies which fallback level produced a price.
type Tier string

const (
	TierExact    Tier = "exact"
	TierNearest  Tier = "nearest_prior"
	TierEarliest Tier = "earliest"
)

// Resolver answers price lookups against a Source.
type Resolver struct {
	src Source
}

// NewResolver creates a resolver over the given source.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the best-available price point for symbol on date,
// first match wins: exact, nearest prior, earliest available. When the
// symbol has no price data at all it returns *NoPriceDataError.
func (r *Resolver) Resolve(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, Tier, error) {
	date = model.Day(date)

	p, err := r.src.PriceOn(ctx, symbol, date)
	if err != nil {
		return nil, "", err
	}
	if p != nil {
		return p, TierExact, nil
	}

	p, err = r.src.LatestPriceOnOrBefore(ctx, symbol, date)
	if err != nil {
		return nil, "", err
	}
	if p != nil {
		return p, TierNearest, nil
	}

	p, err = r.src.EarliestPrice(ctx, symbol)
	if err != nil {
		return nil, "", err
	}
	if p != nil {
		return p, TierEarliest, nil
	}

	return nil, "", &NoPriceDataError{Symbol: symbol, Date: date}
}
