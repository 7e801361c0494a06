package prices_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
	"github.com/Aryanxx4/Safefolio/internal/prices"
	"github.com/Aryanxx4/Safefolio/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func point(symbol string, date time.Time, close float64) model.PricePoint {
	return model.PricePoint{
		Symbol: symbol,
		Date:   date,
		Close:  decimal.NewFromFloat(close),
	}
}

// newResolver seeds X with price data on 2007-01-01 and 2007-01-10 only.
func newResolver(t *testing.T) *prices.Resolver {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.AddPricePoints(
		point("X", day(2007, 1, 1), 100),
		point("X", day(2007, 1, 10), 110),
	)
	return prices.NewResolver(ms)
}

func TestResolve_ExactDate(t *testing.T) {
	r := newResolver(t)

	p, tier, err := r.Resolve(context.Background(), "X", day(2007, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != prices.TierExact {
		t.Errorf("expected exact tier, got %s", tier)
	}
	if !p.Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected close 100, got %s", p.Close)
	}
}

func TestResolve_NearestPrior(t *testing.T) {
	r := newResolver(t)

	// 2007-01-05 has no point; the 2007-01-01 close wins.
	p, tier, err := r.Resolve(context.Background(), "X", day(2007, 1, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != prices.TierNearest {
		t.Errorf("expected nearest_prior tier, got %s", tier)
	}
	if !p.Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected close 100, got %s", p.Close)
	}
}

func TestResolve_EarliestFallback(t *testing.T) {
	r := newResolver(t)

	// 2006-01-01 predates all history; the earliest point still trades.
	p, tier, err := r.Resolve(context.Background(), "X", day(2006, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != prices.TierEarliest {
		t.Errorf("expected earliest tier, got %s", tier)
	}
	if !p.Date.Equal(day(2007, 1, 1)) {
		t.Errorf("expected earliest date 2007-01-01, got %s", p.Date)
	}
}

func TestResolve_NoData(t *testing.T) {
	r := newResolver(t)

	_, _, err := r.Resolve(context.Background(), "UNKNOWN", day(2007, 1, 1))
	var noData *prices.NoPriceDataError
	if !errors.As(err, &noData) {
		t.Fatalf("expected NoPriceDataError, got %v", err)
	}
	if noData.Symbol != "UNKNOWN" {
		t.Errorf("error should carry the symbol, got %q", noData.Symbol)
	}
}

func TestResolve_TruncatesTimeOfDay(t *testing.T) {
	r := newResolver(t)

	// A mid-day timestamp on an exact date still matches that day.
	at := time.Date(2007, 1, 10, 15, 30, 0, 0, time.UTC)
	p, tier, err := r.Resolve(context.Background(), "X", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != prices.TierExact {
		t.Errorf("expected exact tier, got %s", tier)
	}
	if !p.Close.Equal(decimal.NewFromInt(110)) {
		t.Errorf("expected close 110, got %s", p.Close)
	}
}
