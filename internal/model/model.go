// Package model defines the core domain types shared across the paper
// trading engine. All monetary values and share quantities use
// shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Mode selects which price source drives a simulation.
type Mode string

const (
	ModeHistorical Mode = "historical"
	ModeRealtime   Mode = "realtime"
)

// User is an identity-linked trading account. ID is the external
// identity-provider subject; the core trusts it without re-verifying.
type User struct {
	ID        string          `json:"id" db:"id"`
	Email     string          `json:"email,omitempty" db:"email"`
	Name      string          `json:"name,omitempty" db:"name"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Simulation is the per-user, per-mode virtual clock. For historical
// mode, StartDate ≤ CurrentDate ≤ EndDate; realtime dates are pinned
// to creation day and are informational only.
type Simulation struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Mode        Mode      `json:"mode" db:"mode"`
	CurrentDate time.Time `json:"currentDate" db:"current_date"`
	StartDate   time.Time `json:"startDate" db:"start_date"`
	EndDate     time.Time `json:"endDate" db:"end_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Position is a holding in one symbol within one simulation. A position
// whose quantity reaches zero is deleted, never stored.
type Position struct {
	UserID       string          `json:"user_id" db:"user_id"`
	SimulationID string          `json:"simulation_id" db:"simulation_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice" db:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable record of an executed order.
// Once created, these are never modified; they are only deleted by an
// explicit account reset.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	SimulationID string          `json:"simulation_id" db:"simulation_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Side         Side            `json:"side" db:"side"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Total        decimal.Decimal `json:"totalCost" db:"total"`
	ExecutedAt   time.Time       `json:"executedAt" db:"executed_at"`
}

// PricePoint is one day of OHLCV history for a symbol. The price table
// is externally populated, append-only, and immutable once loaded.
type PricePoint struct {
	Symbol string          `json:"symbol" db:"stock_symbol"`
	Date   time.Time       `json:"date" db:"price_date"`
	Open   decimal.Decimal `json:"open" db:"open"`
	High   decimal.Decimal `json:"high" db:"high"`
	Low    decimal.Decimal `json:"low" db:"low"`
	Close  decimal.Decimal `json:"close" db:"close"`
	Volume int64           `json:"volume" db:"volume"`
}

// Quote is a live snapshot from the external quote source.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Current       decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Day truncates t to midnight UTC. Simulation dates and price dates are
// always day-granular.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
