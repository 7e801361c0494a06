// Package store defines the persistence interface for the paper
// trading engine. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

// ErrUserNotFound is returned when an operation references a user that
// was never provisioned.
var ErrUserNotFound = errors.New("store: user not found")

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
//
// Lookup methods that can legitimately find nothing (simulations,
// positions, price points) return (nil, nil) rather than an error so
// callers can distinguish "absent" from "broken".
type Store interface {
	// --- Users ---

	// EnsureUser provisions the user with the initial cash grant if it
	// does not exist yet, and returns the current row either way.
	EnsureUser(ctx context.Context, id string, initialBalance decimal.Decimal) (*model.User, error)

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// --- Simulations ---

	// GetSimulation retrieves the user's simulation for the given mode.
	GetSimulation(ctx context.Context, userID string, mode model.Mode) (*model.Simulation, error)

	// CreateSimulation inserts sim if no row exists for its (user, mode)
	// and returns the winning row. Concurrent first requests converge on
	// a single row (insert-if-absent under a uniqueness constraint).
	CreateSimulation(ctx context.Context, sim *model.Simulation) (*model.Simulation, error)

	// SetSimulationDate moves sim's current date.
	SetSimulationDate(ctx context.Context, sim *model.Simulation, current time.Time) error

	// RewindSimulations resets current date to start date for all of the
	// user's simulations.
	RewindSimulations(ctx context.Context, userID string) error

	// --- Price history (externally populated, read-only) ---

	PriceOn(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error)
	LatestPriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error)
	EarliestPrice(ctx context.Context, symbol string) (*model.PricePoint, error)

	// PriceDateRange returns the minimum and maximum date across all
	// price data. ok is false when the price table is empty.
	PriceDateRange(ctx context.Context) (min, max time.Time, ok bool, err error)

	// PriceSeries returns up to limit points for symbol with date ≤ upTo,
	// ascending by date.
	PriceSeries(ctx context.Context, symbol string, upTo time.Time, limit int) ([]model.PricePoint, error)

	// ListSymbols returns the distinct tradeable symbols, ascending.
	ListSymbols(ctx context.Context) ([]string, error)

	// --- Positions and transactions (reads) ---

	GetPosition(ctx context.Context, userID, simulationID, symbol string) (*model.Position, error)
	ListPositions(ctx context.Context, userID, simulationID string) ([]model.Position, error)

	// ListTransactions returns the most recent transactions, newest first.
	ListTransactions(ctx context.Context, userID, simulationID string, limit int) ([]model.Transaction, error)

	// --- Atomic mutations ---

	// ExecuteOrder applies txn all-or-nothing: funds/holdings check under
	// a per-user lock, transaction append, balance adjustment, and
	// position upsert (weighted-average on buy, reduce-and-delete-at-zero
	// on sell). Any failure rolls everything back; business rejections
	// surface as ledger.ErrInsufficientBalance / ErrInsufficientShares.
	ExecuteOrder(ctx context.Context, txn *model.Transaction) error

	// ResetAccount atomically restores the balance to the initial grant,
	// deletes all of the user's positions and transactions, and rewinds
	// all simulation clocks to their start date.
	ResetAccount(ctx context.Context, userID string, balance decimal.Decimal) error
}
