package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Price history is immutable once loaded, so price
// lookups and the global date range cache aggressively; per-user state
// is cached with invalidation on every mutation.
//
// Caching the date range matters most: without it, every simulation
// get-or-create scans MIN/MAX over the whole price table.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// rangeTTL is how long the global price date range is cached. The price
// table only changes on data ingest, so this can be generous.
const rangeTTL = 10 * time.Minute

func priceKey(symbol string, date time.Time) string {
	return fmt.Sprintf("price:%s:%s", symbol, date.Format("2006-01-02"))
}
func earliestKey(symbol string) string { return "price:earliest:" + symbol }
func cacheSimKey(userID string, mode model.Mode) string {
	return fmt.Sprintf("sim:%s:%s", userID, mode)
}
func cachePositionsKey(userID, simID string) string {
	return fmt.Sprintf("positions:%s:%s", userID, simID)
}

// --- Users (not cached: balance changes on every order) ---

func (s *CachedStore) EnsureUser(ctx context.Context, id string, initialBalance decimal.Decimal) (*model.User, error) {
	return s.primary.EnsureUser(ctx, id, initialBalance)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

// --- Simulations (read-through, invalidated on date changes) ---

func (s *CachedStore) GetSimulation(ctx context.Context, userID string, mode model.Mode) (*model.Simulation, error) {
	data, err := s.rdb.Get(ctx, cacheSimKey(userID, mode)).Bytes()
	if err == nil {
		var sim model.Simulation
		if json.Unmarshal(data, &sim) == nil {
			return &sim, nil
		}
	}

	sim, err := s.primary.GetSimulation(ctx, userID, mode)
	if err != nil || sim == nil {
		return sim, err
	}
	if data, err := json.Marshal(sim); err == nil {
		s.rdb.Set(ctx, cacheSimKey(userID, mode), data, s.ttl)
	}
	return sim, nil
}

func (s *CachedStore) CreateSimulation(ctx context.Context, sim *model.Simulation) (*model.Simulation, error) {
	created, err := s.primary.CreateSimulation(ctx, sim)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, cacheSimKey(sim.UserID, sim.Mode))
	return created, nil
}

func (s *CachedStore) SetSimulationDate(ctx context.Context, sim *model.Simulation, current time.Time) error {
	if err := s.primary.SetSimulationDate(ctx, sim, current); err != nil {
		return err
	}
	s.rdb.Del(ctx, cacheSimKey(sim.UserID, sim.Mode))
	return nil
}

func (s *CachedStore) RewindSimulations(ctx context.Context, userID string) error {
	if err := s.primary.RewindSimulations(ctx, userID); err != nil {
		return err
	}
	s.invalidateSims(ctx, userID)
	return nil
}

func (s *CachedStore) invalidateSims(ctx context.Context, userID string) {
	s.rdb.Del(ctx,
		cacheSimKey(userID, model.ModeHistorical),
		cacheSimKey(userID, model.ModeRealtime),
	)
}

// --- Price history (immutable, cached aggressively) ---

func (s *CachedStore) PriceOn(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	key := priceKey(symbol, model.Day(date))
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p model.PricePoint
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.PriceOn(ctx, symbol, date)
	if err != nil || p == nil {
		// Absence is not cached: a late data load should become
		// visible without waiting for a TTL.
		return p, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) LatestPriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	return s.primary.LatestPriceOnOrBefore(ctx, symbol, date)
}

func (s *CachedStore) EarliestPrice(ctx context.Context, symbol string) (*model.PricePoint, error) {
	data, err := s.rdb.Get(ctx, earliestKey(symbol)).Bytes()
	if err == nil {
		var p model.PricePoint
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.EarliestPrice(ctx, symbol)
	if err != nil || p == nil {
		return p, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, earliestKey(symbol), data, s.ttl)
	}
	return p, nil
}

// priceRange is the cached form of PriceDateRange.
type priceRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

func (s *CachedStore) PriceDateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	data, err := s.rdb.Get(ctx, "prices:range").Bytes()
	if err == nil {
		var r priceRange
		if json.Unmarshal(data, &r) == nil {
			return r.Min, r.Max, true, nil
		}
	}

	min, max, ok, err := s.primary.PriceDateRange(ctx)
	if err != nil || !ok {
		return min, max, ok, err
	}
	if data, err := json.Marshal(priceRange{Min: min, Max: max}); err == nil {
		s.rdb.Set(ctx, "prices:range", data, rangeTTL)
	}
	return min, max, true, nil
}

func (s *CachedStore) PriceSeries(ctx context.Context, symbol string, upTo time.Time, limit int) ([]model.PricePoint, error) {
	return s.primary.PriceSeries(ctx, symbol, upTo, limit)
}

func (s *CachedStore) ListSymbols(ctx context.Context) ([]string, error) {
	data, err := s.rdb.Get(ctx, "prices:symbols").Bytes()
	if err == nil {
		var symbols []string
		if json.Unmarshal(data, &symbols) == nil {
			return symbols, nil
		}
	}

	symbols, err := s.primary.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(symbols); err == nil {
		s.rdb.Set(ctx, "prices:symbols", data, rangeTTL)
	}
	return symbols, nil
}

// --- Positions and transactions ---

func (s *CachedStore) GetPosition(ctx context.Context, userID, simulationID, symbol string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, simulationID, symbol)
}

func (s *CachedStore) ListPositions(ctx context.Context, userID, simulationID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, cachePositionsKey(userID, simulationID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx, userID, simulationID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, cachePositionsKey(userID, simulationID), data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) ListTransactions(ctx context.Context, userID, simulationID string, limit int) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, userID, simulationID, limit)
}

// --- Atomic mutations (write to primary, invalidate cache) ---

func (s *CachedStore) ExecuteOrder(ctx context.Context, txn *model.Transaction) error {
	if err := s.primary.ExecuteOrder(ctx, txn); err != nil {
		return err
	}
	s.rdb.Del(ctx, cachePositionsKey(txn.UserID, txn.SimulationID))
	return nil
}

func (s *CachedStore) ResetAccount(ctx context.Context, userID string, balance decimal.Decimal) error {
	if err := s.primary.ResetAccount(ctx, userID, balance); err != nil {
		return err
	}
	s.invalidateSims(ctx, userID)
	// Position caches are keyed by simulation id; resolve the user's
	// simulations to drop them too.
	for _, mode := range []model.Mode{model.ModeHistorical, model.ModeRealtime} {
		if sim, err := s.primary.GetSimulation(ctx, userID, mode); err == nil && sim != nil {
			s.rdb.Del(ctx, cachePositionsKey(userID, sim.ID))
		}
	}
	return nil
}
