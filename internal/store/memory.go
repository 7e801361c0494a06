package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/ledger"
	"github.com/Aryanxx4/Safefolio/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// The mutex is held across the whole of ExecuteOrder / ResetAccount,
// which gives the same per-user serialization guarantee the Postgres
// store gets from row locks (coarser, but correct).
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	sims      map[string]*model.Simulation // keyed by userID|mode
	positions map[string]*model.Position   // keyed by userID|simID|symbol
	txns      []model.Transaction
	prices    []model.PricePoint

	// FailAfterAppend, when set, aborts ExecuteOrder after the
	// transaction append has been staged. Test seam for verifying that
	// a mid-execution failure leaves no partial state.
	FailAfterAppend error
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		sims:      make(map[string]*model.Simulation),
		positions: make(map[string]*model.Position),
	}
}

// AddPricePoints seeds historical price data. Test/development helper;
// the price table is externally populated in production.
func (s *MemoryStore) AddPricePoints(points ...model.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		p.Date = model.Day(p.Date)
		s.prices = append(s.prices, p)
	}
}

func simKey(userID string, mode model.Mode) string { return userID + "|" + string(mode) }
func posKey(userID, simID, symbol string) string   { return userID + "|" + simID + "|" + symbol }

// --- Users ---

func (s *MemoryStore) EnsureUser(_ context.Context, id string, initialBalance decimal.Decimal) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	now := time.Now().UTC()
	u := &model.User{ID: id, Balance: initialBalance, CreatedAt: now, UpdatedAt: now}
	s.users[id] = u
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *u
	return &copy, nil
}

// --- Simulations ---

func (s *MemoryStore) GetSimulation(_ context.Context, userID string, mode model.Mode) (*model.Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sim, ok := s.sims[simKey(userID, mode)]
	if !ok {
		return nil, nil
	}
	copy := *sim
	return &copy, nil
}

func (s *MemoryStore) CreateSimulation(_ context.Context, sim *model.Simulation) (*model.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := simKey(sim.UserID, sim.Mode)
	if existing, ok := s.sims[key]; ok {
		copy := *existing
		return &copy, nil
	}
	now := time.Now().UTC()
	stored := *sim
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.sims[key] = &stored
	copy := stored
	return &copy, nil
}

func (s *MemoryStore) SetSimulationDate(_ context.Context, sim *model.Simulation, current time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sims[simKey(sim.UserID, sim.Mode)]
	if !ok {
		return errors.New("store: simulation not found")
	}
	stored.CurrentDate = model.Day(current)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RewindSimulations(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rewindLocked(userID)
	return nil
}

func (s *MemoryStore) rewindLocked(userID string) {
	for _, sim := range s.sims {
		if sim.UserID == userID {
			sim.CurrentDate = sim.StartDate
			sim.UpdatedAt = time.Now().UTC()
		}
	}
}

// --- Price history ---

func (s *MemoryStore) PriceOn(_ context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = model.Day(date)
	for i := range s.prices {
		if s.prices[i].Symbol == symbol && s.prices[i].Date.Equal(date) {
			copy := s.prices[i]
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) LatestPriceOnOrBefore(_ context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = model.Day(date)
	var best *model.PricePoint
	for i := range s.prices {
		p := &s.prices[i]
		if p.Symbol != symbol || p.Date.After(date) {
			continue
		}
		if best == nil || p.Date.After(best.Date) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	copy := *best
	return &copy, nil
}

func (s *MemoryStore) EarliestPrice(_ context.Context, symbol string) (*model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.PricePoint
	for i := range s.prices {
		p := &s.prices[i]
		if p.Symbol != symbol {
			continue
		}
		if best == nil || p.Date.Before(best.Date) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	copy := *best
	return &copy, nil
}

func (s *MemoryStore) PriceDateRange(_ context.Context) (time.Time, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.prices) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	min, max := s.prices[0].Date, s.prices[0].Date
	for _, p := range s.prices[1:] {
		if p.Date.Before(min) {
			min = p.Date
		}
		if p.Date.After(max) {
			max = p.Date
		}
	}
	return min, max, true, nil
}

func (s *MemoryStore) PriceSeries(_ context.Context, symbol string, upTo time.Time, limit int) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upTo = model.Day(upTo)
	var points []model.PricePoint
	for _, p := range s.prices {
		if p.Symbol == symbol && !p.Date.After(upTo) {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (s *MemoryStore) ListSymbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, p := range s.prices {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// --- Positions and transactions ---

func (s *MemoryStore) GetPosition(_ context.Context, userID, simulationID, symbol string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey(userID, simulationID, symbol)]
	if !ok {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID, simulationID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := userID + "|" + simulationID + "|"
	var positions []model.Position
	for key, p := range s.positions {
		if strings.HasPrefix(key, prefix) {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID, simulationID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txns []model.Transaction
	for _, t := range s.txns {
		if t.UserID == userID && t.SimulationID == simulationID {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].ExecutedAt.After(txns[j].ExecutedAt) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

// --- Atomic mutations ---

// ExecuteOrder validates then applies the order under a single lock.
// Mutations are staged and committed only after every step succeeds, so
// a failure at any point leaves the store untouched.
func (s *MemoryStore) ExecuteOrder(_ context.Context, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[txn.UserID]
	if !ok {
		return ErrUserNotFound
	}

	key := posKey(txn.UserID, txn.SimulationID, txn.Symbol)
	var held, avg decimal.Decimal
	if p, ok := s.positions[key]; ok {
		held = p.Quantity
		avg = p.AveragePrice
	}

	if txn.Side == model.SideBuy {
		if err := ledger.CheckFunds(u.Balance, txn.Total); err != nil {
			return err
		}
	} else {
		if err := ledger.CheckHoldings(held, txn.Quantity); err != nil {
			return err
		}
	}

	// Stage: transaction append happens first, mirroring the Postgres
	// statement order.
	staged := *txn

	if s.FailAfterAppend != nil {
		return s.FailAfterAppend
	}

	now := time.Now().UTC()
	if txn.Side == model.SideBuy {
		u.Balance = u.Balance.Sub(txn.Total)
		newQty, newAvg := ledger.ApplyBuy(held, avg, txn.Quantity, txn.Price)
		s.positions[key] = &model.Position{
			UserID:       txn.UserID,
			SimulationID: txn.SimulationID,
			Symbol:       txn.Symbol,
			Quantity:     newQty,
			AveragePrice: newAvg,
			UpdatedAt:    now,
		}
	} else {
		u.Balance = u.Balance.Add(txn.Total)
		remaining, closed := ledger.ApplySell(held, txn.Quantity)
		if closed {
			delete(s.positions, key)
		} else {
			p := s.positions[key]
			p.Quantity = remaining
			p.UpdatedAt = now
		}
	}
	u.UpdatedAt = now
	s.txns = append(s.txns, staged)
	return nil
}

func (s *MemoryStore) ResetAccount(_ context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Balance = balance
	u.UpdatedAt = time.Now().UTC()

	for key := range s.positions {
		if strings.HasPrefix(key, userID+"|") {
			delete(s.positions, key)
		}
	}

	kept := s.txns[:0]
	for _, t := range s.txns {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	s.txns = kept

	s.rewindLocked(userID)
	return nil
}
