// Package trading provides the HTTP handlers and business logic for
// order execution, simulation clock control, and portfolio queries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trading

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/auth"
	"github.com/Aryanxx4/Safefolio/internal/ledger"
	"github.com/Aryanxx4/Safefolio/internal/metrics"
	"github.com/Aryanxx4/Safefolio/internal/model"
	"github.com/Aryanxx4/Safefolio/internal/order"
	"github.com/Aryanxx4/Safefolio/internal/prices"
	"github.com/Aryanxx4/Safefolio/internal/quotes"
	"github.com/Aryanxx4/Safefolio/internal/simclock"
	"github.com/Aryanxx4/Safefolio/internal/store"
)

// QuoteSource supplies live quotes for realtime-mode orders.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

// seriesLimit caps historical series responses.
const seriesLimit = 1000

// recentTransactions is how many transactions the portfolio summary
// surfaces.
const recentTransactions = 10

// Service handles order execution and portfolio queries. Per-user
// serialization of mutating operations is enforced by the store (row
// locks in Postgres, a mutex in memory), so concurrent requests for
// different users never block each other here.
type Service struct {
	store          store.Store
	resolver       *prices.Resolver
	quotes         QuoteSource
	clock          *simclock.Clock
	initialBalance decimal.Decimal
	hub            *WSHub // optional; nil disables broadcasts
}

// NewService creates a trading service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, qs QuoteSource, initialBalance decimal.Decimal, hub *WSHub) *Service {
	return &Service{
		store:          st,
		resolver:       prices.NewResolver(st),
		quotes:         qs,
		clock:          simclock.New(st),
		initialBalance: initialBalance,
		hub:            hub,
	}
}

// Register mounts all trading and portfolio routes on r.
func (s *Service) Register(r chi.Router) {
	r.Route("/api/trading", func(r chi.Router) {
		r.Post("/order", s.PlaceOrder)
		r.Post("/advance", s.AdvanceSimulation)
		r.Get("/simulation", s.GetSimulation)
		r.Get("/historical/{symbol}", s.GetHistoricalSeries)
		r.Get("/symbols", s.ListSymbols)
		r.Get("/price/{symbol}", s.GetPrice)
		r.Get("/realtime/{symbol}", s.GetRealtimeQuote)
	})
	r.Route("/api/portfolio", func(r chi.Router) {
		r.Get("/summary", s.GetPortfolioSummary)
		r.Post("/reset", s.ResetAccount)
	})
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /api/trading/order.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Mode     string          `json:"mode"`
}

// ExecutedOrder is the order echo returned after execution.
type ExecutedOrder struct {
	Symbol     string          `json:"symbol"`
	Side       model.Side      `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalCost  decimal.Decimal `json:"totalCost"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// OrderResponse is the JSON body returned from POST /api/trading/order.
type OrderResponse struct {
	Success bool          `json:"success"`
	Order   ExecutedOrder `json:"order"`
}

// AdvanceRequest is the JSON body for POST /api/trading/advance.
type AdvanceRequest struct {
	Days int `json:"days"`
}

// SimulationView is the date-only projection of a simulation.
type SimulationView struct {
	Mode        model.Mode `json:"mode"`
	CurrentDate string     `json:"currentDate"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
}

// PositionView is a position with its cost-basis market value.
type PositionView struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	MarketValue  decimal.Decimal `json:"marketValue"`
}

// AllocationSlice is one entry of the allocation breakdown.
type AllocationSlice struct {
	Symbol string          `json:"symbol"`
	Value  decimal.Decimal `json:"value"`
}

// EquityPoint is one point of the summary equity curve.
type EquityPoint struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// PortfolioSummary aggregates cash, positions, and recent transactions.
// Market values are cost-basis, not mark-to-market.
type PortfolioSummary struct {
	User         *model.User         `json:"user"`
	Totals       PortfolioTotals     `json:"totals"`
	Positions    []PositionView      `json:"positions"`
	Allocation   []AllocationSlice   `json:"allocation"`
	Transactions []model.Transaction `json:"transactions"`
	EquityCurve  []EquityPoint       `json:"equityCurve"`
}

// PortfolioTotals is the cash/invested/total breakdown.
type PortfolioTotals struct {
	Cash       decimal.Decimal `json:"cash"`
	Invested   decimal.Decimal `json:"invested"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// --- HTTP Handlers ---

// PlaceOrder handles POST /api/trading/order.
// Validates, resolves the price for the simulation's mode, and applies
// the order atomically. No partial state survives a failure.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cmd, err := order.Parse(auth.UserID(ctx), req.Symbol, req.Side, req.Mode, req.Quantity)
	if err != nil {
		metrics.OrderRejections.WithLabelValues("invalid_order").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.EnsureUser(ctx, cmd.UserID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sim, err := s.clock.GetOrCreate(ctx, cmd.UserID, cmd.Mode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	price, err := s.resolveOrderPrice(ctx, cmd, sim)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	txn := &model.Transaction{
		ID:           uuid.New().String(),
		UserID:       cmd.UserID,
		SimulationID: sim.ID,
		Symbol:       cmd.Symbol,
		Side:         cmd.Side,
		Quantity:     cmd.Quantity,
		Price:        price,
		Total:        price.Mul(cmd.Quantity),
		ExecutedAt:   time.Now().UTC(),
	}

	if err := s.store.ExecuteOrder(ctx, txn); err != nil {
		s.writeDomainError(w, err)
		return
	}

	metrics.OrdersTotal.WithLabelValues(string(cmd.Side), string(cmd.Mode)).Inc()
	metrics.OrderLatency.WithLabelValues(string(cmd.Side)).Observe(time.Since(start).Seconds())

	slog.Info("order executed",
		"txn_id", txn.ID,
		"user", cmd.UserID,
		"symbol", cmd.Symbol,
		"side", cmd.Side,
		"qty", cmd.Quantity.String(),
		"price", price.String(),
		"total", txn.Total.String(),
		"mode", cmd.Mode,
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:     "order_executed",
			Symbol:   cmd.Symbol,
			Side:     string(cmd.Side),
			Quantity: cmd.Quantity.String(),
			Price:    price.String(),
		})
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		Success: true,
		Order: ExecutedOrder{
			Symbol:     txn.Symbol,
			Side:       txn.Side,
			Quantity:   txn.Quantity,
			Price:      txn.Price,
			TotalCost:  txn.Total,
			ExecutedAt: txn.ExecutedAt,
		},
	})
}

// resolveOrderPrice picks the execution price: the simulation-date
// close for historical mode, the live quote for realtime mode.
func (s *Service) resolveOrderPrice(ctx context.Context, cmd *order.Command, sim *model.Simulation) (decimal.Decimal, error) {
	if cmd.Mode == model.ModeRealtime {
		q, err := s.quotes.Quote(ctx, cmd.Symbol)
		if err != nil {
			return decimal.Zero, err
		}
		return q.Current, nil
	}

	point, tier, err := s.resolver.Resolve(ctx, cmd.Symbol, sim.CurrentDate)
	if err != nil {
		return decimal.Zero, err
	}
	metrics.PriceFallbacks.WithLabelValues(string(tier)).Inc()
	return point.Close, nil
}

// AdvanceSimulation handles POST /api/trading/advance.
// Moves the historical clock forward, clamped to the end date.
func (s *Service) AdvanceSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sim, err := s.clock.Advance(ctx, auth.UserID(ctx), req.Days)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	metrics.SimulationAdvances.Inc()
	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:        "simulation_advanced",
			CurrentDate: ymd(sim.CurrentDate),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"simulation": simView(sim),
	})
}

// GetSimulation handles GET /api/trading/simulation?mode=.
// Creates the simulation lazily on first access.
func (s *Service) GetSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	mode, err := order.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.EnsureUser(ctx, userID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sim, err := s.clock.GetOrCreate(ctx, userID, mode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"simulation": simView(sim)})
}

// GetHistoricalSeries handles GET /api/trading/historical/{symbol}.
// Returns the price series up to the simulation's current date,
// ascending, capped at seriesLimit points.
func (s *Service) GetHistoricalSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	symbol := chi.URLParam(r, "symbol")

	if _, err := s.store.EnsureUser(ctx, userID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sim, err := s.clock.GetOrCreate(ctx, userID, model.ModeHistorical)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	points, err := s.store.PriceSeries(ctx, symbol, sim.CurrentDate, seriesLimit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      symbol,
		"currentDate": ymd(sim.CurrentDate),
		"prices":      points,
	})
}

// ListSymbols handles GET /api/trading/symbols.
func (s *Service) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.store.ListSymbols(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

// GetPrice handles GET /api/trading/price/{symbol}?mode=.
// Returns the display price at the simulation's current date, or the
// live quote in realtime mode.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	symbol := chi.URLParam(r, "symbol")

	mode, err := order.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if mode == model.ModeRealtime {
		q, err := s.quotes.Quote(ctx, symbol)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"price": q.Current,
			"date":  ymd(time.Now()),
		})
		return
	}

	if _, err := s.store.EnsureUser(ctx, userID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sim, err := s.clock.GetOrCreate(ctx, userID, model.ModeHistorical)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	point, tier, err := s.resolver.Resolve(ctx, symbol, sim.CurrentDate)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.PriceFallbacks.WithLabelValues(string(tier)).Inc()

	resp := map[string]any{
		"price": point.Close,
		"date":  ymd(point.Date),
	}
	if tier == prices.TierEarliest {
		resp["note"] = "Earliest available date. Current simulation date: " + ymd(sim.CurrentDate)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRealtimeQuote handles GET /api/trading/realtime/{symbol}.
func (s *Service) GetRealtimeQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	q, err := s.quotes.Quote(r.Context(), symbol)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	change := q.Current.Sub(q.PreviousClose)
	changePercent := decimal.Zero
	if !q.PreviousClose.IsZero() {
		changePercent = change.Div(q.PreviousClose).Mul(decimal.NewFromInt(100)).Round(4)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":        q.Symbol,
		"price":         q.Current,
		"open":          q.Open,
		"high":          q.High,
		"low":           q.Low,
		"previousClose": q.PreviousClose,
		"change":        change,
		"changePercent": changePercent,
		"timestamp":     q.Timestamp,
	})
}

// GetPortfolioSummary handles GET /api/portfolio/summary.
// Cost-basis valuation throughout; allocation lists cash first.
func (s *Service) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	user, err := s.store.EnsureUser(ctx, userID, s.initialBalance)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	sim, err := s.clock.GetOrCreate(ctx, userID, model.ModeHistorical)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	positions, err := s.store.ListPositions(ctx, userID, sim.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	txns, err := s.store.ListTransactions(ctx, userID, sim.ID, recentTransactions)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}

	views := make([]PositionView, 0, len(positions))
	invested := decimal.Zero
	allocation := []AllocationSlice{{Symbol: "Cash", Value: user.Balance}}

	for _, p := range positions {
		marketValue := p.Quantity.Mul(p.AveragePrice)
		invested = invested.Add(marketValue)
		views = append(views, PositionView{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			MarketValue:  marketValue,
		})
		allocation = append(allocation, AllocationSlice{Symbol: p.Symbol, Value: marketValue})
	}

	totalValue := user.Balance.Add(invested)

	writeJSON(w, http.StatusOK, PortfolioSummary{
		User: user,
		Totals: PortfolioTotals{
			Cash:       user.Balance,
			Invested:   invested,
			TotalValue: totalValue,
		},
		Positions:    views,
		Allocation:   allocation,
		Transactions: txns,
		EquityCurve: []EquityPoint{
			{Label: "Start", Value: s.initialBalance},
			{Label: "Now", Value: totalValue},
		},
	})
}

// ResetAccount handles POST /api/portfolio/reset.
// Restores the initial grant, wipes positions and transactions, and
// rewinds every simulation clock — atomically, and idempotently.
func (s *Service) ResetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	if _, err := s.store.EnsureUser(ctx, userID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.store.ResetAccount(ctx, userID, s.initialBalance); err != nil {
		s.writeDomainError(w, err)
		return
	}

	slog.Info("account reset", "user", userID, "balance", s.initialBalance.String())

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account reset. Balance restored to " + s.initialBalance.String() + ".",
	})
}

// --- Helpers ---

func simView(sim *model.Simulation) SimulationView {
	return SimulationView{
		Mode:        sim.Mode,
		CurrentDate: ymd(sim.CurrentDate),
		StartDate:   ymd(sim.StartDate),
		EndDate:     ymd(sim.EndDate),
	}
}

func ymd(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// writeDomainError maps domain errors to HTTP status codes. Business
// rejections and validation failures are 4xx; anything unrecognized is
// an infrastructure failure and reports 500.
func (s *Service) writeDomainError(w http.ResponseWriter, err error) {
	var noData *prices.NoPriceDataError

	switch {
	case errors.Is(err, order.ErrInvalid), errors.Is(err, simclock.ErrInvalidDays):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		metrics.OrderRejections.WithLabelValues("insufficient_balance").Inc()
		writeError(w, "insufficient balance", http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientShares):
		metrics.OrderRejections.WithLabelValues("insufficient_shares").Inc()
		writeError(w, "insufficient shares to sell", http.StatusBadRequest)
	case errors.As(err, &noData):
		metrics.OrderRejections.WithLabelValues("no_price_data").Inc()
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quotes.ErrNoLiveQuote):
		metrics.OrderRejections.WithLabelValues("no_live_quote").Inc()
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, simclock.ErrSimulationNotFound):
		writeError(w, "simulation not found", http.StatusNotFound)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
