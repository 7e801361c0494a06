package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/ledger"
	"github.com/Aryanxx4/Safefolio/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision. Per-user mutations are serialized with a row lock on the
// user, so concurrent orders for the same user cannot interleave their
// read-modify-write while different users never block each other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema applies the embedded schema. Idempotent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// --- Users ---

func (s *PostgresStore) EnsureUser(ctx context.Context, id string, initialBalance decimal.Decimal) (*model.User, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (id) DO NOTHING`,
		id, initialBalance.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", id, err)
	}
	return s.GetUser(ctx, id)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(email, ''), COALESCE(name, ''), balance::TEXT, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u.Balance, _ = decimal.NewFromString(balance)
	return &u, nil
}

// --- Simulations ---

const simulationFields = `id, user_id, mode, "current_date", start_date, end_date, created_at, updated_at`

func scanSimulation(row pgx.Row) (*model.Simulation, error) {
	var sim model.Simulation
	err := row.Scan(&sim.ID, &sim.UserID, &sim.Mode,
		&sim.CurrentDate, &sim.StartDate, &sim.EndDate,
		&sim.CreatedAt, &sim.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sim, nil
}

func (s *PostgresStore) GetSimulation(ctx context.Context, userID string, mode model.Mode) (*model.Simulation, error) {
	sim, err := scanSimulation(s.pool.QueryRow(ctx,
		`SELECT `+simulationFields+` FROM simulations WHERE user_id = $1 AND mode = $2`,
		userID, string(mode)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get simulation %s/%s: %w", userID, mode, err)
	}
	return sim, nil
}

func (s *PostgresStore) CreateSimulation(ctx context.Context, sim *model.Simulation) (*model.Simulation, error) {
	// Insert-if-absent: two concurrent first requests converge on the
	// row that won the unique (user_id, mode) constraint.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO simulations (id, user_id, mode, "current_date", start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, mode) DO NOTHING`,
		sim.ID, sim.UserID, string(sim.Mode),
		sim.CurrentDate, sim.StartDate, sim.EndDate,
	)
	if err != nil {
		return nil, fmt.Errorf("create simulation %s/%s: %w", sim.UserID, sim.Mode, err)
	}
	return s.GetSimulation(ctx, sim.UserID, sim.Mode)
}

func (s *PostgresStore) SetSimulationDate(ctx context.Context, sim *model.Simulation, current time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE simulations SET "current_date" = $2, updated_at = NOW() WHERE id = $1`,
		sim.ID, current,
	)
	return err
}

func (s *PostgresStore) RewindSimulations(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE simulations SET "current_date" = start_date, updated_at = NOW() WHERE user_id = $1`,
		userID,
	)
	return err
}

// --- Price history ---

const priceFields = `stock_symbol, price_date,
	COALESCE(open, 0)::TEXT, COALESCE(high, 0)::TEXT, COALESCE(low, 0)::TEXT,
	close::TEXT, COALESCE(volume, 0)`

func scanPricePoint(row pgx.Row) (*model.PricePoint, error) {
	var p model.PricePoint
	var open, high, low, closeS string
	err := row.Scan(&p.Symbol, &p.Date, &open, &high, &low, &closeS, &p.Volume)
	if err != nil {
		return nil, err
	}
	p.Open, _ = decimal.NewFromString(open)
	p.High, _ = decimal.NewFromString(high)
	p.Low, _ = decimal.NewFromString(low)
	p.Close, _ = decimal.NewFromString(closeS)
	return &p, nil
}

func (s *PostgresStore) PriceOn(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	p, err := scanPricePoint(s.pool.QueryRow(ctx,
		`SELECT `+priceFields+` FROM equity_prices
		 WHERE stock_symbol = $1 AND price_date = $2 LIMIT 1`,
		symbol, model.Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("price on %s %s: %w", symbol, date.Format("2006-01-02"), err)
	}
	return p, nil
}

func (s *PostgresStore) LatestPriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*model.PricePoint, error) {
	p, err := scanPricePoint(s.pool.QueryRow(ctx,
		`SELECT `+priceFields+` FROM equity_prices
		 WHERE stock_symbol = $1 AND price_date <= $2
		 ORDER BY price_date DESC LIMIT 1`,
		symbol, model.Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest price before %s %s: %w", symbol, date.Format("2006-01-02"), err)
	}
	return p, nil
}

func (s *PostgresStore) EarliestPrice(ctx context.Context, symbol string) (*model.PricePoint, error) {
	p, err := scanPricePoint(s.pool.QueryRow(ctx,
		`SELECT `+priceFields+` FROM equity_prices
		 WHERE stock_symbol = $1
		 ORDER BY price_date ASC LIMIT 1`,
		symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("earliest price %s: %w", symbol, err)
	}
	return p, nil
}

func (s *PostgresStore) PriceDateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var minDate, maxDate *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(price_date), MAX(price_date) FROM equity_prices`).
		Scan(&minDate, &maxDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("price date range: %w", err)
	}
	if minDate == nil || maxDate == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return *minDate, *maxDate, true, nil
}

func (s *PostgresStore) PriceSeries(ctx context.Context, symbol string, upTo time.Time, limit int) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+priceFields+` FROM equity_prices
		 WHERE stock_symbol = $1 AND price_date <= $2
		 ORDER BY price_date ASC LIMIT $3`,
		symbol, model.Day(upTo), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, *p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT stock_symbol FROM equity_prices ORDER BY stock_symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// --- Positions and transactions ---

func (s *PostgresStore) GetPosition(ctx context.Context, userID, simulationID, symbol string) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT user_id, simulation_id, symbol, quantity::TEXT, average_price::TEXT, updated_at
		 FROM positions
		 WHERE user_id = $1 AND simulation_id = $2 AND symbol = $3`,
		userID, simulationID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", userID, symbol, err)
	}
	return p, nil
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var qty, avg string
	err := row.Scan(&p.UserID, &p.SimulationID, &p.Symbol, &qty, &avg, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Quantity, _ = decimal.NewFromString(qty)
	p.AveragePrice, _ = decimal.NewFromString(avg)
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID, simulationID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, simulation_id, symbol, quantity::TEXT, average_price::TEXT, updated_at
		 FROM positions
		 WHERE user_id = $1 AND simulation_id = $2
		 ORDER BY symbol ASC`,
		userID, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID, simulationID string, limit int) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, simulation_id, symbol, side, quantity::TEXT, price::TEXT, total::TEXT, executed_at
		 FROM transactions
		 WHERE user_id = $1 AND simulation_id = $2
		 ORDER BY executed_at DESC LIMIT $3`,
		userID, simulationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var qty, price, total string
		if err := rows.Scan(&t.ID, &t.UserID, &t.SimulationID, &t.Symbol, &t.Side,
			&qty, &price, &total, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qty)
		t.Price, _ = decimal.NewFromString(price)
		t.Total, _ = decimal.NewFromString(total)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Atomic mutations ---

func (s *PostgresStore) ExecuteOrder(ctx context.Context, txn *model.Transaction) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user row for the duration of the order. This serializes
	// all mutating operations per user while leaving other users free.
	var balanceS string
	err = tx.QueryRow(ctx,
		`SELECT balance::TEXT FROM users WHERE id = $1 FOR UPDATE`, txn.UserID).
		Scan(&balanceS)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user %s: %w", txn.UserID, err)
	}
	balance, _ := decimal.NewFromString(balanceS)

	// Current holding, locked alongside the user row.
	var held, avg decimal.Decimal
	var hasPosition bool
	var heldS, avgS string
	err = tx.QueryRow(ctx,
		`SELECT quantity::TEXT, average_price::TEXT FROM positions
		 WHERE user_id = $1 AND simulation_id = $2 AND symbol = $3 FOR UPDATE`,
		txn.UserID, txn.SimulationID, txn.Symbol).
		Scan(&heldS, &avgS)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// no position yet
	case err != nil:
		return fmt.Errorf("lock position %s/%s: %w", txn.UserID, txn.Symbol, err)
	default:
		hasPosition = true
		held, _ = decimal.NewFromString(heldS)
		avg, _ = decimal.NewFromString(avgS)
	}

	// Business checks run inside the locked transaction so two
	// concurrent buys cannot both pass against a stale balance.
	if txn.Side == model.SideBuy {
		if err := ledger.CheckFunds(balance, txn.Total); err != nil {
			return err
		}
	} else {
		if err := ledger.CheckHoldings(held, txn.Quantity); err != nil {
			return err
		}
	}

	// Append the immutable transaction record.
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, simulation_id, symbol, side, quantity, price, total, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		txn.ID, txn.UserID, txn.SimulationID, txn.Symbol, string(txn.Side),
		txn.Quantity.String(), txn.Price.String(), txn.Total.String(), txn.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if txn.Side == model.SideBuy {
		_, err = tx.Exec(ctx,
			`UPDATE users SET balance = balance - $2::NUMERIC, updated_at = NOW() WHERE id = $1`,
			txn.UserID, txn.Total.String())
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		newQty, newAvg := ledger.ApplyBuy(held, avg, txn.Quantity, txn.Price)
		if hasPosition {
			_, err = tx.Exec(ctx,
				`UPDATE positions SET quantity = $4::NUMERIC, average_price = $5::NUMERIC, updated_at = NOW()
				 WHERE user_id = $1 AND simulation_id = $2 AND symbol = $3`,
				txn.UserID, txn.SimulationID, txn.Symbol, newQty.String(), newAvg.String())
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO positions (user_id, simulation_id, symbol, quantity, average_price)
				 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC)`,
				txn.UserID, txn.SimulationID, txn.Symbol, newQty.String(), newAvg.String())
		}
		if err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE users SET balance = balance + $2::NUMERIC, updated_at = NOW() WHERE id = $1`,
			txn.UserID, txn.Total.String())
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		remaining, closed := ledger.ApplySell(held, txn.Quantity)
		if closed {
			_, err = tx.Exec(ctx,
				`DELETE FROM positions WHERE user_id = $1 AND simulation_id = $2 AND symbol = $3`,
				txn.UserID, txn.SimulationID, txn.Symbol)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE positions SET quantity = $4::NUMERIC, updated_at = NOW()
				 WHERE user_id = $1 AND simulation_id = $2 AND symbol = $3`,
				txn.UserID, txn.SimulationID, txn.Symbol, remaining.String())
		}
		if err != nil {
			return fmt.Errorf("reduce position: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ResetAccount(ctx context.Context, userID string, balance decimal.Decimal) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Same per-user lock as order execution, so a reset cannot
	// interleave with an in-flight order.
	var dummy string
	err = tx.QueryRow(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET balance = $2::NUMERIC, updated_at = NOW() WHERE id = $1`,
		userID, balance.String()); err != nil {
		return fmt.Errorf("reset balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM positions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM transactions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE simulations SET "current_date" = start_date, updated_at = NOW() WHERE user_id = $1`,
		userID); err != nil {
		return fmt.Errorf("rewind simulations: %w", err)
	}

	return tx.Commit(ctx)
}
