// Package ledger implements position cost accounting for the paper
// trading engine: volume-weighted average cost on buys, quantity
// reduction on sells, and the pre-trade funds/holdings checks.
//
// All functions are pure and stateless — callers pass current values in
// and persist the results inside their own transaction. All values use
// shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when a buy's total cost
	// exceeds the user's cash balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientShares is returned when a sell asks for more
	// shares than the position holds.
	ErrInsufficientShares = errors.New("ledger: insufficient shares to sell")
)

// PriceScale is the number of decimal places average prices are rounded
// to after blending.
const PriceScale int32 = 8

// CheckFunds verifies a buy of the given total cost is covered by the
// balance. The committed balance can never go negative because this
// runs inside the same transaction that debits it.
func CheckFunds(balance, totalCost decimal.Decimal) error {
	if balance.LessThan(totalCost) {
		return ErrInsufficientBalance
	}
	return nil
}

// CheckHoldings verifies a sell of qty shares is covered by the held
// quantity.
func CheckHoldings(held, qty decimal.Decimal) error {
	if held.LessThan(qty) {
		return ErrInsufficientShares
	}
	return nil
}

// Blend returns the volume-weighted average price after buying qty
// shares at price on top of an existing lot of oldQty shares at oldAvg:
//
//	(oldQty*oldAvg + qty*price) / (oldQty + qty)
//
// Standard average-cost accounting for stacking buy lots.
func Blend(oldQty, oldAvg, qty, price decimal.Decimal) decimal.Decimal {
	newQty := oldQty.Add(qty)
	if newQty.IsZero() {
		return price
	}
	total := oldQty.Mul(oldAvg).Add(qty.Mul(price))
	return total.Div(newQty).Round(PriceScale)
}

// ApplyBuy returns the position quantity and average price after a buy.
// A zero oldQty models a freshly opened position.
func ApplyBuy(oldQty, oldAvg, qty, price decimal.Decimal) (newQty, newAvg decimal.Decimal) {
	if oldQty.IsZero() {
		return qty, price
	}
	return oldQty.Add(qty), Blend(oldQty, oldAvg, qty, price)
}

// ApplySell returns the remaining quantity after selling qty shares and
// whether the position is closed. The average price is intentionally
// left unchanged on sells: realized P&L is implicit in the cash delta.
// Remaining ≤ 0 closes the position, absorbing any decimal residue.
func ApplySell(held, qty decimal.Decimal) (remaining decimal.Decimal, closed bool) {
	remaining = held.Sub(qty)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, true
	}
	return remaining, false
}
