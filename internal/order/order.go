// Package order handles parsing and validation of incoming order
// requests. All string-to-enum coercion and bounds checking happens
// here, ahead of execution — the executor only ever sees a well-formed
// Command.
package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

// ErrInvalid is the root of all order validation failures. Specific
// causes wrap it, so callers can match with errors.Is.
var ErrInvalid = errors.New("order: invalid order")

// Command is a fully validated order request.
type Command struct {
	UserID   string
	Symbol   string
	Side     model.Side
	Quantity decimal.Decimal
	Mode     model.Mode
}

// Parse validates raw request fields and builds a Command.
// Symbols are upper-cased; mode defaults to historical when empty.
func Parse(userID, symbol, side, mode string, quantity decimal.Decimal) (*Command, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalid)
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalid)
	}

	s, err := ParseSide(side)
	if err != nil {
		return nil, err
	}

	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalid, quantity)
	}

	return &Command{
		UserID:   userID,
		Symbol:   symbol,
		Side:     s,
		Quantity: quantity,
		Mode:     m,
	}, nil
}

// ParseSide coerces a raw side string to the closed Side enumeration.
func ParseSide(raw string) (model.Side, error) {
	switch model.Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case model.SideBuy:
		return model.SideBuy, nil
	case model.SideSell:
		return model.SideSell, nil
	}
	return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalid, raw)
}

// ParseMode coerces a raw mode string to the closed Mode enumeration.
// An empty mode selects historical, matching the frontend default.
func ParseMode(raw string) (model.Mode, error) {
	switch model.Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case model.ModeHistorical, "":
		return model.ModeHistorical, nil
	case model.ModeRealtime:
		return model.ModeRealtime, nil
	}
	return "", fmt.Errorf("%w: mode must be historical or realtime, got %q", ErrInvalid, raw)
}
