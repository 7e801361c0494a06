package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestParse_Valid(t *testing.T) {
	cmd, err := Parse("user1", "tcs", "buy", "historical", d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Symbol != "TCS" {
		t.Errorf("symbol should be upper-cased, got %q", cmd.Symbol)
	}
	if cmd.Side != model.SideBuy {
		t.Errorf("expected BUY, got %s", cmd.Side)
	}
	if cmd.Mode != model.ModeHistorical {
		t.Errorf("expected historical, got %s", cmd.Mode)
	}
}

func TestParse_EmptyModeDefaultsHistorical(t *testing.T) {
	cmd, err := Parse("user1", "INFY", "SELL", "", d(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Mode != model.ModeHistorical {
		t.Errorf("expected historical default, got %s", cmd.Mode)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name                       string
		userID, symbol, side, mode string
		qty                        decimal.Decimal
	}{
		{"missing user", "", "TCS", "BUY", "historical", d(1)},
		{"empty symbol", "user1", "  ", "BUY", "historical", d(1)},
		{"bad side", "user1", "TCS", "HOLD", "historical", d(1)},
		{"bad mode", "user1", "TCS", "BUY", "simulated", d(1)},
		{"zero quantity", "user1", "TCS", "BUY", "historical", d(0)},
		{"negative quantity", "user1", "TCS", "BUY", "historical", d(-5)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.userID, tc.symbol, tc.side, tc.mode, tc.qty)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestParseSide_CaseInsensitive(t *testing.T) {
	s, err := ParseSide(" sell ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != model.SideSell {
		t.Errorf("expected SELL, got %s", s)
	}
}

func TestParseMode_Realtime(t *testing.T) {
	m, err := ParseMode("REALTIME")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != model.ModeRealtime {
		t.Errorf("expected realtime, got %s", m)
	}
}
