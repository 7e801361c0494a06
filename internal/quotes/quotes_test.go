package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

// newQuoteServer returns a test server answering /quote with per-symbol
// canned responses. Symbols without an entry get an empty quote.
func newQuoteServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			http.NotFound(w, r)
			return
		}
		symbol := r.URL.Query().Get("symbol")
		body, ok := responses[symbol]
		if !ok {
			body = `{"c":0,"h":0,"l":0,"o":0,"pc":0,"t":0}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func TestQuote_FirstVariantWins(t *testing.T) {
	srv := newQuoteServer(t, map[string]string{
		"TCS.NS": `{"c":3500.5,"h":3550,"l":3480,"o":3500,"pc":3490,"t":1700000000}`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	q, err := c.Quote(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "TCS" {
		t.Errorf("quote should carry the bare symbol, got %q", q.Symbol)
	}
	if !q.Current.Equal(decimal.NewFromFloat(3500.5)) {
		t.Errorf("expected price 3500.5, got %s", q.Current)
	}
}

func TestQuote_FallsThroughToLaterVariant(t *testing.T) {
	// .NS yields no price, .BO does.
	srv := newQuoteServer(t, map[string]string{
		"RELIANCE.BO": `{"c":2400,"h":2410,"l":2380,"o":2390,"pc":2395,"t":1700000000}`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	q, err := c.Quote(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Current.Equal(decimal.NewFromInt(2400)) {
		t.Errorf("expected price 2400, got %s", q.Current)
	}
}

func TestQuote_BareSymbolLastResort(t *testing.T) {
	srv := newQuoteServer(t, map[string]string{
		"AAPL": `{"c":190.1,"h":191,"l":189,"o":190,"pc":189.5,"t":1700000000}`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	q, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Current.Equal(decimal.NewFromFloat(190.1)) {
		t.Errorf("expected price 190.1, got %s", q.Current)
	}
}

func TestQuote_ExhaustionReportsNoLiveQuote(t *testing.T) {
	srv := newQuoteServer(t, nil)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	_, err := c.Quote(context.Background(), "NOPE")
	if !errors.Is(err, ErrNoLiveQuote) {
		t.Fatalf("expected ErrNoLiveQuote, got %v", err)
	}
}

func TestQuote_VariantErrorsAbsorbed(t *testing.T) {
	// Server errors on the first variants; the bare symbol still wins.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol != "INFY" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"c":18.2,"h":18.5,"l":18,"o":18.1,"pc":18,"t":1700000000}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	q, err := c.Quote(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("variant failures should be absorbed, got %v", err)
	}
	if !q.Current.Equal(decimal.NewFromFloat(18.2)) {
		t.Errorf("expected price 18.2, got %s", q.Current)
	}
}

func TestQuote_CancelledContextStops(t *testing.T) {
	srv := newQuoteServer(t, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "test-key")
	_, err := c.Quote(ctx, "TCS")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
