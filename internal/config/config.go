// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"os"

	"github.com/shopspring/decimal"
)

// Config holds every runtime setting. DATABASE_URL and REDIS_URL are
// optional: without a database the service runs on the in-memory store,
// without Redis it skips the cache layer.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	QuoteAPIURL    string
	QuoteAPIKey    string
	JWTSecret      string
	InitialBalance decimal.Decimal
}

// Load reads configuration from environment variables, applying
// defaults where a value is optional.
func Load() (Config, error) {
	c := Config{
		Port:        os.Getenv("PORT"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		QuoteAPIURL: os.Getenv("QUOTE_API_URL"),
		QuoteAPIKey: os.Getenv("QUOTE_API_KEY"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
	}

	if c.Port == "" {
		c.Port = "8080"
	}
	if c.QuoteAPIURL == "" {
		c.QuoteAPIURL = "https://finnhub.io/api/v1"
	}

	balance := os.Getenv("INITIAL_BALANCE")
	if balance == "" {
		balance = "100000"
	}
	b, err := decimal.NewFromString(balance)
	if err != nil || b.IsNegative() {
		return c, errors.New("config: INITIAL_BALANCE must be a non-negative decimal")
	}
	c.InitialBalance = b

	return c, nil
}
