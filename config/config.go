// Package config holds crawl and store configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds crawler and database configuration.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Parallelism     int
	RequestRate     float64 // requests per second, 0 disables pacing
	UserAgent       string
	MetricsAddr     string
	Verbose         bool

	PGHost     string
	PGPort     string
	PGUser     string
	PGPassword string
	PGDatabase string
	OLAPDB     string
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://books.toscrape.com/",
		Timeout:         10 * time.Second,
		MaxAttempts:     5,
		RetryBackoff:    time.Second,
		RetryBackoffMax: 30 * time.Second,
		Parallelism:     1,
		RequestRate:     0,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:     "",
		Verbose:         false,
		PGHost:          "localhost",
		PGPort:          "5432",
		PGUser:          "postgres",
		PGPassword:      "",
		PGDatabase:      "books",
		OLAPDB:          "books_olap",
	}
}

// Load builds a Config from defaults overridden by a .env file (if present)
// and process environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if value, ok := EnvString("BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := EnvString("PG_HOST"); ok {
		cfg.PGHost = value
	}
	if value, ok := EnvString("PG_PORT"); ok {
		cfg.PGPort = value
	}
	if value, ok := EnvString("PG_USER"); ok {
		cfg.PGUser = value
	}
	if value, ok := EnvString("PG_PASS"); ok {
		cfg.PGPassword = value
	}
	if value, ok := EnvString("PG_DB"); ok {
		cfg.PGDatabase = value
	}
	if value, ok := EnvString("PG_DB_OLAP"); ok {
		cfg.OLAPDB = value
	}
	if value, ok, err := EnvInt("SCRAPER_PARALLEL"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return cfg, nil
}

// EnvString reads a non-empty environment variable.
func EnvString(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.RequestRate < 0 {
		return fmt.Errorf("request rate cannot be negative")
	}
	if c.PGHost == "" || c.PGPort == "" || c.PGUser == "" || c.PGDatabase == "" {
		return fmt.Errorf("incomplete transactional store connection settings")
	}
	if c.OLAPDB == "" {
		return fmt.Errorf("warehouse database name cannot be empty")
	}
	return nil
}

// TransactionalDSN is the connection string of the normalized store.
func (c *Config) TransactionalDSN() string {
	return c.dsn(c.PGDatabase)
}

// WarehouseDSN is the connection string of the analytical store.
func (c *Config) WarehouseDSN() string {
	return c.dsn(c.OLAPDB)
}

func (c *Config) dsn(database string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.PGHost, c.PGPort, c.PGUser, c.PGPassword, database)
}
