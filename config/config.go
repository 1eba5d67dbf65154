// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port             string
	Driver           string
	DatabaseDSN      string
	LogLevel         string
	LowStockInterval time.Duration
	CORSOrigins      []string
	ShutdownTimeout  time.Duration
	Location         *time.Location
}

// Load reads configuration from the environment, after merging a .env file
// when one exists. Explicit environment variables win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Driver:      strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseDSN: getEnv("DATABASE_DSN", "sales.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.LowStockInterval, err = seconds("LOW_STOCK_INTERVAL", 300); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = seconds("SHUTDOWN_TIMEOUT", 10); err != nil {
		return Config{}, err
	}
	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "Local")); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that flags may have overridden after Load.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.Driver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.LowStockInterval < 0 {
		return fmt.Errorf("LOW_STOCK_INTERVAL must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func seconds(key string, def int) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * time.Second, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
