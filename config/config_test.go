package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciv/sales-engine/config"
)

var keys = []string{
	"PORT", "DB_DRIVER", "DATABASE_DSN", "LOG_LEVEL",
	"LOW_STOCK_INTERVAL", "CORS_ORIGINS", "SHUTDOWN_TIMEOUT", "TIMEZONE",
}

// clearEnv blanks every key for the duration of the test. Empty values
// count as unset.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Driver)
	assert.Equal(t, "sales.db", cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Minute, cfg.LowStockInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.NotNil(t, cfg.Location)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/sales?sslmode=disable")
	t.Setenv("LOW_STOCK_INTERVAL", "0")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, config.DriverPostgres, cfg.Driver)
	assert.Zero(t, cfg.LowStockInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"driver", "DB_DRIVER", "mysql"},
		{"interval", "LOW_STOCK_INTERVAL", "soon"},
		{"negative interval", "LOW_STOCK_INTERVAL", "-5"},
		{"shutdown", "SHUTDOWN_TIMEOUT", "10s"},
		{"timezone", "TIMEZONE", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := config.Load()

			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: a .env file setting a key absent from the environment
	// THEN: the file value is used
	const key = "SALES_ENGINE_TEST_ONLY"
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\n"+key+"=1\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(key)
		os.Unsetenv("LOG_LEVEL")
	})
	os.Unsetenv("LOG_LEVEL")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "1", os.Getenv(key))
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Error(t, err)
}
