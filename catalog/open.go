package catalog

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open wraps an already-open store connection in gorm. driver is "sqlite"
// or "postgres". The schema belongs to the store; no AutoMigrate runs here.
func Open(driver string, db *sql.DB, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "sqlite3":
		dialector = &sqlite.Dialector{Conn: db}
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: db})
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return gdb, nil
}
