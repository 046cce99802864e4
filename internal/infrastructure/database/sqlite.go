package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
)

// NewSQLite opens the configured SQLite file through sqlx.
func NewSQLite(cfg *config.Config) (*sqlx.DB, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, err
	}
	if driver != config.DriverSQLite {
		return nil, nil, fmt.Errorf("sqlite connection requested for driver %s", driver)
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, err
	}
	return OpenSQLite(dsn)
}

// OpenSQLite opens dsn with a single writer connection and foreign keys on.
func OpenSQLite(dsn string) (*sqlx.DB, func(), error) {
	db, err := sqlx.Open(config.DriverSQLite, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	cleanup := func() { _ = db.Close() }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, cleanup, nil
}
