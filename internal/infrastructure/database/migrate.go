package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		operation TEXT NOT NULL,
		operand_a INTEGER NOT NULL,
		operand_b INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		attempted_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_fact ON attempts (user_id, operation, operand_a, operand_b)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_time ON attempts (user_id, attempted_at)`,
	`CREATE TABLE IF NOT EXISTS mastery_records (
		user_id INTEGER NOT NULL,
		operation TEXT NOT NULL,
		operand_a INTEGER NOT NULL,
		operand_b INTEGER NOT NULL,
		interval_days INTEGER NOT NULL,
		repetitions INTEGER NOT NULL,
		next_review_on TEXT NOT NULL,
		last_reviewed_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (user_id, operation, operand_a, operand_b)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mastery_due ON mastery_records (user_id, next_review_on)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS attempts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		operation TEXT NOT NULL,
		operand_a INTEGER NOT NULL,
		operand_b INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		attempted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_fact ON attempts (user_id, operation, operand_a, operand_b)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_time ON attempts (user_id, attempted_at)`,
	`CREATE TABLE IF NOT EXISTS mastery_records (
		user_id BIGINT NOT NULL,
		operation TEXT NOT NULL,
		operand_a INTEGER NOT NULL,
		operand_b INTEGER NOT NULL,
		interval_days INTEGER NOT NULL,
		repetitions INTEGER NOT NULL,
		next_review_on DATE NOT NULL,
		last_reviewed_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL,
		PRIMARY KEY (user_id, operation, operand_a, operand_b)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mastery_due ON mastery_records (user_id, next_review_on)`,
}

// Migrate creates the attempts and mastery tables for db's dialect. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var statements []string
	switch db.DriverName() {
	case config.DriverSQLite:
		statements = sqliteSchema
	case config.DriverPostgres:
		statements = postgresSchema
	default:
		return fmt.Errorf("no schema for driver %s", db.DriverName())
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// RunMigrations connects with the configured driver and applies Migrate.
func RunMigrations(ctx context.Context, cfg *config.Config) error {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return err
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return err
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return fmt.Errorf("connect %s: %w", driver, err)
	}
	defer db.Close()
	return Migrate(ctx, db)
}
