package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/infrastructure/database"
	"github.com/eslsoft/factdrill/internal/repository"
)

// Store bundles the repositories backed by one database connection.
type Store struct {
	Attempts repository.AttemptRepository
	Mastery  repository.MasteryRepository
}

// NewStore opens the configured database and returns its repositories.
// SQLite files are migrated on open; postgres expects db-init to have run.
func NewStore(cfg *config.Config, logger logrus.FieldLogger) (*Store, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, err
	}
	retries := WithUpsertRetries(cfg.Database.UpsertRetries)

	switch driver {
	case config.DriverPostgres:
		pool, cleanup, err := database.NewConnection(cfg, logger)
		if err != nil {
			if cleanup != nil {
				cleanup()
			}
			return nil, nil, err
		}
		logger.WithField("driver", driver).Debug("database connected")
		return &Store{
			Attempts: NewPostgresAttemptRepository(pool),
			Mastery:  NewPostgresMasteryRepository(pool, retries),
		}, cleanup, nil
	case config.DriverSQLite:
		db, cleanup, err := database.NewSQLite(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(context.Background(), db); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.WithFields(logrus.Fields{"driver": driver, "path": cfg.Database.Path}).Debug("database opened")
		return &Store{
			Attempts: NewSQLiteAttemptRepository(db),
			Mastery:  NewSQLiteMasteryRepository(db, retries),
		}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %s", driver)
	}
}
