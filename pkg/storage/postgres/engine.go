package postgres

import (
	"context"
	"fmt"

	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PostgresStorageEngine struct {
	logger *logrus.Entry
	db     *gorm.DB
}

func NewStorageEngine(logger *logrus.Entry, conf config.PluggableStorageEngine) (*PostgresStorageEngine, error) {
	if conf.Provider != "postgres" {
		return nil, fmt.Errorf("unsupported storage provider: %s", conf.Provider)
	}

	psqlCfg, err := config.DecodeStruct[config.PostgresPSEConfig](conf.Config)
	if err != nil {
		return nil, fmt.Errorf("could not decode postgres config: %w", err)
	}

	db, err := CreatePostgresDBConnection(logger, psqlCfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to postgres: %w", err)
	}

	migrator, err := NewMigrator(logger, db)
	if err != nil {
		return nil, err
	}

	if err := migrator.MigrateToLatest(context.Background()); err != nil {
		return nil, err
	}

	return &PostgresStorageEngine{
		logger: logger,
		db:     db,
	}, nil
}

func (s *PostgresStorageEngine) GetDeviceStorage() (storage.DeviceRepo, error) {
	return NewDeviceRepository(s.db)
}

func (s *PostgresStorageEngine) GetIntegrationStorage() (storage.IntegrationRepo, error) {
	return NewIntegrationRepository(s.db)
}

func (s *PostgresStorageEngine) GetEventStorage() (storage.EventRepo, error) {
	return NewEventRepository(s.db)
}

func (s *PostgresStorageEngine) GetIndexStorage() (storage.IndexRepo, error) {
	return NewIndexRepository(s.db)
}
