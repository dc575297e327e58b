package postgres

import (
	"context"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresIndexStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.IndexedDevice]
}

func NewIndexRepository(db *gorm.DB) (storage.IndexRepo, error) {
	querier := TableQuery[models.IndexedDevice](db, "indexed_devices", "device_id")

	return &PostgresIndexStore{
		db:      db,
		querier: querier,
	}, nil
}

func (db *PostgresIndexStore) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.IndexedDevice), queryParams *resources.QueryParameters) (string, error) {
	return db.querier.SelectAll(ctx, queryParams, tenantScope(tenantID), exhaustiveRun, applyFunc)
}

func (db *PostgresIndexStore) SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.IndexedDevice, error) {
	wheres := append(tenantScope(tenantID), gormWhere{query: "device_id = ?", args: []interface{}{deviceID}})
	return db.querier.SelectExists(ctx, wheres)
}

func (db *PostgresIndexStore) Upsert(ctx context.Context, doc *models.IndexedDevice) (*models.IndexedDevice, error) {
	tx := db.db.Table("indexed_devices").WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "device_id"}},
		UpdateAll: true,
	}).Create(doc)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return doc, nil
}

func (db *PostgresIndexStore) Delete(ctx context.Context, tenantID string, deviceID string) error {
	wheres := append(tenantScope(tenantID), gormWhere{query: "device_id = ?", args: []interface{}{deviceID}})
	err := db.querier.Delete(ctx, wheres)
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	return err
}
