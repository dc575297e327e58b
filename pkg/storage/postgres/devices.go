package postgres

import (
	"context"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"gorm.io/gorm"
)

type PostgresDeviceStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.Device]
}

func NewDeviceRepository(db *gorm.DB) (storage.DeviceRepo, error) {
	querier := TableQuery[models.Device](db, "devices", "id")

	return &PostgresDeviceStore{
		db:      db,
		querier: querier,
	}, nil
}

func tenantScope(tenantID string) []gormWhere {
	return []gormWhere{
		{query: "tenant_id = ?", args: []interface{}{tenantID}},
	}
}

func (db *PostgresDeviceStore) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	return db.querier.Count(ctx, queryParams, tenantScope(tenantID))
}

func (db *PostgresDeviceStore) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Device), queryParams *resources.QueryParameters) (string, error) {
	return db.querier.SelectAll(ctx, queryParams, tenantScope(tenantID), exhaustiveRun, applyFunc)
}

func (db *PostgresDeviceStore) SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.Device, error) {
	wheres := append(tenantScope(tenantID), gormWhere{query: "id = ?", args: []interface{}{deviceID}})
	return db.querier.SelectExists(ctx, wheres)
}

func (db *PostgresDeviceStore) Insert(ctx context.Context, device *models.Device) (*models.Device, error) {
	return db.querier.Insert(ctx, device)
}

func (db *PostgresDeviceStore) Update(ctx context.Context, device *models.Device) (*models.Device, error) {
	wheres := append(tenantScope(device.TenantID), gormWhere{query: "id = ?", args: []interface{}{device.ID}})
	return db.querier.Update(ctx, device, wheres)
}

func (db *PostgresDeviceStore) Delete(ctx context.Context, tenantID string, deviceID string) error {
	wheres := append(tenantScope(tenantID), gormWhere{query: "id = ?", args: []interface{}{deviceID}})
	return db.querier.Delete(ctx, wheres)
}
