package postgres

import (
	"context"
	"fmt"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"gorm.io/gorm"
)

type PostgresEventStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.DeviceEvent]
}

func NewEventRepository(db *gorm.DB) (storage.EventRepo, error) {
	querier := TableQuery[models.DeviceEvent](db, "device_events", "id")

	return &PostgresEventStore{
		db:      db,
		querier: querier,
	}, nil
}

func (db *PostgresEventStore) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	return db.querier.Count(ctx, queryParams, tenantScope(tenantID))
}

func (db *PostgresEventStore) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error) {
	return db.querier.SelectAll(ctx, queryParams, tenantScope(tenantID), exhaustiveRun, applyFunc)
}

// SelectByIntegrationID pages events carrying a delivery status for the given
// integration. Filtering happens in the query so pagination stays dense.
func (db *PostgresEventStore) SelectByIntegrationID(ctx context.Context, tenantID string, integrationID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error) {
	wheres := append(tenantScope(tenantID), gormWhere{
		query: "delivery_statuses @> ?",
		args:  []interface{}{fmt.Sprintf(`[{"integration_id":%q}]`, integrationID)},
	})
	return db.querier.SelectAll(ctx, queryParams, wheres, exhaustiveRun, applyFunc)
}

func (db *PostgresEventStore) SelectExists(ctx context.Context, tenantID string, eventID string) (bool, *models.DeviceEvent, error) {
	wheres := append(tenantScope(tenantID), gormWhere{query: "id = ?", args: []interface{}{eventID}})
	return db.querier.SelectExists(ctx, wheres)
}

func (db *PostgresEventStore) Insert(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error) {
	return db.querier.Insert(ctx, event)
}

func (db *PostgresEventStore) Update(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error) {
	wheres := append(tenantScope(event.TenantID), gormWhere{query: "id = ?", args: []interface{}{event.ID}})
	return db.querier.Update(ctx, event, wheres)
}
