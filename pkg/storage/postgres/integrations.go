package postgres

import (
	"context"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"gorm.io/gorm"
)

type PostgresIntegrationStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.Integration]
}

func NewIntegrationRepository(db *gorm.DB) (storage.IntegrationRepo, error) {
	querier := TableQuery[models.Integration](db, "integrations", "id")

	return &PostgresIntegrationStore{
		db:      db,
		querier: querier,
	}, nil
}

func (db *PostgresIntegrationStore) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	return db.querier.Count(ctx, queryParams, tenantScope(tenantID))
}

func (db *PostgresIntegrationStore) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Integration), queryParams *resources.QueryParameters) (string, error) {
	return db.querier.SelectAll(ctx, queryParams, tenantScope(tenantID), exhaustiveRun, applyFunc)
}

func (db *PostgresIntegrationStore) SelectExists(ctx context.Context, tenantID string, integrationID string) (bool, *models.Integration, error) {
	wheres := append(tenantScope(tenantID), gormWhere{query: "id = ?", args: []interface{}{integrationID}})
	return db.querier.SelectExists(ctx, wheres)
}

func (db *PostgresIntegrationStore) SelectTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	tx := db.db.Table("integrations").WithContext(ctx).Distinct("tenant_id").Pluck("tenant_id", &tenants)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tenants, nil
}

func (db *PostgresIntegrationStore) Insert(ctx context.Context, integration *models.Integration) (*models.Integration, error) {
	return db.querier.Insert(ctx, integration)
}

func (db *PostgresIntegrationStore) Update(ctx context.Context, integration *models.Integration) (*models.Integration, error) {
	wheres := append(tenantScope(integration.TenantID), gormWhere{query: "id = ?", args: []interface{}{integration.ID}})
	return db.querier.Update(ctx, integration, wheres)
}

func (db *PostgresIntegrationStore) Delete(ctx context.Context, tenantID string, integrationID string) error {
	wheres := append(tenantScope(tenantID), gormWhere{query: "id = ?", args: []interface{}{integrationID}})
	return db.querier.Delete(ctx, wheres)
}
