package storage

import (
	"context"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
)

// All repositories are tenant-partitioned. The empty tenant id is the
// single-tenant deployment scope.

type DeviceRepo interface {
	Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error)
	SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Device), queryParams *resources.QueryParameters) (string, error)
	SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.Device, error)
	Insert(ctx context.Context, device *models.Device) (*models.Device, error)
	Update(ctx context.Context, device *models.Device) (*models.Device, error)
	Delete(ctx context.Context, tenantID string, deviceID string) error
}

type IntegrationRepo interface {
	Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error)
	SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Integration), queryParams *resources.QueryParameters) (string, error)
	SelectExists(ctx context.Context, tenantID string, integrationID string) (bool, *models.Integration, error)
	SelectTenants(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, integration *models.Integration) (*models.Integration, error)
	Update(ctx context.Context, integration *models.Integration) (*models.Integration, error)
	Delete(ctx context.Context, tenantID string, integrationID string) error
}

type EventRepo interface {
	Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error)
	SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error)
	SelectByIntegrationID(ctx context.Context, tenantID string, integrationID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error)
	SelectExists(ctx context.Context, tenantID string, eventID string) (bool, *models.DeviceEvent, error)
	Insert(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error)
	Update(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error)
}

type IndexRepo interface {
	SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.IndexedDevice), queryParams *resources.QueryParameters) (string, error)
	SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.IndexedDevice, error)
	Upsert(ctx context.Context, doc *models.IndexedDevice) (*models.IndexedDevice, error)
	Delete(ctx context.Context, tenantID string, deviceID string) error
}
