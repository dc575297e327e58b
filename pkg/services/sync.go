package services

import (
	"context"
	"fmt"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/builder"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"github.com/sirupsen/logrus"
)

const DefaultSyncBatchSize = 500

type SyncService interface {
	SyncDevices(ctx context.Context, input SyncDevicesInput) (*SyncReport, error)
}

type SyncDevicesInput struct {
	// TenantID restricts the run to one tenant. Empty means all tenants with
	// at least one integration.
	TenantID  string
	BatchSize int
	FailEarly bool
}

type SyncReport struct {
	Tenants     int `json:"tenants"`
	Devices     int `json:"devices"`
	Provisioned int `json:"provisioned"`
	Updated     int `json:"updated"`
	Deleted     int `json:"deleted"`
	Consistent  int `json:"consistent"`
	Failures    int `json:"failures"`
}

// ProviderBuilder resolves the directory client for one integration.
type ProviderBuilder func(ctx context.Context, integration *models.Integration, logger *logrus.Entry) (providers.DirectoryProvider, error)

type SyncServiceBackend struct {
	logger              *logrus.Entry
	devicesStorage      storage.DeviceRepo
	integrationsStorage storage.IntegrationRepo
	providerBuilder     ProviderBuilder
	service             SyncService
}

type SyncBuilder struct {
	Logger              *logrus.Entry
	DevicesStorage      storage.DeviceRepo
	IntegrationsStorage storage.IntegrationRepo
	ProviderBuilder     ProviderBuilder
}

func NewSyncService(syncBuilder SyncBuilder) SyncService {
	if syncBuilder.ProviderBuilder == nil {
		syncBuilder.ProviderBuilder = builder.BuildDirectoryProvider
	}

	svc := &SyncServiceBackend{
		logger:              syncBuilder.Logger,
		devicesStorage:      syncBuilder.DevicesStorage,
		integrationsStorage: syncBuilder.IntegrationsStorage,
		providerBuilder:     syncBuilder.ProviderBuilder,
	}

	svc.service = svc
	return svc
}

func (svc *SyncServiceBackend) SetService(service SyncService) {
	svc.service = service
}

// tenantSyncState caches the integrations and directory clients of one tenant
// for the duration of a run. Clients are built once per integration and carry
// that integration's credentials only.
type tenantSyncState struct {
	integrations map[string]*models.Integration
	clients      map[string]providers.DirectoryProvider
}

func (svc *SyncServiceBackend) loadTenantState(ctx context.Context, tenantID string) (*tenantSyncState, error) {
	state := &tenantSyncState{
		integrations: map[string]*models.Integration{},
		clients:      map[string]providers.DirectoryProvider{},
	}

	_, err := svc.integrationsStorage.SelectAll(ctx, tenantID, true, func(integration models.Integration) {
		i := integration
		state.integrations[integration.ID] = &i
	}, nil)
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (state *tenantSyncState) client(ctx context.Context, integrationID string, build ProviderBuilder, logger *logrus.Entry) (providers.DirectoryProvider, error) {
	if client, ok := state.clients[integrationID]; ok {
		return client, nil
	}

	integration, ok := state.integrations[integrationID]
	if !ok {
		return nil, errs.ErrIntegrationNotFound
	}
	if integration.Provider == models.IntegrationProviderWebhook {
		return nil, errs.ErrUnknownProvider
	}

	client, err := build(ctx, integration, logger)
	if err != nil {
		return nil, err
	}

	state.clients[integrationID] = client
	return client, nil
}

func desiredStatus(device *models.Device) providers.DeviceStatus {
	if device.Status == models.DeviceStatusAccepted {
		return providers.StatusEnabled
	}
	return providers.StatusDisabled
}

func (svc *SyncServiceBackend) SyncDevices(ctx context.Context, input SyncDevicesInput) (*SyncReport, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	if input.BatchSize <= 0 {
		input.BatchSize = DefaultSyncBatchSize
	}

	var tenants []string
	if input.TenantID != "" {
		tenants = []string{input.TenantID}
	} else {
		var err error
		tenants, err = svc.integrationsStorage.SelectTenants(ctx)
		if err != nil {
			lFunc.Errorf("could not list tenants: %s", err)
			return nil, err
		}
	}

	report := &SyncReport{}
	for _, tenantID := range tenants {
		report.Tenants++
		tenantCtx := helpers.ContextWithTenant(ctx, tenantID)

		err := svc.syncTenant(tenantCtx, tenantID, input, report)
		if err != nil {
			return report, err
		}
	}

	lFunc.Infof("synchronized %d devices across %d tenants: %d provisioned, %d updated, %d deleted, %d consistent, %d failures",
		report.Devices, report.Tenants, report.Provisioned, report.Updated, report.Deleted, report.Consistent, report.Failures)
	return report, nil
}

func (svc *SyncServiceBackend) syncTenant(ctx context.Context, tenantID string, input SyncDevicesInput, report *SyncReport) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	state, err := svc.loadTenantState(ctx, tenantID)
	if err != nil {
		lFunc.Errorf("could not load integrations of tenant '%s': %s", tenantID, err)
		return err
	}

	bookmark := ""
	for {
		batch := make([]models.Device, 0, input.BatchSize)
		queryParams := &resources.QueryParameters{
			PageSize:     input.BatchSize,
			NextBookmark: bookmark,
		}

		bookmark, err = svc.devicesStorage.SelectAll(ctx, tenantID, false, func(device models.Device) {
			batch = append(batch, device)
		}, queryParams)
		if err != nil {
			lFunc.Errorf("could not page devices of tenant '%s': %s", tenantID, err)
			return err
		}

		if err := svc.syncBatch(ctx, state, batch, input, report); err != nil {
			return err
		}

		if bookmark == "" {
			break
		}
	}

	return nil
}

// syncBatch prefetches remote state per integration where the directory
// supports bulk reads, then reconciles each device. A device error counts as a
// failure and the batch continues unless the run is fail-early.
func (svc *SyncServiceBackend) syncBatch(ctx context.Context, state *tenantSyncState, batch []models.Device, input SyncDevicesInput, report *SyncReport) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	prefetched := map[string]map[string]*providers.DirectoryDevice{}
	byIntegration := map[string][]string{}
	for i := range batch {
		for _, integrationID := range batch[i].IntegrationIDs {
			byIntegration[integrationID] = append(byIntegration[integrationID], batch[i].ID)
		}
	}

	for integrationID, deviceIDs := range byIntegration {
		client, err := state.client(ctx, integrationID, svc.providerBuilder, svc.logger)
		if err != nil {
			continue
		}
		batchReader, ok := client.(providers.BatchReader)
		if !ok {
			continue
		}

		remote, err := batchReader.GetDevices(ctx, deviceIDs)
		if err != nil {
			lFunc.Warnf("bulk read against integration '%s' failed, falling back to per-device reads: %s", integrationID, err)
			continue
		}
		prefetched[integrationID] = remote
	}

	for i := range batch {
		device := &batch[i]
		report.Devices++

		err := svc.syncDevice(ctx, state, device, prefetched, report)
		if err != nil {
			report.Failures++
			lFunc.Errorf("could not synchronize device '%s': %s", device.ID, err)
			if input.FailEarly {
				return fmt.Errorf("aborting run after device '%s': %w", device.ID, err)
			}
		}
	}

	return nil
}

func (svc *SyncServiceBackend) syncDevice(ctx context.Context, state *tenantSyncState, device *models.Device, prefetched map[string]map[string]*providers.DirectoryDevice, report *SyncReport) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	tornDown := true
	for _, integrationID := range device.IntegrationIDs {
		client, err := state.client(ctx, integrationID, svc.providerBuilder, svc.logger)
		if err == errs.ErrIntegrationNotFound || err == errs.ErrUnknownProvider {
			// stale binding or webhook, nothing to reconcile against
			continue
		} else if err != nil {
			tornDown = false
			return err
		}

		if device.Decommissioned() {
			err = client.DeleteDevice(ctx, device.ID)
			if err != nil {
				tornDown = false
				return err
			}
			continue
		}

		want := desiredStatus(device)

		var remote *providers.DirectoryDevice
		if batch, ok := prefetched[integrationID]; ok {
			remote = batch[device.ID]
		} else {
			remote, err = client.GetDevice(ctx, device.ID)
			if err == errs.ErrDeviceNotFound {
				remote = nil
			} else if err != nil {
				return err
			}
		}

		switch {
		case remote == nil && want == providers.StatusEnabled:
			lFunc.Debugf("provisioning device '%s' on integration '%s'", device.ID, integrationID)
			_, err = client.UpsertDevice(ctx, device.ID, providers.DirectoryDeviceUpdate{Status: want})
			if err != nil {
				return err
			}
			report.Provisioned++
		case remote == nil:
			// not accepted and not present remotely, nothing to do
			report.Consistent++
		case remote.Consistent(want):
			report.Consistent++
		default:
			lFunc.Debugf("updating device '%s' on integration '%s' to status '%s'", device.ID, integrationID, want)
			_, err = client.UpsertDevice(ctx, device.ID, providers.DirectoryDeviceUpdate{Status: want})
			if err != nil {
				return err
			}
			report.Updated++
		}
	}

	// A tombstoned device is purged once every directory confirmed teardown.
	if device.Decommissioned() && tornDown {
		err := svc.devicesStorage.Delete(ctx, device.TenantID, device.ID)
		if err != nil {
			return err
		}
		report.Deleted++
	}

	return nil
}
