package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
)

func pageKeys(keys []string, exhaustive bool, queryParams *resources.QueryParameters) ([]string, string) {
	sort.Strings(keys)

	if exhaustive || queryParams == nil || queryParams.PageSize <= 0 {
		return keys, ""
	}

	offset := 0
	if queryParams.NextBookmark != "" {
		offset, _ = strconv.Atoi(queryParams.NextBookmark)
	}
	if offset >= len(keys) {
		return nil, ""
	}

	end := offset + queryParams.PageSize
	if end >= len(keys) {
		return keys[offset:], ""
	}
	return keys[offset:end], strconv.Itoa(end)
}

type inMemDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]map[string]models.Device
}

func newInMemDeviceRepo() *inMemDeviceRepo {
	return &inMemDeviceRepo{devices: map[string]map[string]models.Device{}}
}

func (r *inMemDeviceRepo) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices[tenantID]), nil
}

func (r *inMemDeviceRepo) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Device), queryParams *resources.QueryParameters) (string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.devices[tenantID]))
	for id := range r.devices[tenantID] {
		keys = append(keys, id)
	}
	page, bookmark := pageKeys(keys, exhaustiveRun, queryParams)
	selected := make([]models.Device, 0, len(page))
	for _, id := range page {
		selected = append(selected, r.devices[tenantID][id])
	}
	r.mu.Unlock()

	for _, device := range selected {
		applyFunc(device)
	}
	return bookmark, nil
}

func (r *inMemDeviceRepo) SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[tenantID][deviceID]
	if !ok {
		return false, nil, nil
	}
	return true, &device, nil
}

func (r *inMemDeviceRepo) Insert(ctx context.Context, device *models.Device) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.devices[device.TenantID] == nil {
		r.devices[device.TenantID] = map[string]models.Device{}
	}
	r.devices[device.TenantID][device.ID] = *device
	return device, nil
}

func (r *inMemDeviceRepo) Update(ctx context.Context, device *models.Device) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[device.TenantID][device.ID]; !ok {
		return nil, fmt.Errorf("record not found")
	}
	r.devices[device.TenantID][device.ID] = *device
	return device, nil
}

func (r *inMemDeviceRepo) Delete(ctx context.Context, tenantID string, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[tenantID][deviceID]; !ok {
		return fmt.Errorf("record not found")
	}
	delete(r.devices[tenantID], deviceID)
	return nil
}

type inMemIntegrationRepo struct {
	mu           sync.Mutex
	integrations map[string]map[string]models.Integration
}

func newInMemIntegrationRepo() *inMemIntegrationRepo {
	return &inMemIntegrationRepo{integrations: map[string]map[string]models.Integration{}}
}

func (r *inMemIntegrationRepo) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.integrations[tenantID]), nil
}

func (r *inMemIntegrationRepo) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.Integration), queryParams *resources.QueryParameters) (string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.integrations[tenantID]))
	for id := range r.integrations[tenantID] {
		keys = append(keys, id)
	}
	page, bookmark := pageKeys(keys, exhaustiveRun, queryParams)
	selected := make([]models.Integration, 0, len(page))
	for _, id := range page {
		selected = append(selected, r.integrations[tenantID][id])
	}
	r.mu.Unlock()

	for _, integration := range selected {
		applyFunc(integration)
	}
	return bookmark, nil
}

func (r *inMemIntegrationRepo) SelectExists(ctx context.Context, tenantID string, integrationID string) (bool, *models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integration, ok := r.integrations[tenantID][integrationID]
	if !ok {
		return false, nil, nil
	}
	return true, &integration, nil
}

func (r *inMemIntegrationRepo) SelectTenants(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenants := make([]string, 0, len(r.integrations))
	for tenantID := range r.integrations {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (r *inMemIntegrationRepo) Insert(ctx context.Context, integration *models.Integration) (*models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.integrations[integration.TenantID] == nil {
		r.integrations[integration.TenantID] = map[string]models.Integration{}
	}
	r.integrations[integration.TenantID][integration.ID] = *integration
	return integration, nil
}

func (r *inMemIntegrationRepo) Update(ctx context.Context, integration *models.Integration) (*models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[integration.TenantID][integration.ID]; !ok {
		return nil, fmt.Errorf("record not found")
	}
	r.integrations[integration.TenantID][integration.ID] = *integration
	return integration, nil
}

func (r *inMemIntegrationRepo) Delete(ctx context.Context, tenantID string, integrationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[tenantID][integrationID]; !ok {
		return fmt.Errorf("record not found")
	}
	delete(r.integrations[tenantID], integrationID)
	return nil
}

type inMemEventRepo struct {
	mu     sync.Mutex
	events map[string]map[string]models.DeviceEvent
}

func newInMemEventRepo() *inMemEventRepo {
	return &inMemEventRepo{events: map[string]map[string]models.DeviceEvent{}}
}

func (r *inMemEventRepo) Count(ctx context.Context, tenantID string, queryParams *resources.QueryParameters) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[tenantID]), nil
}

func (r *inMemEventRepo) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.events[tenantID]))
	for id := range r.events[tenantID] {
		keys = append(keys, id)
	}
	page, bookmark := pageKeys(keys, exhaustiveRun, queryParams)
	selected := make([]models.DeviceEvent, 0, len(page))
	for _, id := range page {
		selected = append(selected, r.events[tenantID][id])
	}
	r.mu.Unlock()

	for _, event := range selected {
		applyFunc(event)
	}
	return bookmark, nil
}

func (r *inMemEventRepo) SelectByIntegrationID(ctx context.Context, tenantID string, integrationID string, exhaustiveRun bool, applyFunc func(models.DeviceEvent), queryParams *resources.QueryParameters) (string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.events[tenantID]))
	for id, event := range r.events[tenantID] {
		for _, status := range event.DeliveryStatuses {
			if status.IntegrationID == integrationID {
				keys = append(keys, id)
				break
			}
		}
	}
	page, bookmark := pageKeys(keys, exhaustiveRun, queryParams)
	selected := make([]models.DeviceEvent, 0, len(page))
	for _, id := range page {
		selected = append(selected, r.events[tenantID][id])
	}
	r.mu.Unlock()

	for _, event := range selected {
		applyFunc(event)
	}
	return bookmark, nil
}

func (r *inMemEventRepo) SelectExists(ctx context.Context, tenantID string, eventID string) (bool, *models.DeviceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[tenantID][eventID]
	if !ok {
		return false, nil, nil
	}
	return true, &event, nil
}

func (r *inMemEventRepo) Insert(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events[event.TenantID] == nil {
		r.events[event.TenantID] = map[string]models.DeviceEvent{}
	}
	r.events[event.TenantID][event.ID] = *event
	return event, nil
}

func (r *inMemEventRepo) Update(ctx context.Context, event *models.DeviceEvent) (*models.DeviceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.TenantID][event.ID]; !ok {
		return nil, fmt.Errorf("record not found")
	}
	r.events[event.TenantID][event.ID] = *event
	return event, nil
}

type inMemIndexRepo struct {
	mu   sync.Mutex
	docs map[string]map[string]models.IndexedDevice
}

func newInMemIndexRepo() *inMemIndexRepo {
	return &inMemIndexRepo{docs: map[string]map[string]models.IndexedDevice{}}
}

func (r *inMemIndexRepo) SelectAll(ctx context.Context, tenantID string, exhaustiveRun bool, applyFunc func(models.IndexedDevice), queryParams *resources.QueryParameters) (string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.docs[tenantID]))
	for id := range r.docs[tenantID] {
		keys = append(keys, id)
	}
	page, bookmark := pageKeys(keys, exhaustiveRun, queryParams)
	selected := make([]models.IndexedDevice, 0, len(page))
	for _, id := range page {
		selected = append(selected, r.docs[tenantID][id])
	}
	r.mu.Unlock()

	for _, doc := range selected {
		applyFunc(doc)
	}
	return bookmark, nil
}

func (r *inMemIndexRepo) SelectExists(ctx context.Context, tenantID string, deviceID string) (bool, *models.IndexedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[tenantID][deviceID]
	if !ok {
		return false, nil, nil
	}
	return true, &doc, nil
}

func (r *inMemIndexRepo) Upsert(ctx context.Context, doc *models.IndexedDevice) (*models.IndexedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs[doc.TenantID] == nil {
		r.docs[doc.TenantID] = map[string]models.IndexedDevice{}
	}
	r.docs[doc.TenantID][doc.DeviceID] = *doc
	return doc, nil
}

func (r *inMemIndexRepo) Delete(ctx context.Context, tenantID string, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs[tenantID], deviceID)
	return nil
}
