package services

import (
	"context"
	"sync"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DeviceIdentityService interface {
	CreateDevice(ctx context.Context, input CreateDeviceInput) (*models.Device, error)
	GetDeviceByID(ctx context.Context, input GetDeviceByIDInput) (*models.Device, error)
	GetDevices(ctx context.Context, input GetDevicesInput) (string, error)
	UpdateAuthSetStatus(ctx context.Context, input UpdateAuthSetStatusInput) (*models.Device, error)
	DecommissionDevice(ctx context.Context, input DecommissionDeviceInput) (*models.Device, error)
	DeleteDevice(ctx context.Context, input DeleteDeviceInput) error
	BindIntegration(ctx context.Context, input BindIntegrationInput) (*models.Device, error)
	UnbindIntegration(ctx context.Context, input UnbindIntegrationInput) (*models.Device, error)
}

type CreateDeviceInput struct {
	TenantID     string
	ID           string
	IdentityData map[string]interface{} `validate:"required"`
	PublicKey    string                 `validate:"required"`
	Preauthorize bool
}

type GetDeviceByIDInput struct {
	TenantID string
	ID       string `validate:"required"`
}

type GetDevicesInput struct {
	TenantID string
	resources.ListInput[models.Device]
}

type UpdateAuthSetStatusInput struct {
	TenantID  string
	DeviceID  string               `validate:"required"`
	AuthSetID string               `validate:"required"`
	NewStatus models.AuthSetStatus `validate:"required"`
}

type DecommissionDeviceInput struct {
	TenantID string
	ID       string `validate:"required"`
}

type DeleteDeviceInput struct {
	TenantID string
	ID       string `validate:"required"`
}

type BindIntegrationInput struct {
	TenantID      string
	DeviceID      string `validate:"required"`
	IntegrationID string `validate:"required"`
}

type UnbindIntegrationInput struct {
	TenantID      string
	DeviceID      string `validate:"required"`
	IntegrationID string `validate:"required"`
}

type IdentityMiddleware func(DeviceIdentityService) DeviceIdentityService

var identityValidate = validator.New()

type DeviceIdentityServiceBackend struct {
	logger         *logrus.Entry
	devicesStorage storage.DeviceRepo
	deviceLocks    sync.Map
	service        DeviceIdentityService
}

type DeviceIdentityBuilder struct {
	Logger         *logrus.Entry
	DevicesStorage storage.DeviceRepo
}

func NewDeviceIdentityService(builder DeviceIdentityBuilder) DeviceIdentityService {
	svc := &DeviceIdentityServiceBackend{
		logger:         builder.Logger,
		devicesStorage: builder.DevicesStorage,
	}

	svc.service = svc
	return svc
}

func (svc *DeviceIdentityServiceBackend) SetService(service DeviceIdentityService) {
	svc.service = service
}

// lockDevice serializes mutations for one device. Racing status updates must
// never leave two auth sets accepted.
func (svc *DeviceIdentityServiceBackend) lockDevice(tenantID, deviceID string) func() {
	key := tenantID + "/" + deviceID
	muAny, _ := svc.deviceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (svc *DeviceIdentityServiceBackend) CreateDevice(ctx context.Context, input CreateDeviceInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	exists, _, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not check if device '%s' exists: %s", input.ID, err)
		return nil, err
	}
	if exists {
		lFunc.Errorf("device '%s' already exists", input.ID)
		return nil, errs.ErrDeviceAlreadyExists
	}

	authSetStatus := models.AuthSetStatusPending
	if input.Preauthorize {
		authSetStatus = models.AuthSetStatusPreauthorized
	}

	now := time.Now()
	device := &models.Device{
		ID:       input.ID,
		TenantID: input.TenantID,
		AuthSets: []models.AuthSet{
			{
				ID:           uuid.NewString(),
				DeviceID:     input.ID,
				IdentityData: input.IdentityData,
				PublicKey:    input.PublicKey,
				Status:       authSetStatus,
				CreatedAt:    now,
			},
		},
		IntegrationIDs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	device.Status = device.DeriveStatus()

	lFunc.Debugf("creating device '%s' with status '%s'", device.ID, device.Status)
	return svc.devicesStorage.Insert(ctx, device)
}

func (svc *DeviceIdentityServiceBackend) GetDeviceByID(ctx context.Context, input GetDeviceByIDInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	exists, device, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not read device '%s': %s", input.ID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrDeviceNotFound
	}

	return device, nil
}

func (svc *DeviceIdentityServiceBackend) GetDevices(ctx context.Context, input GetDevicesInput) (string, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	lFunc.Debugf("reading devices for tenant '%s'", input.TenantID)

	return svc.devicesStorage.SelectAll(ctx, input.TenantID, input.ExhaustiveRun, input.ApplyFunc, input.QueryParameters)
}

func (svc *DeviceIdentityServiceBackend) UpdateAuthSetStatus(ctx context.Context, input UpdateAuthSetStatusInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	switch input.NewStatus {
	case models.AuthSetStatusPending, models.AuthSetStatusAccepted, models.AuthSetStatusRejected, models.AuthSetStatusPreauthorized:
	default:
		lFunc.Errorf("'%s' is not a valid auth set status", input.NewStatus)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.lockDevice(input.TenantID, input.DeviceID)
	defer unlock()

	exists, device, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.DeviceID)
	if err != nil {
		lFunc.Errorf("could not read device '%s': %s", input.DeviceID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrDeviceNotFound
	}

	if device.Decommissioned() {
		return nil, errs.ErrDeviceDecommissioned
	}

	setIdx := -1
	for i := range device.AuthSets {
		if device.AuthSets[i].ID == input.AuthSetID {
			setIdx = i
			break
		}
	}
	if setIdx == -1 {
		return nil, errs.ErrAuthSetNotFound
	}

	// Accepting one set demotes any previously accepted set in the same write.
	if input.NewStatus == models.AuthSetStatusAccepted {
		for i := range device.AuthSets {
			if i != setIdx && device.AuthSets[i].Status == models.AuthSetStatusAccepted {
				device.AuthSets[i].Status = models.AuthSetStatusRejected
			}
		}
	}

	device.PreviousStatus = device.Status
	device.AuthSets[setIdx].Status = input.NewStatus
	device.Status = device.DeriveStatus()
	device.UpdatedAt = time.Now()

	lFunc.Debugf("updating device '%s' auth set '%s' to status '%s'", input.DeviceID, input.AuthSetID, input.NewStatus)
	return svc.devicesStorage.Update(ctx, device)
}

func (svc *DeviceIdentityServiceBackend) DecommissionDevice(ctx context.Context, input DecommissionDeviceInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.lockDevice(input.TenantID, input.ID)
	defer unlock()

	exists, device, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not read device '%s': %s", input.ID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrDeviceNotFound
	}

	if device.Decommissioned() {
		return device, nil
	}

	now := time.Now()
	device.DecommissionedAt = &now
	device.Status = models.DeviceStatusNoAuth
	device.UpdatedAt = now

	lFunc.Infof("decommissioning device '%s'", device.ID)
	return svc.devicesStorage.Update(ctx, device)
}

// DeleteDevice is idempotent. Deleting an unknown device reports success so
// duplicate decommission requests are tolerated.
func (svc *DeviceIdentityServiceBackend) DeleteDevice(ctx context.Context, input DeleteDeviceInput) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return errs.ErrValidateBadRequest
	}

	exists, _, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not read device '%s': %s", input.ID, err)
		return err
	}
	if !exists {
		lFunc.Debugf("device '%s' already removed", input.ID)
		return nil
	}

	lFunc.Infof("deleting device '%s'", input.ID)
	return svc.devicesStorage.Delete(ctx, input.TenantID, input.ID)
}

func (svc *DeviceIdentityServiceBackend) BindIntegration(ctx context.Context, input BindIntegrationInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.lockDevice(input.TenantID, input.DeviceID)
	defer unlock()

	exists, device, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.DeviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrDeviceNotFound
	}

	for _, id := range device.IntegrationIDs {
		if id == input.IntegrationID {
			return device, nil
		}
	}

	device.IntegrationIDs = append(device.IntegrationIDs, input.IntegrationID)
	device.UpdatedAt = time.Now()

	return svc.devicesStorage.Update(ctx, device)
}

func (svc *DeviceIdentityServiceBackend) UnbindIntegration(ctx context.Context, input UnbindIntegrationInput) (*models.Device, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := identityValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.lockDevice(input.TenantID, input.DeviceID)
	defer unlock()

	exists, device, err := svc.devicesStorage.SelectExists(ctx, input.TenantID, input.DeviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrDeviceNotFound
	}

	kept := device.IntegrationIDs[:0]
	for _, id := range device.IntegrationIDs {
		if id != input.IntegrationID {
			kept = append(kept, id)
		}
	}
	device.IntegrationIDs = kept
	device.UpdatedAt = time.Now()

	return svc.devicesStorage.Update(ctx, device)
}
