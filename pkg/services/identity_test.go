package services

import (
	"context"
	"testing"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIdentityService(t *testing.T) (DeviceIdentityService, *inMemDeviceRepo) {
	t.Helper()
	repo := newInMemDeviceRepo()
	svc := NewDeviceIdentityService(DeviceIdentityBuilder{
		Logger:         logrus.New().WithField("test", "identity"),
		DevicesStorage: repo,
	})
	return svc, repo
}

func TestCreateDeviceDerivesPendingStatus(t *testing.T) {
	svc, _ := setupIdentityService(t)

	device, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"mac": "00:11:22:33:44:55"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DeviceStatusPending, device.Status)
	require.Len(t, device.AuthSets, 1)
	assert.Equal(t, models.AuthSetStatusPending, device.AuthSets[0].Status)
}

func TestCreateDevicePreauthorized(t *testing.T) {
	svc, _ := setupIdentityService(t)

	device, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
		Preauthorize: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, device.ID)
	assert.Equal(t, models.DeviceStatusPreauthorized, device.Status)
}

func TestCreateDeviceAlreadyExists(t *testing.T) {
	svc, _ := setupIdentityService(t)

	input := CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	}

	_, err := svc.CreateDevice(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.CreateDevice(context.Background(), input)
	assert.ErrorIs(t, err, errs.ErrDeviceAlreadyExists)
}

func TestCreateDeviceValidation(t *testing.T) {
	svc, _ := setupIdentityService(t)

	_, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID: "acme",
		ID:       "dev-1",
	})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
}

func TestUpdateAuthSetStatusAcceptDemotesOthers(t *testing.T) {
	svc, repo := setupIdentityService(t)

	device, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	// second credential set presented by the same device
	device.AuthSets = append(device.AuthSets, models.AuthSet{
		ID:        "as-2",
		DeviceID:  device.ID,
		PublicKey: "pubkey-2",
		Status:    models.AuthSetStatusPending,
	})
	_, err = repo.Update(context.Background(), device)
	require.NoError(t, err)

	firstSetID := device.AuthSets[0].ID

	device, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: firstSetID,
		NewStatus: models.AuthSetStatusAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusAccepted, device.Status)

	device, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: "as-2",
		NewStatus: models.AuthSetStatusAccepted,
	})
	require.NoError(t, err)

	accepted := 0
	for _, authSet := range device.AuthSets {
		if authSet.Status == models.AuthSetStatusAccepted {
			accepted++
		} else if authSet.ID == firstSetID {
			assert.Equal(t, models.AuthSetStatusRejected, authSet.Status)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, models.DeviceStatusAccepted, device.Status)
}

func TestUpdateAuthSetStatusReportsPreviousStatus(t *testing.T) {
	svc, _ := setupIdentityService(t)

	device, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)
	setID := device.AuthSets[0].ID

	device, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: setID,
		NewStatus: models.AuthSetStatusAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusPending, device.PreviousStatus)
	assert.Equal(t, models.DeviceStatusAccepted, device.Status)

	// re-applying the same status is not a transition
	device, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: setID,
		NewStatus: models.AuthSetStatusAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, device.Status, device.PreviousStatus)
}

func TestUpdateAuthSetStatusUnknownSet(t *testing.T) {
	svc, _ := setupIdentityService(t)

	_, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	_, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: "missing",
		NewStatus: models.AuthSetStatusAccepted,
	})
	assert.ErrorIs(t, err, errs.ErrAuthSetNotFound)
}

func TestUpdateAuthSetStatusOnDecommissionedDevice(t *testing.T) {
	svc, _ := setupIdentityService(t)

	device, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	_, err = svc.DecommissionDevice(context.Background(), DecommissionDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)

	_, err = svc.UpdateAuthSetStatus(context.Background(), UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: device.AuthSets[0].ID,
		NewStatus: models.AuthSetStatusAccepted,
	})
	assert.ErrorIs(t, err, errs.ErrDeviceDecommissioned)
}

func TestDecommissionDeviceIsIdempotent(t *testing.T) {
	svc, _ := setupIdentityService(t)

	_, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	first, err := svc.DecommissionDevice(context.Background(), DecommissionDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)
	require.True(t, first.Decommissioned())
	assert.Equal(t, models.DeviceStatusNoAuth, first.Status)

	second, err := svc.DecommissionDevice(context.Background(), DecommissionDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)
	assert.Equal(t, first.DecommissionedAt.Unix(), second.DecommissionedAt.Unix())
}

func TestDeleteUnknownDeviceSucceeds(t *testing.T) {
	svc, _ := setupIdentityService(t)

	err := svc.DeleteDevice(context.Background(), DeleteDeviceInput{TenantID: "acme", ID: "ghost"})
	assert.NoError(t, err)
}

func TestBindIntegrationIsIdempotent(t *testing.T) {
	svc, _ := setupIdentityService(t)

	_, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		device, err := svc.BindIntegration(context.Background(), BindIntegrationInput{
			TenantID:      "acme",
			DeviceID:      "dev-1",
			IntegrationID: "int-1",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"int-1"}, device.IntegrationIDs)
	}

	device, err := svc.UnbindIntegration(context.Background(), UnbindIntegrationInput{
		TenantID:      "acme",
		DeviceID:      "dev-1",
		IntegrationID: "int-1",
	})
	require.NoError(t, err)
	assert.Empty(t, device.IntegrationIDs)
}

func TestTenantIsolation(t *testing.T) {
	svc, _ := setupIdentityService(t)

	_, err := svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "acme",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "1234"},
		PublicKey:    "pubkey-1",
	})
	require.NoError(t, err)

	_, err = svc.GetDeviceByID(context.Background(), GetDeviceByIDInput{TenantID: "other", ID: "dev-1"})
	assert.ErrorIs(t, err, errs.ErrDeviceNotFound)

	// same id under a different tenant is a distinct device
	_, err = svc.CreateDevice(context.Background(), CreateDeviceInput{
		TenantID:     "other",
		ID:           "dev-1",
		IdentityData: map[string]interface{}{"sn": "9999"},
		PublicKey:    "pubkey-2",
	})
	assert.NoError(t, err)
}
