package eventpub

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type CloudEventPublisherMock struct {
	mock.Mock
}

func (m *CloudEventPublisherMock) PublishCloudEvent(ctx context.Context, payload interface{}) {
	m.Called(ctx, payload)
}

type identityServiceStub struct {
	services.DeviceIdentityService

	device *models.Device
	err    error
}

func (s *identityServiceStub) CreateDevice(ctx context.Context, input services.CreateDeviceInput) (*models.Device, error) {
	return s.device, s.err
}

func (s *identityServiceStub) UpdateAuthSetStatus(ctx context.Context, input services.UpdateAuthSetStatusInput) (*models.Device, error) {
	return s.device, s.err
}

func (s *identityServiceStub) DecommissionDevice(ctx context.Context, input services.DecommissionDeviceInput) (*models.Device, error) {
	return s.device, s.err
}

func (s *identityServiceStub) DeleteDevice(ctx context.Context, input services.DeleteDeviceInput) error {
	return s.err
}

func wrapIdentity(stub *identityServiceStub, pub ICloudEventPublisher) services.DeviceIdentityService {
	return NewIdentityEventPublisher(pub)(stub)
}

func TestCreateDevicePublishesProvisionedEvent(t *testing.T) {
	stub := &identityServiceStub{device: &models.Device{ID: "dev-1", TenantID: "acme", Status: models.DeviceStatusPending}}
	pub := new(CloudEventPublisherMock)
	pub.On("PublishCloudEvent", mock.Anything, mock.Anything)

	svc := wrapIdentity(stub, pub)
	_, err := svc.CreateDevice(context.Background(), services.CreateDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)

	pub.AssertNumberOfCalls(t, "PublishCloudEvent", 1)

	ctx := pub.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "acme", helpers.TenantFromContext(ctx))
	assert.Equal(t, models.EventTypeDeviceProvisioned, ctx.Value(helpers.ContextKeyEventType))

	payload := pub.Calls[0].Arguments.Get(1).(models.DeviceProvisionedEvent)
	assert.Equal(t, "dev-1", payload.ID)
}

func TestCreateDeviceFailurePublishesNothing(t *testing.T) {
	stub := &identityServiceStub{err: errors.New("insert failed")}
	pub := new(CloudEventPublisherMock)

	svc := wrapIdentity(stub, pub)
	_, err := svc.CreateDevice(context.Background(), services.CreateDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.Error(t, err)

	pub.AssertNotCalled(t, "PublishCloudEvent")
}

func TestUpdateAuthSetStatusPublishesOnTransitionOnly(t *testing.T) {
	pub := new(CloudEventPublisherMock)
	pub.On("PublishCloudEvent", mock.Anything, mock.Anything)

	// the service reports pending before the update, accepted after: a
	// transition
	stub := &identityServiceStub{device: &models.Device{
		ID:             "dev-1",
		TenantID:       "acme",
		Status:         models.DeviceStatusAccepted,
		PreviousStatus: models.DeviceStatusPending,
	}}
	svc := wrapIdentity(stub, pub)

	_, err := svc.UpdateAuthSetStatus(context.Background(), services.UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: "as-1",
		NewStatus: models.AuthSetStatusAccepted,
	})
	require.NoError(t, err)
	pub.AssertNumberOfCalls(t, "PublishCloudEvent", 1)

	payload := pub.Calls[0].Arguments.Get(1).(models.DeviceStatusChangedEvent)
	assert.Equal(t, models.DeviceStatusAccepted, payload.Status)

	// same status before and after: no event
	stub.device = &models.Device{
		ID:             "dev-1",
		TenantID:       "acme",
		Status:         models.DeviceStatusPending,
		PreviousStatus: models.DeviceStatusPending,
	}
	_, err = svc.UpdateAuthSetStatus(context.Background(), services.UpdateAuthSetStatusInput{
		TenantID:  "acme",
		DeviceID:  "dev-1",
		AuthSetID: "as-1",
		NewStatus: models.AuthSetStatusPending,
	})
	require.NoError(t, err)
	pub.AssertNumberOfCalls(t, "PublishCloudEvent", 1)
}

func TestDecommissionDevicePublishesEvent(t *testing.T) {
	stub := &identityServiceStub{device: &models.Device{ID: "dev-1", TenantID: "acme", Status: models.DeviceStatusNoAuth}}
	pub := new(CloudEventPublisherMock)
	pub.On("PublishCloudEvent", mock.Anything, mock.Anything)

	svc := wrapIdentity(stub, pub)
	_, err := svc.DecommissionDevice(context.Background(), services.DecommissionDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)

	payload := pub.Calls[0].Arguments.Get(1).(models.DeviceDecommissionedEvent)
	assert.Equal(t, "dev-1", payload.ID)
}

func TestDeleteDevicePassesThrough(t *testing.T) {
	stub := &identityServiceStub{}
	pub := new(CloudEventPublisherMock)

	svc := wrapIdentity(stub, pub)
	err := svc.DeleteDevice(context.Background(), services.DeleteDeviceInput{TenantID: "acme", ID: "dev-1"})
	require.NoError(t, err)

	pub.AssertNotCalled(t, "PublishCloudEvent")
}
