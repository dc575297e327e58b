package eventpub

import (
	"context"
	"fmt"

	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
)

type identityEventPublisher struct {
	next       services.DeviceIdentityService
	eventMWPub ICloudEventPublisher
}

// NewIdentityEventPublisher decorates the identity service so that every
// successful mutation emits its lifecycle event after the write completes.
// Read operations pass through untouched.
func NewIdentityEventPublisher(eventMWPub ICloudEventPublisher) services.IdentityMiddleware {
	return func(next services.DeviceIdentityService) services.DeviceIdentityService {
		return &identityEventPublisher{
			next:       next,
			eventMWPub: NewEventPublisherWithSourceMiddleware(eventMWPub, models.FleetDirectorySource),
		}
	}
}

func (mw *identityEventPublisher) CreateDevice(ctx context.Context, input services.CreateDeviceInput) (output *models.Device, err error) {
	ctx = context.WithValue(ctx, helpers.ContextKeyEventType, models.EventTypeDeviceProvisioned)
	ctx = context.WithValue(ctx, helpers.ContextKeyEventSubject, fmt.Sprintf("device/%s", input.ID))
	ctx = helpers.ContextWithTenant(ctx, input.TenantID)

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, models.DeviceProvisionedEvent{
				ID:       output.ID,
				Status:   output.Status,
				AuthSets: output.AuthSets,
			})
		}
	}()
	return mw.next.CreateDevice(ctx, input)
}

func (mw *identityEventPublisher) GetDeviceByID(ctx context.Context, input services.GetDeviceByIDInput) (*models.Device, error) {
	return mw.next.GetDeviceByID(ctx, input)
}

func (mw *identityEventPublisher) GetDevices(ctx context.Context, input services.GetDevicesInput) (string, error) {
	return mw.next.GetDevices(ctx, input)
}

func (mw *identityEventPublisher) UpdateAuthSetStatus(ctx context.Context, input services.UpdateAuthSetStatusInput) (output *models.Device, err error) {
	ctx = context.WithValue(ctx, helpers.ContextKeyEventType, models.EventTypeDeviceStatusChanged)
	ctx = context.WithValue(ctx, helpers.ContextKeyEventSubject, fmt.Sprintf("device/%s", input.DeviceID))
	ctx = helpers.ContextWithTenant(ctx, input.TenantID)

	// PreviousStatus is captured by the service under the per-device lock, so
	// concurrent transitions cannot double-publish or lose a change.
	defer func() {
		if err == nil && output.PreviousStatus != output.Status {
			mw.eventMWPub.PublishCloudEvent(ctx, models.DeviceStatusChangedEvent{
				ID:     output.ID,
				Status: output.Status,
			})
		}
	}()
	return mw.next.UpdateAuthSetStatus(ctx, input)
}

func (mw *identityEventPublisher) DecommissionDevice(ctx context.Context, input services.DecommissionDeviceInput) (output *models.Device, err error) {
	ctx = context.WithValue(ctx, helpers.ContextKeyEventType, models.EventTypeDeviceDecommissioned)
	ctx = context.WithValue(ctx, helpers.ContextKeyEventSubject, fmt.Sprintf("device/%s", input.ID))
	ctx = helpers.ContextWithTenant(ctx, input.TenantID)

	defer func() {
		if err == nil {
			mw.eventMWPub.PublishCloudEvent(ctx, models.DeviceDecommissionedEvent{
				ID: output.ID,
			})
		}
	}()
	return mw.next.DecommissionDevice(ctx, input)
}

func (mw *identityEventPublisher) DeleteDevice(ctx context.Context, input services.DeleteDeviceInput) error {
	return mw.next.DeleteDevice(ctx, input)
}

func (mw *identityEventPublisher) BindIntegration(ctx context.Context, input services.BindIntegrationInput) (*models.Device, error) {
	return mw.next.BindIntegration(ctx, input)
}

func (mw *identityEventPublisher) UnbindIntegration(ctx context.Context, input services.UnbindIntegrationInput) (*models.Device, error) {
	return mw.next.UnbindIntegration(ctx, input)
}
