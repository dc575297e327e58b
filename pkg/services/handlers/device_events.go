package handlers

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fleetdirectory/fleet-directory/pkg/eventbus"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/sirupsen/logrus"
)

// deviceEventsHandler consumes device lifecycle events and drives the two
// downstream projections: the delivery audit log with webhook fan-out, and the
// search index.
type deviceEventsHandler struct {
	dispatcherSvc services.DispatcherService
	reportingSvc  services.ReportingService
	logger        *logrus.Entry
}

func NewDeviceEventsHandler(logger *logrus.Entry, dispatcherSvc services.DispatcherService, reportingSvc services.ReportingService) eventbus.EventHandler {
	return &deviceEventsHandler{
		dispatcherSvc: dispatcherSvc,
		reportingSvc:  reportingSvc,
		logger:        logger,
	}
}

func (h *deviceEventsHandler) HandleMessage(m *message.Message) error {
	event, err := helpers.ParseCloudEvent(m.Payload)
	if err != nil {
		return fmt.Errorf("could not decode cloud event: %w", err)
	}

	ctx := helpers.InitContext()
	if tenant, ok := event.Extensions()["tenantid"].(string); ok {
		ctx = helpers.ContextWithTenant(ctx, tenant)
	}
	lFunc := helpers.ConfigureLogger(ctx, h.logger)
	lFunc.Debugf("handling '%s' event '%s'", event.Type(), event.ID())

	if err := h.dispatcherSvc.HandleEvent(ctx, event); err != nil {
		return err
	}

	tenantID := helpers.TenantFromContext(ctx)
	switch models.EventType(event.Type()) {
	case models.EventTypeDeviceProvisioned:
		body, err := helpers.GetEventBody[models.DeviceProvisionedEvent](event)
		if err != nil {
			return fmt.Errorf("invalid device provisioned event: %w", err)
		}
		return h.indexIdentity(ctx, tenantID, body.ID, body.Status)

	case models.EventTypeDeviceStatusChanged:
		body, err := helpers.GetEventBody[models.DeviceStatusChangedEvent](event)
		if err != nil {
			return fmt.Errorf("invalid device status changed event: %w", err)
		}
		return h.indexIdentity(ctx, tenantID, body.ID, body.Status)

	case models.EventTypeDeviceDecommissioned:
		body, err := helpers.GetEventBody[models.DeviceDecommissionedEvent](event)
		if err != nil {
			return fmt.Errorf("invalid device decommissioned event: %w", err)
		}
		return h.reportingSvc.RemoveDeviceIndex(ctx, services.RemoveDeviceIndexInput{
			TenantID: tenantID,
			DeviceID: body.ID,
		})

	default:
		lFunc.Warnf("ignoring unknown event type '%s'", event.Type())
		return nil
	}
}

func (h *deviceEventsHandler) indexIdentity(ctx context.Context, tenantID, deviceID string, status models.DeviceStatus) error {
	statusAttr := models.DeviceAttribute{Scope: models.ScopeIdentity, Name: "status"}
	statusAttr.SetVal(string(status))

	_, err := h.reportingSvc.IndexDevice(ctx, services.IndexDeviceInput{
		TenantID:   tenantID,
		DeviceID:   deviceID,
		Attributes: []models.DeviceAttribute{statusAttr},
		Scopes:     []models.AttributeScope{models.ScopeIdentity},
	})
	return err
}
