package services

import (
	"context"
	"time"

	cloudevent "github.com/cloudevents/sdk-go/v2/event"
	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/builder"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/webhook"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DispatcherService interface {
	RegisterIntegration(ctx context.Context, input RegisterIntegrationInput) (*models.Integration, error)
	GetIntegrationByID(ctx context.Context, input GetIntegrationByIDInput) (*models.Integration, error)
	GetIntegrations(ctx context.Context, input GetIntegrationsInput) (string, error)
	RemoveIntegration(ctx context.Context, input RemoveIntegrationInput) error
	GetEvents(ctx context.Context, input GetEventsInput) (string, error)
	HandleEvent(ctx context.Context, event *cloudevent.Event) error
}

type RegisterIntegrationInput struct {
	TenantID    string
	ID          string
	Provider    models.IntegrationProvider `validate:"required"`
	Description string
	Credentials models.Credentials `validate:"required"`
}

type GetIntegrationByIDInput struct {
	TenantID string
	ID       string `validate:"required"`
}

type GetIntegrationsInput struct {
	TenantID string
	resources.ListInput[models.Integration]
}

type RemoveIntegrationInput struct {
	TenantID string
	ID       string `validate:"required"`
}

type GetEventsInput struct {
	TenantID      string
	IntegrationID string
	resources.ListInput[models.DeviceEvent]
}

type DispatcherMiddleware func(DispatcherService) DispatcherService

var dispatcherValidate = validator.New()

type DispatcherServiceBackend struct {
	logger              *logrus.Entry
	integrationsStorage storage.IntegrationRepo
	eventsStorage       storage.EventRepo
	webhookSender       *webhook.Sender
	service             DispatcherService
}

type DispatcherBuilder struct {
	Logger              *logrus.Entry
	IntegrationsStorage storage.IntegrationRepo
	EventsStorage       storage.EventRepo
	WebhookTimeout      time.Duration
}

func NewDispatcherService(builder DispatcherBuilder) DispatcherService {
	svc := &DispatcherServiceBackend{
		logger:              builder.Logger,
		integrationsStorage: builder.IntegrationsStorage,
		eventsStorage:       builder.EventsStorage,
		webhookSender:       webhook.NewSender(builder.WebhookTimeout, builder.Logger),
	}

	svc.service = svc
	return svc
}

func (svc *DispatcherServiceBackend) SetService(service DispatcherService) {
	svc.service = service
}

func (svc *DispatcherServiceBackend) RegisterIntegration(ctx context.Context, input RegisterIntegrationInput) (*models.Integration, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := dispatcherValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	now := time.Now()
	integration := &models.Integration{
		ID:          input.ID,
		TenantID:    input.TenantID,
		Provider:    input.Provider,
		Description: input.Description,
		Credentials: input.Credentials,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := builder.ValidateCredentials(integration); err != nil {
		lFunc.Errorf("invalid credentials for provider '%s': %s", input.Provider, err)
		return nil, err
	}

	exists, _, err := svc.integrationsStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not check if integration '%s' exists: %s", input.ID, err)
		return nil, err
	}
	if exists {
		return svc.integrationsStorage.Update(ctx, integration)
	}

	lFunc.Infof("registering '%s' integration '%s'", input.Provider, input.ID)
	return svc.integrationsStorage.Insert(ctx, integration)
}

func (svc *DispatcherServiceBackend) GetIntegrationByID(ctx context.Context, input GetIntegrationByIDInput) (*models.Integration, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := dispatcherValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	exists, integration, err := svc.integrationsStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not read integration '%s': %s", input.ID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrIntegrationNotFound
	}

	return integration, nil
}

func (svc *DispatcherServiceBackend) GetIntegrations(ctx context.Context, input GetIntegrationsInput) (string, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	lFunc.Debugf("reading integrations for tenant '%s'", input.TenantID)

	return svc.integrationsStorage.SelectAll(ctx, input.TenantID, input.ExhaustiveRun, input.ApplyFunc, input.QueryParameters)
}

// RemoveIntegration is idempotent. Devices keep their binding references;
// stale bindings are skipped during synchronization.
func (svc *DispatcherServiceBackend) RemoveIntegration(ctx context.Context, input RemoveIntegrationInput) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := dispatcherValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return errs.ErrValidateBadRequest
	}

	exists, _, err := svc.integrationsStorage.SelectExists(ctx, input.TenantID, input.ID)
	if err != nil {
		lFunc.Errorf("could not read integration '%s': %s", input.ID, err)
		return err
	}
	if !exists {
		lFunc.Debugf("integration '%s' already removed", input.ID)
		return nil
	}

	lFunc.Infof("removing integration '%s'", input.ID)
	return svc.integrationsStorage.Delete(ctx, input.TenantID, input.ID)
}

func (svc *DispatcherServiceBackend) GetEvents(ctx context.Context, input GetEventsInput) (string, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	queryParams := input.QueryParameters
	if queryParams == nil {
		queryParams = &resources.QueryParameters{}
	}
	if queryParams.Sort.SortField == "" {
		queryParams.Sort = resources.SortOptions{SortField: "time", SortMode: resources.SortModeDesc}
	}

	// The integration filter runs inside the storage query so that every page
	// is full before the bookmark advances.
	if input.IntegrationID != "" {
		exists, _, err := svc.integrationsStorage.SelectExists(ctx, input.TenantID, input.IntegrationID)
		if err != nil {
			lFunc.Errorf("could not read integration '%s': %s", input.IntegrationID, err)
			return "", err
		}
		if !exists {
			return "", nil
		}

		return svc.eventsStorage.SelectByIntegrationID(ctx, input.TenantID, input.IntegrationID, input.ExhaustiveRun, input.ApplyFunc, queryParams)
	}

	return svc.eventsStorage.SelectAll(ctx, input.TenantID, input.ExhaustiveRun, input.ApplyFunc, queryParams)
}

// HandleEvent persists the lifecycle event and fans it out to every webhook
// integration of the tenant. The event id keys the audit row only: a replayed
// message reuses the stored row instead of recording a duplicate, but every
// integration without a successful delivery on record is attempted again.
func (svc *DispatcherServiceBackend) HandleEvent(ctx context.Context, event *cloudevent.Event) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	tenantID := helpers.TenantFromContext(ctx)

	exists, deviceEvent, err := svc.eventsStorage.SelectExists(ctx, tenantID, event.ID())
	if err != nil {
		lFunc.Errorf("could not check if event '%s' exists: %s", event.ID(), err)
		return err
	}
	if !exists {
		deviceEvent = &models.DeviceEvent{
			ID:       event.ID(),
			TenantID: tenantID,
			Type:     models.EventType(event.Type()),
			Data:     event.Data(),
			Time:     event.Time(),
		}

		deviceEvent, err = svc.eventsStorage.Insert(ctx, deviceEvent)
		if err != nil {
			lFunc.Errorf("could not persist event '%s': %s", event.ID(), err)
			return err
		}
	}

	statusIdx := map[string]int{}
	for i, status := range deviceEvent.DeliveryStatuses {
		statusIdx[status.IntegrationID] = i
	}

	webhooks := []models.Integration{}
	_, err = svc.integrationsStorage.SelectAll(ctx, tenantID, true, func(integration models.Integration) {
		if integration.Provider == models.IntegrationProviderWebhook {
			webhooks = append(webhooks, integration)
		}
	}, nil)
	if err != nil {
		lFunc.Errorf("could not read integrations for tenant '%s': %s", tenantID, err)
		return err
	}

	attempted := false
	for _, integration := range webhooks {
		idx, seen := statusIdx[integration.ID]
		if seen && deviceEvent.DeliveryStatuses[idx].Success {
			continue
		}

		status := models.DeliveryStatus{
			IntegrationID: integration.ID,
		}
		if seen {
			lFunc.Debugf("retrying delivery of event '%s' to integration '%s'", event.ID(), integration.ID)
			status.Attempts = deviceEvent.DeliveryStatuses[idx].Attempts
		}

		result, err := svc.webhookSender.SendEvent(ctx, *integration.Credentials.HTTP, event)
		status.StatusCode = result.StatusCode
		status.Attempts += result.Attempts
		if err != nil {
			status.Error = err.Error()
			lFunc.Warnf("delivery of event '%s' to integration '%s' failed: %s", event.ID(), integration.ID, err)
		} else {
			now := time.Now()
			status.Success = true
			status.DeliveredAt = &now
		}

		if seen {
			deviceEvent.DeliveryStatuses[idx] = status
		} else {
			deviceEvent.DeliveryStatuses = append(deviceEvent.DeliveryStatuses, status)
		}
		attempted = true
	}

	if !attempted {
		return nil
	}

	_, err = svc.eventsStorage.Update(ctx, deviceEvent)
	if err != nil {
		lFunc.Errorf("could not record delivery statuses of event '%s': %s", event.ID(), err)
		return err
	}

	return nil
}
