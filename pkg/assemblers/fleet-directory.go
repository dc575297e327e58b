package assemblers

import (
	"fmt"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/fleetdirectory/fleet-directory/pkg/eventbus"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/jobs"
	"github.com/fleetdirectory/fleet-directory/pkg/middlewares/eventpub"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/builder"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/workflows"
	"github.com/fleetdirectory/fleet-directory/pkg/routes"
	tenantmw "github.com/fleetdirectory/fleet-directory/pkg/routes/middlewares/tenant"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/fleetdirectory/fleet-directory/pkg/services/handlers"
	"github.com/fleetdirectory/fleet-directory/pkg/storage/postgres"
)

const serviceID = "fleet-directory"

// FleetDirectoryService bundles the assembled service layer of one deployment.
type FleetDirectoryService struct {
	Identity   services.DeviceIdentityService
	Dispatcher services.DispatcherService
	Reporting  services.ReportingService
	Sync       services.SyncService
}

func AssembleFleetDirectoryServiceWithHTTPServer(conf config.FleetDirectoryConfig, serviceInfo models.APIServiceInfo) (*FleetDirectoryService, int, error) {
	service, err := AssembleFleetDirectoryService(conf)
	if err != nil {
		return nil, -1, fmt.Errorf("could not assemble Fleet Directory Service. Exiting: %s", err)
	}

	lHttp := helpers.SetupLogger(conf.Server.LogLevel, "Fleet Directory", "HTTP Server")

	httpEngine := routes.NewGinEngine(lHttp)
	httpEngine.Use(tenantmw.RequestMetadataToContextMiddleware(lHttp))
	httpGrp := httpEngine.Group("/")
	routes.NewDevicesHTTPLayer(httpGrp, service.Identity, lHttp)
	routes.NewIntegrationsHTTPLayer(httpGrp, service.Dispatcher, lHttp)
	routes.NewReportingHTTPLayer(httpGrp, service.Reporting, lHttp)

	port, err := routes.RunHttpRouter(lHttp, httpEngine, conf.Server, serviceInfo)
	if err != nil {
		return nil, -1, fmt.Errorf("could not run Fleet Directory http server: %s", err)
	}

	return service, port, nil
}

func AssembleFleetDirectoryService(conf config.FleetDirectoryConfig) (*FleetDirectoryService, error) {
	eventbus.RegisterChannelEngine()
	eventbus.RegisterAmqpEngine()

	lSvc := helpers.SetupLogger(conf.Logs.Level, "Fleet Directory", "Service")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "Fleet Directory", "Storage")
	lSync := helpers.SetupLogger(conf.Sync.LogLevel, "Fleet Directory", "Sync")
	lDispatcher := helpers.SetupLogger(conf.Dispatcher.LogLevel, "Fleet Directory", "Dispatcher")

	engine, err := postgres.NewStorageEngine(lStorage, conf.Storage)
	if err != nil {
		return nil, fmt.Errorf("could not create storage engine: %s", err)
	}

	deviceStorage, err := engine.GetDeviceStorage()
	if err != nil {
		return nil, fmt.Errorf("could not get device storage: %s", err)
	}
	integrationStorage, err := engine.GetIntegrationStorage()
	if err != nil {
		return nil, fmt.Errorf("could not get integration storage: %s", err)
	}
	eventStorage, err := engine.GetEventStorage()
	if err != nil {
		return nil, fmt.Errorf("could not get event storage: %s", err)
	}
	indexStorage, err := engine.GetIndexStorage()
	if err != nil {
		return nil, fmt.Errorf("could not get index storage: %s", err)
	}

	identitySvc := services.NewDeviceIdentityService(services.DeviceIdentityBuilder{
		Logger:         lSvc,
		DevicesStorage: deviceStorage,
	})
	identityBackend := identitySvc.(*services.DeviceIdentityServiceBackend)

	dispatcherSvc := services.NewDispatcherService(services.DispatcherBuilder{
		Logger:              lDispatcher,
		IntegrationsStorage: integrationStorage,
		EventsStorage:       eventStorage,
		WebhookTimeout:      time.Duration(conf.Dispatcher.WebhookTimeout) * time.Second,
	})

	reportingSvc := services.NewReportingService(services.ReportingBuilder{
		Logger:       lSvc,
		IndexStorage: indexStorage,
	})

	syncBuilder := services.SyncBuilder{
		Logger:              lSync,
		DevicesStorage:      deviceStorage,
		IntegrationsStorage: integrationStorage,
	}
	if conf.Workflows.Enabled {
		lWorkflows := helpers.SetupLogger(conf.Workflows.LogLevel, "Fleet Directory", "Workflows")
		workflowsClient := workflows.NewClient(conf.Workflows.URL, lWorkflows)
		syncBuilder.ProviderBuilder = builder.DirectoryProviderFactory{CredentialsSink: workflowsClient}.Build
	}
	syncSvc := services.NewSyncService(syncBuilder)

	if conf.PublisherEventBus.Enabled {
		lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "Fleet Directory", "Event Bus")
		lMessaging.Infof("Publisher Event Bus is enabled")

		pub, err := eventbus.NewEventBusPublisher(conf.PublisherEventBus, serviceID, lMessaging)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
		}

		identitySvc = eventpub.NewIdentityEventPublisher(&eventpub.CloudEventPublisher{
			Publisher: pub,
			ServiceID: serviceID,
			Logger:    lMessaging,
		})(identitySvc)

		//this utilizes the middlewares from within the identity service (if svc.service.func is used instead of regular svc.func)
		identityBackend.SetService(identitySvc)
	}

	if conf.SubscriberEventBus.Enabled {
		lMessaging := helpers.SetupLogger(conf.SubscriberEventBus.LogLevel, "Fleet Directory", "Event Bus")
		lMessaging.Infof("Subscriber Event Bus is enabled")

		dlqPublisher, err := eventbus.NewEventBusPublisher(conf.SubscriberEventBus, serviceID, lMessaging)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus DLQ publisher: %s", err)
		}

		subscriber, err := eventbus.NewEventBusSubscriber(conf.SubscriberEventBus, serviceID, lMessaging)
		if err != nil {
			lMessaging.Errorf("could not generate Event Bus Subscriber: %s", err)
			return nil, err
		}

		topics := []string{}
		for _, eventType := range models.AllEventTypes() {
			topics = append(topics, string(eventType))
		}

		eventHandler := handlers.NewDeviceEventsHandler(lMessaging, dispatcherSvc, reportingSvc)
		subHandler, err := eventbus.NewEventBusMessageHandler("FleetDirectory-DEFAULT", topics, dlqPublisher, subscriber, lMessaging, eventHandler)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus Subscription Handler: %s", err)
		}

		if err := subHandler.RunAsync(); err != nil {
			lMessaging.Errorf("could not run Event Bus Subscription Handler: %s", err)
			return nil, err
		}
	}

	if conf.Sync.Enabled {
		syncJob := jobs.NewSyncDevicesJob(syncSvc, conf.Sync, lSync)
		scheduler := jobs.NewJobScheduler(lSync, conf.Sync.CronExpression, syncJob)
		scheduler.Start()
	}

	return &FleetDirectoryService{
		Identity:   identitySvc,
		Dispatcher: dispatcherSvc,
		Reporting:  reportingSvc,
		Sync:       syncSvc,
	}, nil
}
