package main

import (
	"flag"
	"os"

	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/builder"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/workflows"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/fleetdirectory/fleet-directory/pkg/storage/postgres"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(helpers.LogFormatter)

	tenantID := flag.String("tenant", "", "restrict the run to one tenant")
	batchSize := flag.Int("batch-size", services.DefaultSyncBatchSize, "number of devices reconciled per page")
	failEarly := flag.Bool("fail-early", false, "abort the run on the first device failure")
	flag.Parse()

	conf, err := config.LoadConfig[config.FleetDirectoryConfig](nil)
	if err != nil {
		log.Fatal(err)
	}

	globalLogLevel, err := log.ParseLevel(string(conf.Logs.Level))
	if err != nil {
		globalLogLevel = log.InfoLevel
	}
	log.SetLevel(globalLogLevel)

	lSync := helpers.SetupLogger(conf.Sync.LogLevel, "Fleet Directory", "Sync")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "Fleet Directory", "Storage")

	engine, err := postgres.NewStorageEngine(lStorage, conf.Storage)
	if err != nil {
		log.Fatalf("could not create storage engine: %s", err)
	}

	deviceStorage, err := engine.GetDeviceStorage()
	if err != nil {
		log.Fatalf("could not get device storage: %s", err)
	}
	integrationStorage, err := engine.GetIntegrationStorage()
	if err != nil {
		log.Fatalf("could not get integration storage: %s", err)
	}

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

	ctx := helpers.InitContext()
	report, err := syncSvc.SyncDevices(ctx, services.SyncDevicesInput{
		TenantID:  *tenantID,
		BatchSize: *batchSize,
		FailEarly: *failEarly,
	})
	if err != nil {
		lSync.Errorf("synchronization run failed: %s", err)
		os.Exit(1)
	}

	lSync.Infof("synchronized %d devices across %d tenants: %d provisioned, %d updated, %d deleted, %d consistent, %d failures",
		report.Devices, report.Tenants, report.Provisioned, report.Updated, report.Deleted, report.Consistent, report.Failures)

	if report.Failures > 0 {
		os.Exit(1)
	}
}
