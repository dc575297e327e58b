package jobs

import (
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/sirupsen/logrus"
)

type SyncDevicesJob struct {
	logger   *logrus.Entry
	service  services.SyncService
	settings config.SyncSettings
}

func NewSyncDevicesJob(service services.SyncService, settings config.SyncSettings, logger *logrus.Entry) *SyncDevicesJob {
	return &SyncDevicesJob{
		service:  service,
		logger:   logger,
		settings: settings,
	}
}

func (job *SyncDevicesJob) Run() {
	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, job.logger)

	start := time.Now()
	lFunc.Info("starting periodic device synchronization")

	report, err := job.service.SyncDevices(ctx, services.SyncDevicesInput{
		BatchSize: job.settings.BatchSize,
		FailEarly: job.settings.FailEarly,
	})
	if err != nil {
		lFunc.Errorf("device synchronization run failed: %s", err)
		return
	}

	lFunc.Infof("ending synchronization of %d devices with %d failures. Took %v", report.Devices, report.Failures, time.Since(start))
}
