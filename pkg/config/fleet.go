package config

type FleetDirectoryConfig struct {
	Logs               Logging                `mapstructure:"logs"`
	Server             HttpServer             `mapstructure:"server"`
	Storage            PluggableStorageEngine `mapstructure:"storage"`
	PublisherEventBus  EventBusEngine         `mapstructure:"publisher_event_bus"`
	SubscriberEventBus EventBusEngine         `mapstructure:"subscriber_event_bus"`
	Sync               SyncSettings           `mapstructure:"sync"`
	Dispatcher         DispatcherSettings     `mapstructure:"dispatcher"`
	Workflows          WorkflowsSettings      `mapstructure:"workflows"`
}

type SyncSettings struct {
	LogLevel       LogLevel `mapstructure:"log_level"`
	Enabled        bool     `mapstructure:"enabled"`
	CronExpression string   `mapstructure:"cron_expression"`
	BatchSize      int      `mapstructure:"batch_size"`
	FailEarly      bool     `mapstructure:"fail_early"`
}

type DispatcherSettings struct {
	LogLevel       LogLevel `mapstructure:"log_level"`
	WebhookTimeout int      `mapstructure:"webhook_timeout_seconds"`
}

// WorkflowsSettings points at the workflows orchestrator that receives the
// credentials minted while provisioning devices in external directories.
type WorkflowsSettings struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Enabled  bool     `mapstructure:"enabled"`
	URL      string   `mapstructure:"url"`
}
