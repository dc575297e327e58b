package config

type EventBusEngine struct {
	LogLevel LogLevel               `mapstructure:"log_level"`
	Enabled  bool                   `mapstructure:"enabled"`
	Provider EventBusProvider       `mapstructure:"provider"`
	Config   map[string]interface{} `mapstructure:",remain"`
}

type EventBusProvider string

const (
	Amqp    EventBusProvider = "amqp"
	Channel EventBusProvider = "channel"
)

type AMQPConnection struct {
	Protocol  string   `mapstructure:"protocol"`
	Hostname  string   `mapstructure:"hostname"`
	Port      int      `mapstructure:"port"`
	Username  string   `mapstructure:"username"`
	Password  Password `mapstructure:"password"`
	Exchange  string   `mapstructure:"exchange"`
	Insecure  bool     `mapstructure:"insecure"`
	CACertLoc string   `mapstructure:"ca_cert_file"`
}
