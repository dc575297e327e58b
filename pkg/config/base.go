package config

type Password string

func (p Password) MarshalText() ([]byte, error) {
	return []byte("*************"), nil
}

type HTTPProtocol string

const (
	HTTPS HTTPProtocol = "https"
	HTTP  HTTPProtocol = "http"
)

type HttpServer struct {
	LogLevel           LogLevel     `mapstructure:"log_level"`
	HealthCheckLogging bool         `mapstructure:"health_check"`
	ListenAddress      string       `mapstructure:"listen_address"`
	Port               int          `mapstructure:"port"`
	Protocol           HTTPProtocol `mapstructure:"protocol"`
	CertFile           string       `mapstructure:"cert_file"`
	KeyFile            string       `mapstructure:"key_file"`
}

type PluggableStorageEngine struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Provider string   `mapstructure:"provider"`

	Config map[string]interface{} `mapstructure:",remain"`
}

type PostgresPSEConfig struct {
	Hostname string   `mapstructure:"hostname"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password Password `mapstructure:"password"`
	Database string   `mapstructure:"database"`
}
