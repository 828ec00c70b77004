package utils

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"

	"github.com/benmeehan/pnp-device/pkg/file"
)

// Security types accepted in IOTHUB_DEVICE_SECURITY_TYPE.
const (
	SecurityTypeConnectionString = "connectionString"
	SecurityTypeDPS              = "DPS"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		CACertificate   string `yaml:"ca_certificate"`     // Path to the CA bundle, system roots when empty
		QOS             int    `yaml:"qos"`                // MQTT QoS level for hub traffic (0 or 1)
		KeepAlive       int    `yaml:"keep_alive"`         // MQTT keep alive (in seconds)
		ConnectTimeout  int    `yaml:"connect_timeout"`    // Timeout for the initial connection (in seconds)
		SASTokenTTL     int    `yaml:"sas_token_ttl"`      // Lifetime of generated SAS tokens (in seconds)
		ResponseTimeout int    `yaml:"response_timeout"`   // Timeout for twin responses (in seconds)
		DisconnectQuiet uint   `yaml:"disconnect_quiesce"` // Milliseconds to wait for in-flight work on disconnect
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the cached provisioning result
	} `yaml:"identity"`

	Provisioning struct {
		MaxAttempts     int `yaml:"max_attempts"`     // Maximum number of status polls
		BaseDelay       int `yaml:"base_delay"`       // Initial delay between polls (in seconds)
		MaxBackoff      int `yaml:"max_backoff"`      // Maximum delay between polls (in seconds)
		ResponseTimeout int `yaml:"response_timeout"` // Timeout for each DPS response (in seconds)
	} `yaml:"provisioning"`

	Device struct {
		SerialNumber          string `yaml:"serial_number"`          // Reported by the temperature controller
		Manufacturer          string `yaml:"manufacturer"`           // deviceInformation.manufacturer
		Model                 string `yaml:"model"`                  // deviceInformation.model
		SoftwareVersion       string `yaml:"software_version"`       // deviceInformation.swVersion, semantic version
		ProcessorManufacturer string `yaml:"processor_manufacturer"` // Overrides the detected CPU vendor when set
		StoragePath           string `yaml:"storage_path"`           // Filesystem measured for totalStorage
	} `yaml:"device"`

	Services struct {
		Telemetry struct {
			Enabled  bool `yaml:"enabled"`  // Enable/disable telemetry service
			Interval int  `yaml:"interval"` // Interval between telemetry messages (in seconds)
		} `yaml:"telemetry"`

		Properties struct {
			Enabled bool `yaml:"enabled"` // Enable/disable property service
			Workers int  `yaml:"workers"` // Number of workers applying writable properties
			Timeout int  `yaml:"timeout"` // Timeout for a property update round trip (in seconds)
		} `yaml:"properties"`

		Commands struct {
			Enabled bool `yaml:"enabled"` // Enable/disable command service
			Workers int  `yaml:"workers"` // Number of workers running commands
			Timeout int  `yaml:"timeout"` // Maximum execution time for a command (in seconds)
		} `yaml:"commands"`
	} `yaml:"services"`

	Middlewares struct {
		Trace struct {
			Enabled bool `yaml:"enabled"` // Log every publish and subscription
		} `yaml:"trace"`
	} `yaml:"middlewares"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"logging"`
}

// ConnectionSettings are read from the environment so secrets stay out of
// the configuration file.
type ConnectionSettings struct {
	SecurityType     string `env:"IOTHUB_DEVICE_SECURITY_TYPE,required"`
	ConnectionString string `env:"IOTHUB_DEVICE_CONNECTION_STRING"`
	DPSIDScope       string `env:"IOTHUB_DEVICE_DPS_ID_SCOPE"`
	DPSDeviceID      string `env:"IOTHUB_DEVICE_DPS_DEVICE_ID"`
	DPSDeviceKey     string `env:"IOTHUB_DEVICE_DPS_DEVICE_KEY"`
	DPSEndpoint      string `env:"IOTHUB_DEVICE_DPS_ENDPOINT,default=global.azure-devices-provisioning.net"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills unset values.
func (c *Config) applyDefaults() {
	defaultInt(&c.MQTT.KeepAlive, 240)
	defaultInt(&c.MQTT.ConnectTimeout, 30)
	defaultInt(&c.MQTT.SASTokenTTL, 3600)
	defaultInt(&c.MQTT.ResponseTimeout, 30)
	if c.MQTT.DisconnectQuiet == 0 {
		c.MQTT.DisconnectQuiet = 250
	}
	if c.MQTT.QOS < 0 || c.MQTT.QOS > 1 {
		c.MQTT.QOS = 1
	}

	if c.Identity.DeviceFile == "" {
		c.Identity.DeviceFile = "device.json"
	}

	defaultInt(&c.Provisioning.MaxAttempts, 20)
	defaultInt(&c.Provisioning.BaseDelay, 2)
	defaultInt(&c.Provisioning.MaxBackoff, 30)
	defaultInt(&c.Provisioning.ResponseTimeout, 30)

	if c.Device.StoragePath == "" {
		c.Device.StoragePath = "/"
	}

	defaultInt(&c.Services.Telemetry.Interval, 60)
	defaultInt(&c.Services.Properties.Workers, 1)
	defaultInt(&c.Services.Properties.Timeout, 30)
	defaultInt(&c.Services.Commands.Workers, 2)
	defaultInt(&c.Services.Commands.Timeout, 30)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func defaultInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// LoadConnectionSettings reads and validates the connection settings from the environment.
func LoadConnectionSettings() (*ConnectionSettings, error) {
	var settings ConnectionSettings
	if err := envdecode.Decode(&settings); err != nil {
		return nil, fmt.Errorf("failed to read connection settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks that the variables required by the security type are present.
func (s *ConnectionSettings) Validate() error {
	switch s.SecurityType {
	case SecurityTypeConnectionString:
		if s.ConnectionString == "" {
			return errors.New("IOTHUB_DEVICE_CONNECTION_STRING is required for connectionString security")
		}
	case SecurityTypeDPS:
		var missing []error
		if s.DPSIDScope == "" {
			missing = append(missing, errors.New("IOTHUB_DEVICE_DPS_ID_SCOPE is required"))
		}
		if s.DPSDeviceID == "" {
			missing = append(missing, errors.New("IOTHUB_DEVICE_DPS_DEVICE_ID is required"))
		}
		if s.DPSDeviceKey == "" {
			missing = append(missing, errors.New("IOTHUB_DEVICE_DPS_DEVICE_KEY is required"))
		}
		if len(missing) > 0 {
			return fmt.Errorf("incomplete DPS settings: %w", errors.Join(missing...))
		}
	default:
		return fmt.Errorf("unknown IOTHUB_DEVICE_SECURITY_TYPE %q, expected %q or %q",
			s.SecurityType, SecurityTypeConnectionString, SecurityTypeDPS)
	}
	return nil
}
