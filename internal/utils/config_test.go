package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/internal/mocks"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadYamlFile", "configs/config.yaml", mock.AnythingOfType("*utils.Config")).
		Run(func(args mock.Arguments) {
			cfg := args.Get(1).(*Config)
			cfg.Services.Telemetry.Enabled = true
			cfg.Services.Telemetry.Interval = 5
			cfg.MQTT.QOS = 7
		}).
		Return(nil)

	cfg, err := LoadConfig("configs/config.yaml", fileClient)

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Services.Telemetry.Interval)
	assert.Equal(t, 1, cfg.MQTT.QOS)
	assert.Equal(t, 240, cfg.MQTT.KeepAlive)
	assert.Equal(t, 3600, cfg.MQTT.SASTokenTTL)
	assert.Equal(t, "device.json", cfg.Identity.DeviceFile)
	assert.Equal(t, 20, cfg.Provisioning.MaxAttempts)
	assert.Equal(t, "/", cfg.Device.StoragePath)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_ReadError(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadYamlFile", "missing.yaml", mock.Anything).Return(errors.New("no such file"))

	cfg, err := LoadConfig("missing.yaml", fileClient)

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConnectionSettings_ConnectionString(t *testing.T) {
	t.Setenv("IOTHUB_DEVICE_SECURITY_TYPE", "connectionString")
	t.Setenv("IOTHUB_DEVICE_CONNECTION_STRING", "HostName=hub;DeviceId=dev1;SharedAccessKey=a2V5")

	settings, err := LoadConnectionSettings()

	require.NoError(t, err)
	assert.Equal(t, SecurityTypeConnectionString, settings.SecurityType)
	assert.Equal(t, "HostName=hub;DeviceId=dev1;SharedAccessKey=a2V5", settings.ConnectionString)
	assert.Equal(t, "global.azure-devices-provisioning.net", settings.DPSEndpoint)
}

func TestLoadConnectionSettings_DPS(t *testing.T) {
	t.Setenv("IOTHUB_DEVICE_SECURITY_TYPE", "DPS")
	t.Setenv("IOTHUB_DEVICE_DPS_ID_SCOPE", "0ne00000001")
	t.Setenv("IOTHUB_DEVICE_DPS_DEVICE_ID", "thermostat-1")
	t.Setenv("IOTHUB_DEVICE_DPS_DEVICE_KEY", "a2V5")
	t.Setenv("IOTHUB_DEVICE_DPS_ENDPOINT", "dps.example.net")

	settings, err := LoadConnectionSettings()

	require.NoError(t, err)
	assert.Equal(t, "dps.example.net", settings.DPSEndpoint)
	assert.Equal(t, "thermostat-1", settings.DPSDeviceID)
}

func TestConnectionSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings ConnectionSettings
		wantErr  string
	}{
		{name: "unknown type", settings: ConnectionSettings{SecurityType: "x509"}, wantErr: "unknown IOTHUB_DEVICE_SECURITY_TYPE"},
		{name: "missing connection string", settings: ConnectionSettings{SecurityType: SecurityTypeConnectionString}, wantErr: "IOTHUB_DEVICE_CONNECTION_STRING"},
		{name: "missing dps key", settings: ConnectionSettings{SecurityType: SecurityTypeDPS, DPSIDScope: "s", DPSDeviceID: "d"}, wantErr: "IOTHUB_DEVICE_DPS_DEVICE_KEY"},
		{name: "complete dps", settings: ConnectionSettings{SecurityType: SecurityTypeDPS, DPSIDScope: "s", DPSDeviceID: "d", DPSDeviceKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
