// Package bootstrap resolves which IoT Hub the device talks to and opens the
// MQTT connection to it.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/service_registry"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/file"
	"github.com/benmeehan/pnp-device/pkg/identity"
	"github.com/benmeehan/pnp-device/pkg/iothub"
	"github.com/benmeehan/pnp-device/pkg/mqtt"
	"github.com/benmeehan/pnp-device/pkg/provisioning"
	"github.com/benmeehan/pnp-device/pkg/sas"
)

const mqttPort = 8883

// Hub is where the device connects and the key it signs tokens with.
type Hub struct {
	HostName string
	DeviceID string
	Signer   *sas.Signer
}

// Dialer opens an MQTT connection.
type Dialer func(opts mqtt.ConnectOptions) (mqtt.MQTTClient, error)

// NewDialer returns a Dialer backed by paho.
func NewDialer(fileClient file.FileOperations, logger zerolog.Logger) Dialer {
	return func(opts mqtt.ConnectOptions) (mqtt.MQTTClient, error) {
		client := mqtt.NewMqttService(fileClient, logger)
		if err := client.Initialize(opts); err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Bootstrapper turns connection settings into a connected hub client.
type Bootstrapper struct {
	config     *utils.Config
	settings   *utils.ConnectionSettings
	modelID    string
	deviceInfo identity.DeviceInfoInterface
	dial       Dialer
	logger     zerolog.Logger

	// set when the hub came from the identity cache
	cached bool
}

// New creates a Bootstrapper. deviceInfo caches DPS assignments between runs.
func New(config *utils.Config, settings *utils.ConnectionSettings, modelID string,
	deviceInfo identity.DeviceInfoInterface, dial Dialer, logger zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{
		config:     config,
		settings:   settings,
		modelID:    modelID,
		deviceInfo: deviceInfo,
		dial:       dial,
		logger:     logger,
	}
}

// ResolveHub returns the hub from the connection string, or from DPS. A DPS
// assignment is reused from the identity cache when it matches the settings.
func (b *Bootstrapper) ResolveHub(ctx context.Context) (*Hub, error) {
	switch b.settings.SecurityType {
	case utils.SecurityTypeConnectionString:
		cs, err := iothub.ParseConnectionString(b.settings.ConnectionString)
		if err != nil {
			return nil, err
		}
		signer, err := sas.NewSigner(cs.SharedAccessKey)
		if err != nil {
			return nil, fmt.Errorf("invalid SharedAccessKey: %w", err)
		}
		return &Hub{HostName: cs.HostName, DeviceID: cs.DeviceID, Signer: signer}, nil

	case utils.SecurityTypeDPS:
		signer, err := sas.NewSigner(b.settings.DPSDeviceKey)
		if err != nil {
			return nil, fmt.Errorf("invalid DPS device key: %w", err)
		}

		if err := b.deviceInfo.LoadDeviceInfo(); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to load cached identity, provisioning again")
		}
		cached := b.deviceInfo.GetDeviceIdentity()
		if cached.AssignedHub != "" && cached.DeviceID != "" &&
			cached.IDScope == b.settings.DPSIDScope && cached.RegistrationID == b.settings.DPSDeviceID {
			b.logger.Info().Str("assigned_hub", cached.AssignedHub).Msg("Using cached DPS assignment")
			b.cached = true
			return &Hub{HostName: cached.AssignedHub, DeviceID: b.deviceInfo.GetDeviceID(), Signer: signer}, nil
		}

		assignment, err := b.provision(ctx, signer)
		if err != nil {
			return nil, err
		}
		err = b.deviceInfo.SaveIdentity(identity.Identity{
			IDScope:        b.settings.DPSIDScope,
			RegistrationID: b.settings.DPSDeviceID,
			AssignedHub:    assignment.AssignedHub,
			DeviceID:       assignment.DeviceID,
		})
		if err != nil {
			b.logger.Warn().Err(err).Msg("Failed to cache DPS assignment")
		}
		return &Hub{HostName: assignment.AssignedHub, DeviceID: assignment.DeviceID, Signer: signer}, nil

	default:
		return nil, fmt.Errorf("unknown security type %q", b.settings.SecurityType)
	}
}

// provision registers with DPS over a short lived connection.
func (b *Bootstrapper) provision(ctx context.Context, signer *sas.Signer) (*provisioning.Assignment, error) {
	idScope, regID := b.settings.DPSIDScope, b.settings.DPSDeviceID
	logger := b.logger.With().Str("endpoint", b.settings.DPSEndpoint).Logger()

	client, err := b.dial(mqtt.ConnectOptions{
		Broker:         fmt.Sprintf("ssl://%s:%d", b.settings.DPSEndpoint, mqttPort),
		ClientID:       regID,
		CACertPath:     b.config.MQTT.CACertificate,
		Credentials:    provisioning.Credentials(idScope, regID, signer, b.tokenTTL(), logger),
		KeepAlive:      time.Duration(b.config.MQTT.KeepAlive) * time.Second,
		ConnectTimeout: time.Duration(b.config.MQTT.ConnectTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DPS: %w", err)
	}
	defer client.Disconnect(b.config.MQTT.DisconnectQuiet)

	transport := service_registry.BuildMiddlewareChain(b.config, client, logger)
	dps := provisioning.NewClient(
		idScope,
		regID,
		b.modelID,
		b.config.MQTT.QOS,
		b.config.Provisioning.MaxAttempts,
		time.Duration(b.config.Provisioning.BaseDelay)*time.Second,
		time.Duration(b.config.Provisioning.MaxBackoff)*time.Second,
		time.Duration(b.config.Provisioning.ResponseTimeout)*time.Second,
		transport,
		logger,
	)
	return dps.Register(ctx)
}

// ConnectHub opens the long lived hub connection. Tokens are re-signed on
// every reconnect. A failed connection to a cached hub drops the cache so the
// next start provisions again.
func (b *Bootstrapper) ConnectHub(hub *Hub) (mqtt.MQTTClient, error) {
	client, err := b.dial(mqtt.ConnectOptions{
		Broker:         fmt.Sprintf("ssl://%s:%d", hub.HostName, mqttPort),
		ClientID:       hub.DeviceID,
		CACertPath:     b.config.MQTT.CACertificate,
		Credentials:    iothub.Credentials(hub.HostName, hub.DeviceID, b.modelID, hub.Signer, b.tokenTTL(), b.logger),
		KeepAlive:      time.Duration(b.config.MQTT.KeepAlive) * time.Second,
		ConnectTimeout: time.Duration(b.config.MQTT.ConnectTimeout) * time.Second,
		AutoReconnect:  true,
	})
	if err != nil {
		if b.cached {
			if clearErr := b.deviceInfo.ClearIdentity(); clearErr != nil {
				b.logger.Warn().Err(clearErr).Msg("Failed to clear cached identity")
			}
		}
		return nil, fmt.Errorf("failed to connect to IoT Hub %s: %w", hub.HostName, err)
	}
	return client, nil
}

func (b *Bootstrapper) tokenTTL() time.Duration {
	return time.Duration(b.config.MQTT.SASTokenTTL) * time.Second
}
