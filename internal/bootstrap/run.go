package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/service_registry"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/file"
	"github.com/benmeehan/pnp-device/pkg/identity"
	"github.com/benmeehan/pnp-device/pkg/iothub"
)

// Run connects device to its hub and serves it until SIGINT or SIGTERM.
func Run(config *utils.Config, settings *utils.ConnectionSettings, device *pnp.Device,
	fileClient file.FileOperations, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	b := New(config, settings, device.ModelID, deviceInfo, NewDialer(fileClient, logger), logger)

	hub, err := b.ResolveHub(ctx)
	if err != nil {
		return err
	}
	mqttClient, err := b.ConnectHub(hub)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(config.MQTT.DisconnectQuiet)

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, logger)
	transport := serviceRegistry.InitializeMiddlewares(config)

	client := iothub.NewDeviceClient(
		hub.DeviceID,
		config.MQTT.QOS,
		time.Duration(config.MQTT.ResponseTimeout)*time.Second,
		transport,
		logger.With().Str("device_id", hub.DeviceID).Logger(),
	)
	if err := client.Open(); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close device client")
		}
	}()

	if err := serviceRegistry.RegisterServices(config, device, client); err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}

	started := false
	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	g.Add(func() error {
		if err := serviceRegistry.StartServices(); err != nil {
			return err
		}
		started = true
		logger.Info().Str("model_id", device.ModelID).Msg("All services started successfully")
		<-ctx.Done()
		return nil
	}, func(error) {
		cancel()
	})

	err = g.Run()

	logger.Info().Msg("Shutting down gracefully...")
	if started {
		if stopErr := serviceRegistry.StopServices(); stopErr != nil {
			logger.Warn().Err(stopErr).Msg("Some services did not stop cleanly")
		}
	}

	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info().Str("signal", sigErr.Signal.String()).Msg("Received signal")
		return nil
	}
	return err
}
