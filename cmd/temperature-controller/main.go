// Command temperature-controller runs the multi-component Plug and Play
// device implementing dtmi:com:example:TemperatureController;1.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/bootstrap"
	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/controller"
	"github.com/benmeehan/pnp-device/internal/metrics_collectors"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/thermostat"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/file"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	logger, err := utils.NewLogger(config.Logging.Level, config.Logging.Format, os.Stdout)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to create logger")
	}

	settings, err := utils.LoadConnectionSettings()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid connection settings")
	}

	thermostat1, err := thermostat.New(constants.Thermostat1Component, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create thermostat1")
	}
	thermostat2, err := thermostat.New(constants.Thermostat2Component, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create thermostat2")
	}

	// Host facts behind deviceInformation and the workingSet telemetry
	workingSet := &metrics_collectors.ProcessMetricCollector{Logger: logger}
	metrics := metrics_collectors.NewMetricsRegistry()
	metrics.Register(&metrics_collectors.CPUMetricCollector{Logger: logger})
	metrics.Register(&metrics_collectors.DiskMetricCollector{Logger: logger, Path: config.Device.StoragePath})
	metrics.Register(&metrics_collectors.MemoryMetricCollector{Logger: logger})
	metrics.Register(&metrics_collectors.HostMetricCollector{Logger: logger})
	metrics.Register(workingSet)

	deviceInfo, err := controller.NewDeviceInformation(
		constants.DeviceInformationComponent,
		controller.DeviceDetails{
			Manufacturer:          config.Device.Manufacturer,
			Model:                 config.Device.Model,
			SoftwareVersion:       config.Device.SoftwareVersion,
			ProcessorManufacturer: config.Device.ProcessorManufacturer,
		},
		metrics,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create deviceInformation")
	}

	root := controller.NewRoot(config.Device.SerialNumber, workingSet,
		[]controller.Resetter{thermostat1, thermostat2}, logger)
	defer root.Close()

	device, err := pnp.NewDevice(constants.TemperatureControllerModelID, root, thermostat1, thermostat2, deviceInfo)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble device")
	}

	if err := bootstrap.Run(config, settings, device, fileClient, logger); err != nil {
		root.Close()
		logger.Fatal().Err(err).Msg("Temperature controller stopped")
	}
}
