// Command thermostat runs a single-component Plug and Play thermostat
// implementing dtmi:com:example:Thermostat;1.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/bootstrap"
	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/thermostat"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/file"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Initialize file operations handler
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

	// The thermostat is the root component of its own model
	t, err := thermostat.New("", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create thermostat")
	}

	device, err := pnp.NewDevice(constants.ThermostatModelID, t)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble device")
	}

	if err := bootstrap.Run(config, settings, device, fileClient, logger); err != nil {
		logger.Fatal().Err(err).Msg("Thermostat stopped")
	}
}
