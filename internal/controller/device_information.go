package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/metrics_collectors"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

// DeviceDetails are the deviceInformation values that come from configuration.
type DeviceDetails struct {
	Manufacturer string
	Model        string
	// SoftwareVersion must be a semantic version.
	SoftwareVersion string
	// ProcessorManufacturer overrides the detected CPU vendor when set.
	ProcessorManufacturer string
}

// DeviceInformation is the deviceInformation component. Its properties are
// read-only and reported once at start.
type DeviceInformation struct {
	name    string
	details DeviceDetails
	version *semver.Version
	metrics *metrics_collectors.MetricsRegistry
	logger  zerolog.Logger
}

// NewDeviceInformation validates details and creates the component.
func NewDeviceInformation(name string, details DeviceDetails, metrics *metrics_collectors.MetricsRegistry, logger zerolog.Logger) (*DeviceInformation, error) {
	if err := properties.ValidateComponentName(name); err != nil {
		return nil, err
	}
	version, err := semver.NewVersion(details.SoftwareVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid software version %q: %w", details.SoftwareVersion, err)
	}
	return &DeviceInformation{
		name:    name,
		details: details,
		version: version,
		metrics: metrics,
		logger:  logger.With().Str("component", name).Logger(),
	}, nil
}

func (d *DeviceInformation) Name() string {
	return d.name
}

// ReportedProperties collects the host facts. Facts that cannot be read are
// left out rather than failing the whole report.
func (d *DeviceInformation) ReportedProperties(ctx context.Context) ([]properties.ReportedProperty, error) {
	var props []properties.ReportedProperty
	addString := func(name, value string) {
		if value == "" {
			d.logger.Warn().Str("property", name).Msg("Property has no value, not reporting it")
			return
		}
		quoted, err := json.Marshal(value)
		if err != nil {
			d.logger.Error().Err(err).Str("property", name).Msg("Failed to encode property")
			return
		}
		props = append(props, reported(name, string(quoted)))
	}
	addNumber := func(name string, value *float64) {
		if value == nil {
			d.logger.Warn().Str("property", name).Msg("Property has no value, not reporting it")
			return
		}
		props = append(props, reported(name, strconv.FormatFloat(*value, 'f', -1, 64)))
	}

	addString(constants.PropertyManufacturer, d.details.Manufacturer)
	addString(constants.PropertyModel, d.details.Model)
	addString(constants.PropertySoftwareVersion, d.version.String())

	var hostInfo metrics_collectors.HostInfo
	if info, ok := d.collect(ctx, "host").(*metrics_collectors.HostInfo); ok && info != nil {
		hostInfo = *info
	}
	addString(constants.PropertyOSName, hostInfo.OSName)
	addString(constants.PropertyProcessorArchitecture, hostInfo.Architecture)

	vendor := d.details.ProcessorManufacturer
	if vendor == "" {
		vendor, _ = d.collect(ctx, "cpu").(string)
	}
	addString(constants.PropertyProcessorManufacturer, vendor)

	storage, _ := d.collect(ctx, "disk").(*float64)
	addNumber(constants.PropertyTotalStorage, storage)
	memory, _ := d.collect(ctx, "memory").(*float64)
	addNumber(constants.PropertyTotalMemory, memory)

	return props, nil
}

func (d *DeviceInformation) collect(ctx context.Context, name string) interface{} {
	collector, ok := d.metrics.Get(name)
	if !ok {
		d.logger.Warn().Str("collector", name).Msg("Collector is not registered")
		return nil
	}
	return collector.Collect(ctx)
}

func reported(name, value string) properties.ReportedProperty {
	return properties.ReportedProperty{
		StructVersion: properties.ReportedPropertyStructVersion1,
		Name:          name,
		Value:         value,
	}
}
