package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/iothub"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

// PropertyService keeps the device twin in step with the components. On
// start it reports read-only properties and applies the desired properties of
// the full twin, then applies every desired patch as it arrives.
//
// Patches are processed in arrival order only with a single worker.
type PropertyService struct {
	workers int
	timeout time.Duration

	device   *pnp.Device
	client   iothub.DeviceClientInterface
	reporter *pnp.PropertyReporter
	logger   zerolog.Logger

	pool   *utils.WorkerPool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPropertyService initializes a new PropertyService.
func NewPropertyService(workers int, timeout time.Duration, device *pnp.Device, client iothub.DeviceClientInterface, logger zerolog.Logger) *PropertyService {
	return &PropertyService{
		workers:  workers,
		timeout:  timeout,
		device:   device,
		client:   client,
		reporter: pnp.NewPropertyReporter(client, logger),
		logger:   logger,
	}
}

// Start subscribes to desired patches, sends the initial reported properties
// and processes the full twin.
func (ps *PropertyService) Start() error {
	if ps.ctx != nil {
		return errors.New("property service is already running")
	}

	ps.ctx, ps.cancel = context.WithCancel(context.Background())
	ps.pool = utils.NewWorkerPool(ps.workers)

	// subscribe first so no patch between the GET and the subscription is lost
	ctx, pool := ps.ctx, ps.pool
	handler := func(payloadType properties.PayloadType, payload []byte) {
		ps.dispatch(ctx, pool, payloadType, payload)
	}
	if err := ps.client.SubscribeToProperties(handler); err != nil {
		ps.shutdown()
		return fmt.Errorf("failed to subscribe to desired properties: %w", err)
	}

	ps.reportInitialProperties()

	twin, err := ps.fetchTwin()
	if err != nil {
		if unsubErr := ps.client.UnsubscribeFromProperties(); unsubErr != nil {
			ps.logger.Warn().Err(unsubErr).Msg("Failed to unsubscribe from desired properties")
		}
		ps.shutdown()
		return err
	}
	ps.dispatch(ctx, pool, properties.PayloadAll, twin)

	ps.logger.Info().Strs("components", ps.device.ComponentNames()).Msg("PropertyService started successfully")
	return nil
}

// Stop unsubscribes and waits for queued payloads to be processed.
func (ps *PropertyService) Stop() error {
	if ps.ctx == nil {
		return errors.New("property service is not running")
	}

	err := ps.client.UnsubscribeFromProperties()
	if err != nil {
		ps.logger.Error().Err(err).Msg("Failed to unsubscribe from desired properties")
	}
	ps.shutdown()

	ps.logger.Info().Msg("PropertyService stopped successfully")
	return err
}

func (ps *PropertyService) shutdown() {
	ps.pool.Shutdown()
	ps.cancel()
	ps.ctx = nil
	ps.cancel = nil
}

func (ps *PropertyService) fetchTwin() ([]byte, error) {
	ctx, cancel := context.WithTimeout(ps.ctx, ps.timeout)
	defer cancel()

	twin, err := ps.client.GetProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device twin: %w", err)
	}
	return twin, nil
}

// reportInitialProperties sends the read-only properties of each component.
// A component that fails is logged and skipped.
func (ps *PropertyService) reportInitialProperties() {
	for _, c := range ps.device.Components() {
		reporter, ok := c.(pnp.Reporter)
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(ps.ctx, ps.timeout)
		props, err := reporter.ReportedProperties(ctx)
		if err == nil {
			err = ps.reporter.Report(ctx, reporter.Name(), props)
		}
		cancel()

		if err != nil {
			ps.logger.Error().Err(err).Str("component", reporter.Name()).Msg("Failed to report initial properties")
		}
	}
}

func (ps *PropertyService) dispatch(ctx context.Context, pool *utils.WorkerPool, payloadType properties.PayloadType, payload []byte) {
	if err := pool.Submit(func() { ps.process(ctx, payloadType, payload) }); err != nil {
		ps.logger.Warn().Err(err).Msg("Received properties but service is stopping, ignoring them")
	}
}

// process applies every writable property of a twin document.
func (ps *PropertyService) process(ctx context.Context, payloadType properties.PayloadType, payload []byte) {
	it, err := properties.NewIterator(payloadType, payload, ps.device.ComponentNames())
	if err != nil {
		ps.logger.Error().Err(err).Stringer("payload_type", payloadType).Msg("Failed to parse twin document")
		return
	}
	defer it.Close()

	version, err := it.Version()
	if err != nil {
		ps.logger.Error().Err(err).Msg("Failed to read twin version")
		return
	}
	ps.logger.Info().Stringer("payload_type", payloadType).Int("version", version).Msg("Processing twin document")

	prop := properties.DeserializedProperty{StructVersion: properties.DeserializedPropertyStructVersion1}
	for {
		more, err := it.Next(&prop)
		if err != nil {
			ps.logger.Error().Err(err).Msg("Failed to read property")
			return
		}
		if !more {
			return
		}

		if prop.PropertyType == properties.PropertyTypeReportedFromDevice {
			ps.logger.Debug().Str("component", prop.ComponentName).Str("property", prop.Name).
				Msg("Skipping property reported by the device")
		} else {
			ps.apply(ctx, &prop, version)
		}
		prop.Release()
	}
}

func (ps *PropertyService) apply(ctx context.Context, prop *properties.DeserializedProperty, version int) {
	ctx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	logger := ps.logger.With().Str("component", prop.ComponentName).Str("property", prop.Name).Logger()

	var update pnp.PropertyUpdate
	component, err := ps.device.Component(prop.ComponentName)
	handler, ok := component.(pnp.WritableHandler)
	if err == nil && ok {
		update = handler.HandleWritableProperty(ctx, prop, version)
	} else {
		logger.Warn().Msg("No component handles this writable property")
		update.Response = properties.WritablePropertyResponse{
			StructVersion: properties.WritablePropertyResponseStructVersion1,
			Name:          prop.Name,
			Value:         prop.Value,
			Result:        constants.StatusNotFound,
			AckVersion:    version,
			Description:   constants.DescriptionUnknownProperty,
		}
	}

	if err := ps.reporter.Acknowledge(ctx, prop.ComponentName, []properties.WritablePropertyResponse{update.Response}); err != nil {
		logger.Error().Err(err).Msg("Failed to acknowledge writable property")
	}
	if err := ps.reporter.Report(ctx, prop.ComponentName, update.Reported); err != nil {
		logger.Error().Err(err).Msg("Failed to report updated properties")
	}
}
