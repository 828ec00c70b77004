package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/pkg/iothub"
)

// TelemetryService periodically sends the telemetry of every component that
// produces it.
type TelemetryService struct {
	Interval time.Duration
	Device   *pnp.Device
	Client   iothub.DeviceClientInterface
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(interval time.Duration, device *pnp.Device, client iothub.DeviceClientInterface, logger zerolog.Logger) *TelemetryService {
	return &TelemetryService{
		Interval: interval,
		Device:   device,
		Client:   client,
		Logger:   logger,
	}
}

// Start launches the telemetry loop in a separate goroutine.
func (s *TelemetryService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}
	if s.Interval <= 0 {
		return errors.New("telemetry interval must be positive")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTelemetryLoop()
	}()

	s.Logger.Info().Dur("interval", s.Interval).Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the telemetry service.
func (s *TelemetryService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

// runTelemetryLoop sends telemetry at the configured interval.
func (s *TelemetryService) runTelemetryLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendAll()
		case <-s.ctx.Done():
			s.Logger.Info().Msg("TelemetryService stopping gracefully")
			return
		}
	}
}

func (s *TelemetryService) sendAll() {
	for _, c := range s.Device.Components() {
		source, ok := c.(pnp.TelemetrySource)
		if !ok {
			continue
		}

		payload, err := source.Telemetry(s.ctx)
		if err != nil {
			s.Logger.Error().Err(err).Str("component", source.Name()).Msg("Failed to build telemetry")
			continue
		}

		if err := s.Client.SendTelemetry(s.ctx, source.Name(), payload); err != nil {
			s.Logger.Error().Err(err).Str("component", source.Name()).Msg("Failed to send telemetry")
		} else {
			s.Logger.Debug().Str("component", source.Name()).Bytes("payload", payload).Msg("Telemetry sent successfully")
		}
	}
}
