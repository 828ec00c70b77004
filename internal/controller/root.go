// Package controller implements the root and deviceInformation components of
// the dtmi:com:example:TemperatureController;1 model.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/metrics_collectors"
	"github.com/benmeehan/pnp-device/internal/models"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

// Resetter is a component whose state is lost on reboot.
type Resetter interface {
	Reset()
}

// Root is the unnamed component of the temperature controller.
type Root struct {
	serialNumber string
	workingSet   metrics_collectors.MetricCollector
	resetters    []Resetter
	logger       zerolog.Logger

	mu     sync.Mutex
	reboot *time.Timer
}

// NewRoot creates the root component. workingSet is the collector backing the
// workingSet telemetry, and resetters are reset when a reboot fires.
func NewRoot(serialNumber string, workingSet metrics_collectors.MetricCollector, resetters []Resetter, logger zerolog.Logger) *Root {
	return &Root{
		serialNumber: serialNumber,
		workingSet:   workingSet,
		resetters:    resetters,
		logger:       logger.With().Str("component", "root").Logger(),
	}
}

// Name is empty for the root component.
func (r *Root) Name() string {
	return ""
}

// ReportedProperties returns serialNumber.
func (r *Root) ReportedProperties(_ context.Context) ([]properties.ReportedProperty, error) {
	value, err := json.Marshal(r.serialNumber)
	if err != nil {
		return nil, err
	}
	return []properties.ReportedProperty{{
		StructVersion: properties.ReportedPropertyStructVersion1,
		Name:          constants.PropertySerialNumber,
		Value:         string(value),
	}}, nil
}

// HandleCommand schedules a reboot after the requested delay in seconds.
func (r *Root) HandleCommand(_ context.Context, command string, payload []byte) (int, []byte) {
	if command != constants.CommandReboot {
		r.logger.Warn().Str("command", command).Msg("Command is not supported on the root component")
		return constants.StatusNotFound, nil
	}

	delay, err := parseRebootDelay(payload)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Invalid reboot request")
		return constants.StatusBadRequest, nil
	}

	r.scheduleReboot(delay)
	r.logger.Info().Dur("delay", delay).Msg("Reboot scheduled")
	return constants.StatusSuccess, nil
}

// Telemetry returns the workingSet message.
func (r *Root) Telemetry(ctx context.Context) ([]byte, error) {
	if r.workingSet == nil {
		return nil, errors.New("no working set collector")
	}
	workingSet, ok := r.workingSet.Collect(ctx).(*float64)
	if !ok || workingSet == nil {
		return nil, errors.New("working set is not available")
	}
	return json.Marshal(models.WorkingSetTelemetry{WorkingSet: *workingSet})
}

// Close cancels a pending reboot.
func (r *Root) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reboot != nil {
		r.reboot.Stop()
		r.reboot = nil
	}
}

func (r *Root) scheduleReboot(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// a newer request replaces the pending one
	if r.reboot != nil {
		r.reboot.Stop()
	}
	r.reboot = time.AfterFunc(delay, func() {
		r.logger.Info().Msg("Rebooting, statistics reset")
		for _, c := range r.resetters {
			c.Reset()
		}
	})
}

func parseRebootDelay(payload []byte) (time.Duration, error) {
	var seconds int
	if err := json.Unmarshal(payload, &seconds); err != nil {
		var req models.RebootRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return 0, fmt.Errorf("delay must be an integer: %w", err)
		}
		seconds = req.Delay
	}
	if seconds < 0 {
		return 0, errors.New("delay must not be negative: " + strconv.Itoa(seconds))
	}
	return time.Duration(seconds) * time.Second, nil
}
