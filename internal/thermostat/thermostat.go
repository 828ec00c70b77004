// Package thermostat implements the dtmi:com:example:Thermostat;1 interface,
// either as a whole device or as a component of one.
package thermostat

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/models"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

// Thermostat tracks the current temperature and its statistics since start or
// the last reset.
type Thermostat struct {
	name   string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   float64
	max       float64
	min       float64
	total     float64
	count     int
	startTime time.Time
	// history is a bounded log of readings, oldest first
	history []models.Reading
}

// Option configures a Thermostat.
type Option func(*Thermostat)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Thermostat) { t.now = now }
}

// New creates a thermostat. componentName is empty when the thermostat is the
// root of the device.
func New(componentName string, logger zerolog.Logger, opts ...Option) (*Thermostat, error) {
	if componentName != "" {
		if err := properties.ValidateComponentName(componentName); err != nil {
			return nil, err
		}
	}
	label := componentName
	if label == "" {
		label = "root"
	}
	t := &Thermostat{
		name:   componentName,
		logger: logger.With().Str("component", label).Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t, nil
}

// Name returns the component name.
func (t *Thermostat) Name() string {
	return t.name
}

// Reset returns the statistics to the default temperature, as after a reboot.
func (t *Thermostat) Reset() {
	now := t.timestamp()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = constants.DefaultTemperature
	t.max = constants.DefaultTemperature
	t.min = constants.DefaultTemperature
	t.total = constants.DefaultTemperature
	t.count = 1
	t.startTime = now
	t.history = append(t.history[:0], models.Reading{Value: models.Celsius(constants.DefaultTemperature), At: now})
}

// CurrentTemperature returns the last temperature set.
func (t *Thermostat) CurrentTemperature() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// HandleWritableProperty applies targetTemperature. A new maximum is returned
// as a maxTempSinceLastReboot report alongside the acknowledgement.
func (t *Thermostat) HandleWritableProperty(_ context.Context, prop *properties.DeserializedProperty, version int) pnp.PropertyUpdate {
	response := properties.WritablePropertyResponse{
		StructVersion: properties.WritablePropertyResponseStructVersion1,
		Name:          prop.Name,
		Value:         prop.Value,
		AckVersion:    version,
	}

	if prop.Name != constants.PropertyTargetTemperature {
		t.logger.Warn().Str("property", prop.Name).Msg("Property is not part of the thermostat interface")
		response.Result = constants.StatusNotFound
		response.Description = constants.DescriptionUnknownProperty
		return pnp.PropertyUpdate{Response: response}
	}

	target, err := strconv.ParseFloat(prop.Value, 64)
	if err != nil {
		t.logger.Warn().Str("value", prop.Value).Msg("Desired temperature is not a number")
		response.Result = constants.StatusBadRequest
		response.Description = constants.DescriptionNotANumber
		return pnp.PropertyUpdate{Response: response}
	}

	t.logger.Info().Float64("target_temperature", target).Int("version", version).Msg("Received targetTemperature")
	maxUpdated := t.record(target)

	response.Value = formatTemperature(target)
	response.Result = constants.StatusSuccess
	response.Description = constants.DescriptionSuccess

	update := pnp.PropertyUpdate{Response: response}
	if maxUpdated {
		update.Reported = []properties.ReportedProperty{t.maxTempProperty()}
	}
	return update
}

// ReportedProperties returns maxTempSinceLastReboot.
func (t *Thermostat) ReportedProperties(_ context.Context) ([]properties.ReportedProperty, error) {
	return []properties.ReportedProperty{t.maxTempProperty()}, nil
}

// HandleCommand runs getMaxMinReport. The payload is the RFC 3339 time the
// report starts from.
func (t *Thermostat) HandleCommand(_ context.Context, command string, payload []byte) (int, []byte) {
	if command != constants.CommandGetMaxMinReport {
		t.logger.Warn().Str("command", command).Msg("Command is not supported on thermostat")
		return constants.StatusNotFound, nil
	}

	since, err := parseSince(payload)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Invalid getMaxMinReport request")
		return constants.StatusBadRequest, nil
	}

	body, err := json.Marshal(t.MaxMinReport(since))
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to serialize getMaxMinReport response")
		return constants.StatusInternalError, nil
	}
	return constants.StatusSuccess, body
}

// Telemetry returns the current temperature message.
func (t *Thermostat) Telemetry(_ context.Context) ([]byte, error) {
	return json.Marshal(models.TemperatureTelemetry{Temperature: models.Celsius(t.CurrentTemperature())})
}

// MaxMinReport summarizes the readings taken at or after since. A zero since
// covers everything since start.
func (t *Thermostat) MaxMinReport(since time.Time) models.MaxMinReport {
	now := t.timestamp()

	t.mu.Lock()
	defer t.mu.Unlock()

	if since.IsZero() || !since.After(t.startTime) {
		return models.MaxMinReport{
			MaxTemp:   models.Celsius(t.max),
			MinTemp:   models.Celsius(t.min),
			AvgTemp:   models.Celsius(t.total / float64(t.count)),
			StartTime: t.startTime,
			EndTime:   now,
		}
	}

	report := models.MaxMinReport{StartTime: since.UTC(), EndTime: now}
	var sum float64
	var n int
	for _, r := range t.history {
		if r.At.Before(since) {
			continue
		}
		v := float64(r.Value)
		if n == 0 || v > float64(report.MaxTemp) {
			report.MaxTemp = r.Value
		}
		if n == 0 || v < float64(report.MinTemp) {
			report.MinTemp = r.Value
		}
		sum += v
		n++
	}
	if n == 0 {
		// nothing changed in the window, so the current temperature held throughout
		report.MaxTemp = models.Celsius(t.current)
		report.MinTemp = models.Celsius(t.current)
		report.AvgTemp = models.Celsius(t.current)
		return report
	}
	report.AvgTemp = models.Celsius(sum / float64(n))
	return report
}

// record updates the statistics and reports whether the maximum rose.
func (t *Thermostat) record(value float64) bool {
	now := t.timestamp()

	t.mu.Lock()
	defer t.mu.Unlock()

	maxUpdated := false
	if value > t.max {
		t.max = value
		maxUpdated = true
	} else if value < t.min {
		t.min = value
	}
	t.count++
	t.total += value
	t.current = value

	if len(t.history) >= constants.TemperatureHistoryLimit {
		t.history = append(t.history[:0], t.history[1:]...)
	}
	t.history = append(t.history, models.Reading{Value: models.Celsius(value), At: now})
	return maxUpdated
}

func (t *Thermostat) maxTempProperty() properties.ReportedProperty {
	t.mu.Lock()
	defer t.mu.Unlock()

	return properties.ReportedProperty{
		StructVersion: properties.ReportedPropertyStructVersion1,
		Name:          constants.PropertyMaxTempSinceLastReboot,
		Value:         formatTemperature(t.max),
	}
}

// timestamp is the clock truncated to seconds in UTC, the resolution reports use.
func (t *Thermostat) timestamp() time.Time {
	return t.now().UTC().Truncate(time.Second)
}

func formatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func parseSince(payload []byte) (time.Time, error) {
	var raw string
	if err := json.Unmarshal(payload, &raw); err != nil {
		return time.Time{}, fmt.Errorf("payload is not a JSON string: %w", err)
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("since is not an RFC 3339 time: %w", err)
	}
	return since, nil
}
