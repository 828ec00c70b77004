package pnp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/pkg/iothub"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

// PropertyReporter serializes properties for a component and sends them as
// a reported properties patch.
type PropertyReporter struct {
	client iothub.DeviceClientInterface
	logger zerolog.Logger
}

// NewPropertyReporter creates a PropertyReporter.
func NewPropertyReporter(client iothub.DeviceClientInterface, logger zerolog.Logger) *PropertyReporter {
	return &PropertyReporter{client: client, logger: logger}
}

// Report sends read-only properties of componentName.
func (r *PropertyReporter) Report(ctx context.Context, componentName string, props []properties.ReportedProperty) error {
	if len(props) == 0 {
		return nil
	}
	payload, err := properties.SerializeReportedProperties(props, componentName)
	if err != nil {
		return fmt.Errorf("failed to serialize reported properties of %q: %w", componentName, err)
	}
	return r.send(ctx, componentName, payload)
}

// Acknowledge sends writable property responses of componentName.
func (r *PropertyReporter) Acknowledge(ctx context.Context, componentName string, responses []properties.WritablePropertyResponse) error {
	if len(responses) == 0 {
		return nil
	}
	payload, err := properties.SerializeWritablePropertyResponses(responses, componentName)
	if err != nil {
		return fmt.Errorf("failed to serialize writable property responses of %q: %w", componentName, err)
	}
	return r.send(ctx, componentName, payload)
}

func (r *PropertyReporter) send(ctx context.Context, componentName string, payload []byte) error {
	version, err := r.client.SendProperties(ctx, payload)
	if err != nil {
		return err
	}
	r.logger.Debug().Str("component", componentName).Int("version", version).Bytes("payload", payload).
		Msg("Reported properties accepted")
	return nil
}
