// Package pnp describes the components of a Plug and Play device and the
// capabilities the services look for on them.
package pnp

import (
	"context"
	"errors"
	"fmt"

	"github.com/benmeehan/pnp-device/pkg/properties"
)

// ErrUnknownComponent is returned when a request targets a component the device does not have.
var ErrUnknownComponent = errors.New("unknown component")

// Component is a named part of a device. The root component has an empty name.
type Component interface {
	Name() string
}

// PropertyUpdate is the outcome of applying one writable property.
type PropertyUpdate struct {
	Response properties.WritablePropertyResponse
	// Reported holds read-only properties that changed as a side effect.
	Reported []properties.ReportedProperty
}

// WritableHandler is implemented by components with writable properties.
type WritableHandler interface {
	Component
	HandleWritableProperty(ctx context.Context, prop *properties.DeserializedProperty, version int) PropertyUpdate
}

// Reporter is implemented by components that report read-only properties
// when the device starts.
type Reporter interface {
	Component
	ReportedProperties(ctx context.Context) ([]properties.ReportedProperty, error)
}

// CommandHandler is implemented by components that accept commands. It
// returns the status code and the JSON response body.
type CommandHandler interface {
	Component
	HandleCommand(ctx context.Context, command string, payload []byte) (int, []byte)
}

// TelemetrySource is implemented by components that emit telemetry.
type TelemetrySource interface {
	Component
	Telemetry(ctx context.Context) ([]byte, error)
}

// Device is a model id and its components.
type Device struct {
	ModelID    string
	components map[string]Component
	order      []string
}

// NewDevice builds a device. Component names other than the root must be
// valid DTDL component names and unique.
func NewDevice(modelID string, components ...Component) (*Device, error) {
	d := &Device{
		ModelID:    modelID,
		components: make(map[string]Component, len(components)),
	}
	for _, c := range components {
		name := c.Name()
		if name != "" {
			if err := properties.ValidateComponentName(name); err != nil {
				return nil, err
			}
		}
		if _, exists := d.components[name]; exists {
			return nil, fmt.Errorf("component %q registered twice", name)
		}
		d.components[name] = c
		d.order = append(d.order, name)
	}
	return d, nil
}

// Component returns the component called name.
func (d *Device) Component(name string) (Component, error) {
	c, ok := d.components[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return c, nil
}

// Components returns the components in registration order.
func (d *Device) Components() []Component {
	out := make([]Component, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.components[name])
	}
	return out
}

// ComponentNames returns the names of the non-root components, which is the
// list twin documents are parsed against.
func (d *Device) ComponentNames() []string {
	var names []string
	for _, name := range d.order {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
