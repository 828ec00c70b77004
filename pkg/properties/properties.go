// Package properties converts IoT Plug and Play properties to and from the
// device twin JSON documents exchanged with IoT Hub.
//
// Outgoing properties are serialized with SerializeReportedProperties and
// SerializeWritablePropertyResponses. Incoming twin documents are walked with
// an Iterator created by NewIterator.
package properties

import (
	"errors"
	"fmt"
)

// Struct versions accepted by this package. A value carrying any other
// version is rejected before it is used.
const (
	ReportedPropertyStructVersion1         = 1
	WritablePropertyResponseStructVersion1 = 1
	DeserializedPropertyStructVersion1     = 1
)

// MaxComponentNameLength is the longest component name allowed by DTDL.
const MaxComponentNameLength = 64

const (
	componentMarkerName  = "__t"
	componentMarkerValue = "c"
	versionName          = "$version"
	desiredName          = "desired"
	reportedName         = "reported"
)

var (
	// ErrInvalidArg is returned when an argument is rejected before any JSON work.
	ErrInvalidArg = errors.New("properties: invalid argument")
	// ErrParse is returned when a twin document is malformed or has no $version.
	ErrParse = errors.New("properties: unable to parse twin document")
	// ErrIteratorClosed is returned by an Iterator after Close.
	ErrIteratorClosed = errors.New("properties: iterator is closed")
)

// PayloadType tells NewIterator which twin document shape it is given.
type PayloadType int

const (
	// PayloadAll is a full twin with "desired" and "reported" sections.
	PayloadAll PayloadType = iota + 1
	// PayloadWritableUpdates is a desired properties PATCH.
	PayloadWritableUpdates
)

func (t PayloadType) String() string {
	switch t {
	case PayloadAll:
		return "all"
	case PayloadWritableUpdates:
		return "writable_updates"
	default:
		return "unknown"
	}
}

// PropertyType classifies a deserialized property by the twin section it came from.
type PropertyType int

const (
	// PropertyTypeReportedFromDevice is an echo of a value the device reported.
	PropertyTypeReportedFromDevice PropertyType = iota + 1
	// PropertyTypeWritable is a value the service asks the device to apply.
	PropertyTypeWritable
)

func (t PropertyType) String() string {
	switch t {
	case PropertyTypeReportedFromDevice:
		return "reported_from_device"
	case PropertyTypeWritable:
		return "writable"
	default:
		return "unknown"
	}
}

// ValueType tags the representation of DeserializedProperty.Value.
type ValueType int

const (
	// ValueTypeString means Value holds the compact JSON text of the property.
	ValueTypeString ValueType = iota + 1
)

// ReportedProperty is a name and a JSON value the device reports.
type ReportedProperty struct {
	StructVersion int
	Name          string
	// Value is JSON text copied verbatim into the document.
	Value string
}

// WritablePropertyResponse acknowledges a writable property update.
type WritablePropertyResponse struct {
	StructVersion int
	Name          string
	// Value is JSON text copied verbatim into the document.
	Value string
	// Result is the ack code, usually an HTTP style status.
	Result int
	// AckVersion echoes the twin version being acknowledged.
	AckVersion int
	// Description is optional and omitted when empty.
	Description string
}

// DeserializedProperty is one property read from a twin document.
type DeserializedProperty struct {
	StructVersion int
	PropertyType  PropertyType
	// ComponentName is empty for properties of the root component.
	ComponentName string
	Name          string
	ValueType     ValueType
	Value         string
	ValueLength   int
}

// Release clears the per-property data filled in by Iterator.Next. The
// struct version is kept so the value can be passed to Next again.
func (p *DeserializedProperty) Release() {
	if p == nil {
		return
	}
	*p = DeserializedProperty{StructVersion: p.StructVersion}
}

// ValidateComponentName checks a component name against the DTDL limits.
func ValidateComponentName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: component name is empty", ErrInvalidArg)
	}
	if len(name) > MaxComponentNameLength {
		return fmt.Errorf("%w: component name %q exceeds %d characters", ErrInvalidArg, name, MaxComponentNameLength)
	}
	return nil
}
