package properties

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// SerializeReportedProperties builds the reported properties document for
// props. Values are written verbatim, so ("temp", "22") becomes {"temp":22}.
// When componentName is set the properties are nested under it with the
// component marker.
func SerializeReportedProperties(props []ReportedProperty, componentName string) ([]byte, error) {
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: no reported properties", ErrInvalidArg)
	}
	if componentName != "" {
		if err := ValidateComponentName(componentName); err != nil {
			return nil, err
		}
	}
	for i, p := range props {
		if p.StructVersion != ReportedPropertyStructVersion1 {
			return nil, fmt.Errorf("%w: reported property %d has struct version %d", ErrInvalidArg, i, p.StructVersion)
		}
		if p.Name == "" || p.Value == "" {
			return nil, fmt.Errorf("%w: reported property %d has an empty name or value", ErrInvalidArg, i)
		}
	}

	var buf bytes.Buffer
	if err := openDocument(&buf, componentName); err != nil {
		return nil, err
	}
	for i, p := range props {
		if i > 0 || componentName != "" {
			buf.WriteByte(',')
		}
		if err := writeName(&buf, p.Name); err != nil {
			return nil, err
		}
		buf.WriteString(p.Value)
	}
	closeDocument(&buf, componentName)

	return buf.Bytes(), nil
}

// SerializeWritablePropertyResponses builds the reported properties document
// acknowledging writable property updates. Each entry becomes
// "name":{"value":v,"ac":code,"av":version} with an optional "ad" description.
func SerializeWritablePropertyResponses(props []WritablePropertyResponse, componentName string) ([]byte, error) {
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: no writable property responses", ErrInvalidArg)
	}
	if componentName != "" {
		if err := ValidateComponentName(componentName); err != nil {
			return nil, err
		}
	}
	for i, p := range props {
		if p.StructVersion != WritablePropertyResponseStructVersion1 {
			return nil, fmt.Errorf("%w: writable property response %d has struct version %d", ErrInvalidArg, i, p.StructVersion)
		}
		if p.Name == "" || p.Value == "" {
			return nil, fmt.Errorf("%w: writable property response %d has an empty name or value", ErrInvalidArg, i)
		}
	}

	var buf bytes.Buffer
	if err := openDocument(&buf, componentName); err != nil {
		return nil, err
	}
	for i, p := range props {
		if i > 0 || componentName != "" {
			buf.WriteByte(',')
		}
		if err := writeName(&buf, p.Name); err != nil {
			return nil, err
		}
		buf.WriteString(`{"value":`)
		buf.WriteString(p.Value)
		buf.WriteString(`,"ac":`)
		buf.WriteString(strconv.Itoa(p.Result))
		buf.WriteString(`,"av":`)
		buf.WriteString(strconv.Itoa(p.AckVersion))
		if p.Description != "" {
			desc, err := json.Marshal(p.Description)
			if err != nil {
				return nil, fmt.Errorf("failed to encode description of %q: %w", p.Name, err)
			}
			buf.WriteString(`,"ad":`)
			buf.Write(desc)
		}
		buf.WriteByte('}')
	}
	closeDocument(&buf, componentName)

	return buf.Bytes(), nil
}

// openDocument writes the opening of the document. With a component it also
// writes the component key and its marker, leaving the writer inside the
// component object.
func openDocument(buf *bytes.Buffer, componentName string) error {
	buf.WriteByte('{')
	if componentName == "" {
		return nil
	}
	if err := writeName(buf, componentName); err != nil {
		return err
	}
	buf.WriteString(`{"` + componentMarkerName + `":"` + componentMarkerValue + `"`)
	return nil
}

func closeDocument(buf *bytes.Buffer, componentName string) {
	if componentName != "" {
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
}

func writeName(buf *bytes.Buffer, name string) error {
	quoted, err := json.Marshal(name)
	if err != nil {
		return fmt.Errorf("failed to encode property name %q: %w", name, err)
	}
	buf.Write(quoted)
	buf.WriteByte(':')
	return nil
}
