package properties

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// member is one key/value pair of a JSON object, kept in document order.
type member struct {
	name  string
	value []byte
}

type section struct {
	propertyType PropertyType
	members      []member
}

// Iterator walks the properties of a twin document. Writable properties from
// the desired section come first, then the reported section for full twins.
// Members of a known component are expanded in place and carry its name.
//
// An Iterator is not safe for concurrent use.
type Iterator struct {
	version    int
	sections   []section
	components map[string]struct{}

	sectionIdx int
	memberIdx  int

	// set while the members of a component are being returned
	inComponent   bool
	componentName string
	componentIdx  int
	componentBody []member

	closed bool
}

// NewIterator parses payload and returns an Iterator over its properties.
// components lists the component names of the device model; members of the
// document matching one of them are treated as components.
//
// Arguments are checked before the payload is parsed. A malformed document
// or one without a $version returns ErrParse.
func NewIterator(payloadType PayloadType, payload []byte, components []string) (*Iterator, error) {
	if payloadType != PayloadAll && payloadType != PayloadWritableUpdates {
		return nil, fmt.Errorf("%w: unsupported payload type %d", ErrInvalidArg, int(payloadType))
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidArg)
	}
	known := make(map[string]struct{}, len(components))
	for _, name := range components {
		if err := ValidateComponentName(name); err != nil {
			return nil, err
		}
		known[strings.Clone(name)] = struct{}{}
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrParse)
	}
	root, err := decodeObject(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	it := &Iterator{components: known}
	switch payloadType {
	case PayloadWritableUpdates:
		it.sections = []section{{propertyType: PropertyTypeWritable, members: root}}
	case PayloadAll:
		desired, found, err := objectMember(root, desiredName)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: full twin has no %q section", ErrParse, desiredName)
		}
		it.sections = []section{{propertyType: PropertyTypeWritable, members: desired}}

		reported, found, err := objectMember(root, reportedName)
		if err != nil {
			return nil, err
		}
		if found {
			it.sections = append(it.sections, section{propertyType: PropertyTypeReportedFromDevice, members: reported})
		}
	}

	it.version, err = readVersion(it.sections[0].members)
	if err != nil {
		return nil, err
	}

	return it, nil
}

// Version returns the $version of the twin document.
func (it *Iterator) Version() (int, error) {
	if it == nil {
		return 0, fmt.Errorf("%w: nil iterator", ErrInvalidArg)
	}
	if it.closed {
		return 0, ErrIteratorClosed
	}
	return it.version, nil
}

// Next fills prop with the next property and reports whether one was found.
// Once the document is exhausted Next keeps returning false. On error prop is
// left unchanged.
func (it *Iterator) Next(prop *DeserializedProperty) (bool, error) {
	if it == nil {
		return false, fmt.Errorf("%w: nil iterator", ErrInvalidArg)
	}
	if it.closed {
		return false, ErrIteratorClosed
	}
	if prop == nil {
		return false, fmt.Errorf("%w: nil property", ErrInvalidArg)
	}
	if prop.StructVersion != DeserializedPropertyStructVersion1 {
		return false, fmt.Errorf("%w: property has struct version %d", ErrInvalidArg, prop.StructVersion)
	}

	for it.sectionIdx < len(it.sections) {
		sec := it.sections[it.sectionIdx]

		if it.inComponent {
			if it.componentIdx >= len(it.componentBody) {
				it.leaveComponent()
				continue
			}
			m := it.componentBody[it.componentIdx]
			it.componentIdx++
			if m.name == componentMarkerName || isReservedName(m.name) {
				continue
			}
			return it.fill(prop, sec.propertyType, it.componentName, m)
		}

		if it.memberIdx >= len(sec.members) {
			it.sectionIdx++
			it.memberIdx = 0
			continue
		}
		m := sec.members[it.memberIdx]
		it.memberIdx++
		if isReservedName(m.name) {
			continue
		}
		if _, ok := it.components[m.name]; ok && isObject(m.value) {
			body, err := decodeObject(m.value)
			if err != nil {
				return false, fmt.Errorf("%w: component %q: %v", ErrParse, m.name, err)
			}
			it.inComponent = true
			it.componentName = m.name
			it.componentBody = body
			it.componentIdx = 0
			continue
		}
		return it.fill(prop, sec.propertyType, "", m)
	}

	return false, nil
}

// Close releases the parsed document and the component names. Further calls
// on the Iterator return ErrIteratorClosed.
func (it *Iterator) Close() error {
	if it == nil {
		return fmt.Errorf("%w: nil iterator", ErrInvalidArg)
	}
	if it.closed {
		return ErrIteratorClosed
	}
	it.leaveComponent()
	it.sections = nil
	it.components = nil
	it.closed = true
	return nil
}

func (it *Iterator) leaveComponent() {
	it.inComponent = false
	it.componentName = ""
	it.componentBody = nil
	it.componentIdx = 0
}

func (it *Iterator) fill(prop *DeserializedProperty, propertyType PropertyType, componentName string, m member) (bool, error) {
	var value bytes.Buffer
	if err := json.Compact(&value, m.value); err != nil {
		return false, fmt.Errorf("%w: value of %q: %v", ErrParse, m.name, err)
	}

	*prop = DeserializedProperty{
		StructVersion: prop.StructVersion,
		PropertyType:  propertyType,
		ComponentName: componentName,
		Name:          m.name,
		ValueType:     ValueTypeString,
		Value:         value.String(),
		ValueLength:   value.Len(),
	}
	return true, nil
}

// isReservedName reports whether name is twin metadata such as $version or
// $metadata rather than a property.
func isReservedName(name string) bool {
	return strings.HasPrefix(name, "$")
}

func isObject(value []byte) bool {
	trimmed := bytes.TrimLeft(value, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func objectMember(members []member, name string) ([]member, bool, error) {
	for _, m := range members {
		if m.name != name {
			continue
		}
		if !isObject(m.value) {
			return nil, true, fmt.Errorf("%w: %q is not an object", ErrParse, name)
		}
		body, err := decodeObject(m.value)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %q: %v", ErrParse, name, err)
		}
		return body, true, nil
	}
	return nil, false, nil
}

func readVersion(members []member) (int, error) {
	for _, m := range members {
		if m.name != versionName {
			continue
		}
		var version int
		if err := json.Unmarshal(m.value, &version); err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer: %v", ErrParse, versionName, err)
		}
		return version, nil
	}
	return 0, fmt.Errorf("%w: %s not found", ErrParse, versionName)
}

// decodeObject splits a JSON object into its members without losing the
// order in which they appear.
func decodeObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("document root is not an object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v where a member name was expected", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		members = append(members, member{name: name, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after the document")
	}

	return members, nil
}
