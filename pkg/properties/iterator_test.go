package properties_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/pkg/properties"
)

// collect drains it and returns every property it yields.
func collect(t *testing.T, it *properties.Iterator) []properties.DeserializedProperty {
	t.Helper()

	var out []properties.DeserializedProperty
	for {
		prop := properties.DeserializedProperty{StructVersion: properties.DeserializedPropertyStructVersion1}
		ok, err := it.Next(&prop)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, prop)
	}
}

func expected(propertyType properties.PropertyType, component, name, value string) properties.DeserializedProperty {
	return properties.DeserializedProperty{
		StructVersion: properties.DeserializedPropertyStructVersion1,
		PropertyType:  propertyType,
		ComponentName: component,
		Name:          name,
		ValueType:     properties.ValueTypeString,
		Value:         value,
		ValueLength:   len(value),
	}
}

func TestNewIterator_VersionOnlyPatchHasNoProperties(t *testing.T) {
	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(`{ "$version":17 }`), nil)
	require.NoError(t, err)
	defer it.Close()

	version, err := it.Version()
	require.NoError(t, err)
	assert.Equal(t, 17, version)
	assert.Empty(t, collect(t, it))
}

func TestNewIterator_ParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		payloadType properties.PayloadType
		payload     string
	}{
		{name: "not an object", payloadType: properties.PayloadWritableUpdates, payload: `44`},
		{name: "malformed", payloadType: properties.PayloadWritableUpdates, payload: `}{-not-valid`},
		{name: "patch without version", payloadType: properties.PayloadWritableUpdates, payload: `{"name1":1234}`},
		{name: "version is a string", payloadType: properties.PayloadWritableUpdates, payload: `{"$version":"17"}`},
		{name: "full twin without desired", payloadType: properties.PayloadAll, payload: `{"reported":{"$version":3}}`},
		{name: "full twin with root version only", payloadType: properties.PayloadAll, payload: `{"$version":3,"desired":{"name1":1}}`},
		{name: "desired is not an object", payloadType: properties.PayloadAll, payload: `{"desired":7}`},
		{name: "reported is not an object", payloadType: properties.PayloadAll, payload: `{"desired":{"$version":1},"reported":[]}`},
		{name: "trailing data", payloadType: properties.PayloadWritableUpdates, payload: `{"$version":1} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := properties.NewIterator(tt.payloadType, []byte(tt.payload), nil)

			assert.ErrorIs(t, err, properties.ErrParse)
			assert.Nil(t, it)
		})
	}
}

func TestNewIterator_InvalidArguments(t *testing.T) {
	tests := []struct {
		name        string
		payloadType properties.PayloadType
		payload     []byte
		components  []string
	}{
		{name: "unknown payload type", payloadType: properties.PayloadType(9), payload: []byte(`{"$version":1}`)},
		{name: "zero payload type", payloadType: 0, payload: []byte(`{"$version":1}`)},
		{name: "nil payload", payloadType: properties.PayloadAll, payload: nil},
		{name: "empty payload", payloadType: properties.PayloadAll, payload: []byte{}},
		{name: "empty component name", payloadType: properties.PayloadAll, payload: []byte(`{"desired":{"$version":1}}`), components: []string{""}},
		{name: "component name too long", payloadType: properties.PayloadAll, payload: []byte(`not even json`), components: []string{strings.Repeat("a", 65)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := properties.NewIterator(tt.payloadType, tt.payload, tt.components)

			assert.ErrorIs(t, err, properties.ErrInvalidArg)
			assert.Nil(t, it)
		})
	}
}

func TestIterator_WritableUpdatesAtRoot(t *testing.T) {
	payload := `{"name1":1234,"name2":"value2","name3":{"embeddedJSON":123},"$version":17}`

	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(payload), nil)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "", "name1", "1234"),
		expected(properties.PropertyTypeWritable, "", "name2", `"value2"`),
		expected(properties.PropertyTypeWritable, "", "name3", `{"embeddedJSON":123}`),
	}, collect(t, it))
}

func TestIterator_KeepsDocumentOrderAndNestedText(t *testing.T) {
	payload := `{"zeta":[1,{"b":2,"a":1}],"alpha":null,"$version":3,"mid":{"y":true,"x":"s"}}`

	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(payload), nil)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "", "zeta", `[1,{"b":2,"a":1}]`),
		expected(properties.PropertyTypeWritable, "", "alpha", "null"),
		expected(properties.PropertyTypeWritable, "", "mid", `{"y":true,"x":"s"}`),
	}, collect(t, it))
}

func TestIterator_FullTwinDesiredOnly(t *testing.T) {
	payload := `{ "desired": { "name1":1234, "name2":"value2", "$version":1010} }`

	it, err := properties.NewIterator(properties.PayloadAll, []byte(payload), nil)
	require.NoError(t, err)
	defer it.Close()

	version, err := it.Version()
	require.NoError(t, err)
	assert.Equal(t, 1010, version)
	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "", "name1", "1234"),
		expected(properties.PropertyTypeWritable, "", "name2", `"value2"`),
	}, collect(t, it))
}

func TestIterator_ComponentsInPatch(t *testing.T) {
	payload := `{"testComponent1":{"__t":"c","name1":1234,"name2":"value2"},"name3":{"embeddedJSON":123},"$version":17}`

	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(payload), []string{"testComponent1"})
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "testComponent1", "name1", "1234"),
		expected(properties.PropertyTypeWritable, "testComponent1", "name2", `"value2"`),
		expected(properties.PropertyTypeWritable, "", "name3", `{"embeddedJSON":123}`),
	}, collect(t, it))
}

func TestIterator_UnknownComponentIsRootProperty(t *testing.T) {
	payload := `{"testComponent1":{"__t":"c","name1":1234},"$version":17}`

	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(payload), []string{"testComponent2"})
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "", "testComponent1", `{"__t":"c","name1":1234}`),
	}, collect(t, it))
}

func TestIterator_DesiredBeforeReportedAcrossSixComponents(t *testing.T) {
	// reported is first in the document; desired properties must still come first.
	payload := `{ "reported": {` +
		`"testComponent4":{"__t":"c","name4":4321},` +
		`"testComponent5":{"__t":"c","name5":"value5"},` +
		`"testComponent6":{"__t":"c","name6":{"embeddedJSON":321}}},` +
		`  "desired": { ` +
		`"testComponent1":{"__t":"c","name1":1234},` +
		`"testComponent2":{"__t":"c","name2":"value2"},` +
		`"testComponent3":{"__t":"c","name3":{"embeddedJSON":123}},` +
		`"$version":17} }`
	components := []string{"testComponent1", "testComponent2", "testComponent3", "testComponent4", "testComponent5", "testComponent6"}

	it, err := properties.NewIterator(properties.PayloadAll, []byte(payload), components)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "testComponent1", "name1", "1234"),
		expected(properties.PropertyTypeWritable, "testComponent2", "name2", `"value2"`),
		expected(properties.PropertyTypeWritable, "testComponent3", "name3", `{"embeddedJSON":123}`),
		expected(properties.PropertyTypeReportedFromDevice, "testComponent4", "name4", "4321"),
		expected(properties.PropertyTypeReportedFromDevice, "testComponent5", "name5", `"value5"`),
		expected(properties.PropertyTypeReportedFromDevice, "testComponent6", "name6", `{"embeddedJSON":321}`),
	}, collect(t, it))
}

func TestIterator_SkipsTwinMetadata(t *testing.T) {
	payload := `{"desired":{"targetTemperature":42,"$metadata":{"$lastUpdated":"2021-01-01T00:00:00Z"},"$version":4},` +
		`"reported":{"maxTempSinceLastReboot":22.5,"$metadata":{},"$version":9}}`

	it, err := properties.NewIterator(properties.PayloadAll, []byte(payload), nil)
	require.NoError(t, err)
	defer it.Close()

	version, err := it.Version()
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	assert.Equal(t, []properties.DeserializedProperty{
		expected(properties.PropertyTypeWritable, "", "targetTemperature", "42"),
		expected(properties.PropertyTypeReportedFromDevice, "", "maxTempSinceLastReboot", "22.5"),
	}, collect(t, it))
}

func TestIterator_ValuesAreCompacted(t *testing.T) {
	payload := "{\"name3\": { \"embeddedJSON\" :\n 123 },\"$version\":2}"

	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(payload), nil)
	require.NoError(t, err)
	defer it.Close()

	props := collect(t, it)
	require.Len(t, props, 1)
	assert.Equal(t, `{"embeddedJSON":123}`, props[0].Value)
	assert.Equal(t, 20, props[0].ValueLength)
}

func TestIterator_ExhaustedStaysExhausted(t *testing.T) {
	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(`{"name1":1,"$version":1}`), nil)
	require.NoError(t, err)
	defer it.Close()

	require.Len(t, collect(t, it), 1)

	prop := properties.DeserializedProperty{StructVersion: properties.DeserializedPropertyStructVersion1}
	ok, err := it.Next(&prop)
	require.NoError(t, err)
	assert.False(t, ok)

	version, err := it.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestIterator_NextRejectsBadProperty(t *testing.T) {
	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(`{"name1":1,"$version":1}`), nil)
	require.NoError(t, err)
	defer it.Close()

	ok, err := it.Next(nil)
	assert.ErrorIs(t, err, properties.ErrInvalidArg)
	assert.False(t, ok)

	prop := properties.DeserializedProperty{StructVersion: 2, Name: "untouched"}
	ok, err = it.Next(&prop)
	assert.ErrorIs(t, err, properties.ErrInvalidArg)
	assert.False(t, ok)
	assert.Equal(t, properties.DeserializedProperty{StructVersion: 2, Name: "untouched"}, prop)

	// the rejected calls did not advance the iterator
	assert.Len(t, collect(t, it), 1)
}

func TestIterator_Close(t *testing.T) {
	it, err := properties.NewIterator(properties.PayloadWritableUpdates, []byte(`{"name1":1,"$version":1}`), []string{"c1"})
	require.NoError(t, err)

	require.NoError(t, it.Close())

	prop := properties.DeserializedProperty{StructVersion: properties.DeserializedPropertyStructVersion1}
	_, err = it.Next(&prop)
	assert.ErrorIs(t, err, properties.ErrIteratorClosed)
	_, err = it.Version()
	assert.ErrorIs(t, err, properties.ErrIteratorClosed)
	assert.ErrorIs(t, it.Close(), properties.ErrIteratorClosed)
}

func TestDeserializedProperty_Release(t *testing.T) {
	prop := expected(properties.PropertyTypeWritable, "c1", "name1", "1234")

	prop.Release()

	assert.Equal(t, properties.DeserializedProperty{StructVersion: properties.DeserializedPropertyStructVersion1}, prop)
}

func TestRoundTripThroughFullTwin(t *testing.T) {
	props := []properties.ReportedProperty{reported("name1", "1234"), reported("name2", `"value2"`), reported("name3", `{"embeddedJSON":123}`)}

	body, err := properties.SerializeReportedProperties(props, "testComponent1")
	require.NoError(t, err)

	twin := `{"desired":{"$version":5},"reported":` + string(body) + `}`
	it, err := properties.NewIterator(properties.PayloadAll, []byte(twin), []string{"testComponent1"})
	require.NoError(t, err)
	defer it.Close()

	got := collect(t, it)
	require.Len(t, got, len(props))
	for i, p := range props {
		assert.Equal(t, properties.PropertyTypeReportedFromDevice, got[i].PropertyType)
		assert.Equal(t, "testComponent1", got[i].ComponentName)
		assert.Equal(t, p.Name, got[i].Name)
		assert.Equal(t, p.Value, got[i].Value)
	}
}
