package avro_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"schemaregistry/internal/schema/formats/avro"
	"schemaregistry/internal/schema/types"
)

const orderV1 = `{
	"type": "record",
	"name": "Order",
	"namespace": "com.example",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "amount", "type": "int"}
	]
}`

const orderV2AddedOptionalField = `{
	"type": "record",
	"name": "Order",
	"namespace": "com.example",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "amount", "type": "long"},
		{"name": "note", "type": ["null", "string"], "default": null}
	]
}`

const orderV3DroppedRequiredField = `{
	"type": "record",
	"name": "Order",
	"namespace": "com.example",
	"fields": [
		{"name": "id", "type": "string"}
	]
}`

func TestFingerprintIsStableAndDistinct(t *testing.T) {
	p := avro.New()

	fp1, err := p.Fingerprint(orderV1)
	require.NoError(t, err)
	fp2, err := p.Fingerprint(orderV1)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)

	fp3, err := p.Fingerprint(orderV2AddedOptionalField)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp3)
}

func TestFingerprintFailsOnInvalidSchema(t *testing.T) {
	p := avro.New()
	_, err := p.Fingerprint(`{"type": "not-a-real-type"}`)
	require.Error(t, err)
}

func TestFieldsExtractsRecordFields(t *testing.T) {
	p := avro.New()
	fields, err := p.Fields(orderV1)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	names := []string{fields[0].Name, fields[1].Name}
	require.ElementsMatch(t, []string{"id", "amount"}, names)
}

func TestFieldsOnNonRecordSchemaIsEmpty(t *testing.T) {
	p := avro.New()
	fields, err := p.Fields(`"string"`)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestIsCompatibleBackwardAllowsWideningIntToLong(t *testing.T) {
	p := avro.New()
	ok, err := p.IsCompatible(orderV2AddedOptionalField, []string{orderV1}, types.Backward)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsCompatibleBackwardRejectsDroppedRequiredField(t *testing.T) {
	p := avro.New()
	ok, err := p.IsCompatible(orderV3DroppedRequiredField, []string{orderV1}, types.Backward)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsCompatibleNoneAlwaysAccepts(t *testing.T) {
	p := avro.New()
	ok, err := p.IsCompatible(orderV3DroppedRequiredField, []string{orderV1}, types.None)
	require.NoError(t, err)
	require.True(t, ok)
}
