package protobuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"schemaregistry/internal/schema/formats/protobuf"
	"schemaregistry/internal/schema/types"
)

const orderProtoV1 = `{
	"name": "order.proto",
	"package": "example",
	"syntax": "proto3",
	"messageType": [
		{
			"name": "Order",
			"field": [
				{"name": "id", "number": 1, "label": "LABEL_OPTIONAL", "type": "TYPE_STRING"},
				{"name": "amount", "number": 2, "label": "LABEL_OPTIONAL", "type": "TYPE_INT32"}
			]
		}
	]
}`

const orderProtoV2AddedField = `{
	"name": "order.proto",
	"package": "example",
	"syntax": "proto3",
	"messageType": [
		{
			"name": "Order",
			"field": [
				{"name": "id", "number": 1, "label": "LABEL_OPTIONAL", "type": "TYPE_STRING"},
				{"name": "amount", "number": 2, "label": "LABEL_OPTIONAL", "type": "TYPE_INT32"},
				{"name": "note", "number": 3, "label": "LABEL_OPTIONAL", "type": "TYPE_STRING"}
			]
		}
	]
}`

const orderProtoV3NarrowedType = `{
	"name": "order.proto",
	"package": "example",
	"syntax": "proto3",
	"messageType": [
		{
			"name": "Order",
			"field": [
				{"name": "id", "number": 1, "label": "LABEL_OPTIONAL", "type": "TYPE_STRING"},
				{"name": "amount", "number": 2, "label": "LABEL_OPTIONAL", "type": "TYPE_STRING"}
			]
		}
	]
}`

func TestProtobufFingerprintIsStableAndDistinct(t *testing.T) {
	p := protobuf.New()

	fp1, err := p.Fingerprint(orderProtoV1)
	require.NoError(t, err)
	fp2, err := p.Fingerprint(orderProtoV1)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)

	fp3, err := p.Fingerprint(orderProtoV2AddedField)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp3)
}

func TestProtobufFingerprintFailsOnInvalidDescriptor(t *testing.T) {
	p := protobuf.New()
	_, err := p.Fingerprint(`{"name": 123}`)
	require.Error(t, err)
}

func TestProtobufFieldsListsFirstMessageFields(t *testing.T) {
	p := protobuf.New()
	fields, err := p.Fields(orderProtoV1)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	names := []string{fields[0].Name, fields[1].Name}
	require.ElementsMatch(t, []string{"id", "amount"}, names)
}

func TestProtobufIsCompatibleBackwardAllowsAddingField(t *testing.T) {
	p := protobuf.New()
	ok, err := p.IsCompatible(orderProtoV2AddedField, []string{orderProtoV1}, types.Backward)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProtobufIsCompatibleRejectsIncompatibleTypeChange(t *testing.T) {
	p := protobuf.New()
	ok, err := p.IsCompatible(orderProtoV3NarrowedType, []string{orderProtoV1}, types.Backward)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProtobufIsCompatibleNoneAlwaysAccepts(t *testing.T) {
	p := protobuf.New()
	ok, err := p.IsCompatible(orderProtoV3NarrowedType, []string{orderProtoV1}, types.None)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProtobufIsCompatibleFailsWhenNoMessageDeclared(t *testing.T) {
	p := protobuf.New()
	empty := `{"name": "empty.proto", "package": "example", "syntax": "proto3"}`
	_, err := p.IsCompatible(empty, []string{orderProtoV1}, types.Backward)
	require.Error(t, err)
}
