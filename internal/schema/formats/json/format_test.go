package json_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	jsonformat "schemaregistry/internal/schema/formats/json"
	"schemaregistry/internal/schema/types"
)

const personV1 = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"}
	},
	"required": ["name"]
}`

const personV2AddedOptionalField = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"},
		"email": {"type": "string"}
	},
	"required": ["name"]
}`

const personV3DroppedRequiredField = `{
	"type": "object",
	"properties": {
		"age": {"type": "integer"}
	},
	"required": []
}`

const personV4NarrowedType = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "string"}
	},
	"required": ["name"]
}`

func TestJSONFingerprintIgnoresKeyOrderAndWhitespace(t *testing.T) {
	p := jsonformat.New()

	reordered := `{
		"required": ["name"],
		"properties": {
			"age": {"type": "integer"},
			"name": {"type": "string"}
		},
		"type": "object"
	}`

	fp1, err := p.Fingerprint(personV1)
	require.NoError(t, err)
	fp2, err := p.Fingerprint(reordered)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)

	fp3, err := p.Fingerprint(personV2AddedOptionalField)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp3)
}

func TestJSONFingerprintFailsOnUncompilableSchema(t *testing.T) {
	p := jsonformat.New()
	_, err := p.Fingerprint(`{"type": 123}`)
	require.Error(t, err)
}

func TestJSONFieldsListsTopLevelProperties(t *testing.T) {
	p := jsonformat.New()
	fields, err := p.Fields(personV1)
	require.NoError(t, err)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"name", "age"}, names)
}

func TestJSONIsCompatibleBackwardAllowsAddingOptionalField(t *testing.T) {
	p := jsonformat.New()
	ok, err := p.IsCompatible(personV2AddedOptionalField, []string{personV1}, types.Backward)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJSONIsCompatibleBackwardRejectsDroppedRequiredField(t *testing.T) {
	p := jsonformat.New()
	ok, err := p.IsCompatible(personV3DroppedRequiredField, []string{personV1}, types.Backward)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONIsCompatibleRejectsIncompatibleTypeNarrowing(t *testing.T) {
	p := jsonformat.New()
	ok, err := p.IsCompatible(personV4NarrowedType, []string{personV1}, types.Backward)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONIsCompatibleFullRequiresBothDirections(t *testing.T) {
	p := jsonformat.New()
	ok, err := p.IsCompatible(personV2AddedOptionalField, []string{personV1}, types.Full)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.IsCompatible(personV3DroppedRequiredField, []string{personV1}, types.Full)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONIsCompatibleNoneAlwaysAccepts(t *testing.T) {
	p := jsonformat.New()
	ok, err := p.IsCompatible(personV4NarrowedType, []string{personV1}, types.None)
	require.NoError(t, err)
	require.True(t, ok)
}
