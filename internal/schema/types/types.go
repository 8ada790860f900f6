// Package types holds the data shapes shared across the schema registry:
// the persisted entities, the compatibility/dialect enums, and the
// Provider contract that dialect packages implement.
package types

import "time"

// SchemaType is a dialect tag, e.g. "AVRO". Stable, used as the key into
// the provider registry and persisted on every SchemaMetadata row.
type SchemaType string

const (
	JSON     SchemaType = "JSON"
	Avro     SchemaType = "AVRO"
	Protobuf SchemaType = "PROTOBUF"
)

// CompatibilityLevel is the rule a candidate schema text must satisfy
// against prior versions of the same logical schema. The engine treats
// this as opaque and routes it through to the dialect Provider unchanged.
type CompatibilityLevel string

const (
	None               CompatibilityLevel = "NONE"
	Backward           CompatibilityLevel = "BACKWARD"
	Forward            CompatibilityLevel = "FORWARD"
	Full               CompatibilityLevel = "FULL"
	BackwardTransitive CompatibilityLevel = "BACKWARD_TRANSITIVE"
	ForwardTransitive  CompatibilityLevel = "FORWARD_TRANSITIVE"
	FullTransitive     CompatibilityLevel = "FULL_TRANSITIVE"
)

// SchemaMetadata is the logical identity of an evolving schema: a name,
// the dialect it is written in, its compatibility policy, and the group
// it belongs to. Name is unique (I1); Id is the storage surrogate key.
type SchemaMetadata struct {
	Id            int64              `json:"id"`
	Name          string             `json:"name"`
	Type          SchemaType         `json:"type"`
	SchemaGroup   string             `json:"schemaGroup"`
	Compatibility CompatibilityLevel `json:"compatibility"`
	Description   string             `json:"description"`
	Timestamp     time.Time          `json:"timestamp"`
}

// SchemaVersionInfo is one immutable revision of a logical schema.
// Natural key is (SchemaMetadataId, Version); Id is the surrogate key.
type SchemaVersionInfo struct {
	Id               int64     `json:"id"`
	SchemaMetadataId int64     `json:"schemaMetadataId"`
	Name             string    `json:"name"`
	Version          int       `json:"version"`
	SchemaText       string    `json:"schemaText"`
	Fingerprint      string    `json:"fingerprint"`
	Description      string    `json:"description"`
	Timestamp        time.Time `json:"timestamp"`
}

// SchemaVersionKey identifies one SchemaVersionInfo by its natural key
// at the schema-metadata level: the logical schema's name plus a version
// number local to that schema.
type SchemaVersionKey struct {
	SchemaName string
	Version    int
}

// FieldDescriptor is a (name, namespace, type) triple a Provider extracts
// from a schema's fields, used to populate SchemaFieldIndex rows.
type FieldDescriptor struct {
	Name      string
	Namespace string
	Type      string
}

// SchemaFieldIndex is a row enabling structural search over fields
// declared by some SchemaVersionInfo (I5: always references an existing
// version, inserted in the same critical section as that version).
type SchemaFieldIndex struct {
	Id              int64     `json:"id"`
	SchemaVersionId int64     `json:"schemaVersionId"`
	FieldName       string    `json:"fieldName"`
	FieldNamespace  string    `json:"fieldNamespace"`
	FieldType       string    `json:"fieldType"`
	Timestamp       time.Time `json:"timestamp"`
}

// SchemaFieldQuery selects SchemaFieldIndex rows by the non-null members
// of (name, namespace, type).
type SchemaFieldQuery struct {
	Name      string
	Namespace string
	Type      string
}

// SerDesInfo is an uploaded serializer/deserializer artifact descriptor.
type SerDesInfo struct {
	Id           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	FileId       string    `json:"fileId"`
	ClassName    string    `json:"className"`
	IsSerializer bool      `json:"isSerializer"`
	Timestamp    time.Time `json:"timestamp"`
}

// SchemaSerDesMapping is the N:M link between a logical schema and a
// SerDes artifact bound to it.
type SchemaSerDesMapping struct {
	SchemaMetadataId int64     `json:"schemaMetadataId"`
	SerDesId         int64     `json:"serDesId"`
	Timestamp        time.Time `json:"timestamp"`
}

// Provider is what a schema dialect plugin supplies: parsing validation
// (implicit in Fingerprint), content fingerprinting, field extraction for
// indexing, and the compatibility predicate. Implementations live one per
// dialect under internal/schema/formats.
type Provider interface {
	// Type returns the dialect tag this provider is registered under.
	Type() SchemaType

	// Fingerprint parses text and returns a deterministic digest such
	// that equal bytes imply semantic identity within the dialect. Also
	// doubles as schema validation: a parse failure is an InvalidSchema
	// condition.
	Fingerprint(text string) ([]byte, error)

	// Fields extracts (name, namespace, type) triples from text for
	// structural indexing. An empty result is valid.
	Fields(text string) ([]FieldDescriptor, error)

	// IsCompatible reports whether candidate satisfies policy against
	// every text in existing. Callers pass a single-element slice for
	// "against the latest version only" and the full version history
	// for "against every prior version."
	IsCompatible(candidate string, existing []string, policy CompatibilityLevel) (bool, error)
}
