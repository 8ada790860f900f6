// Package storage defines the Storage Port: a generic, namespaced record
// store with monotonic id allocation, primary-key get, filtered find, and
// insert. Concrete adapters (memory, postgres) live in sibling packages;
// the engine depends only on this interface.
package storage

import "context"

// Namespaces are the four entity collections plus one mapping collection
// the registry owns. Each entity type owns a namespace constant.
const (
	NamespaceSchemaMetadata = "schema_metadata"
	NamespaceSchemaVersion  = "schema_version"
	NamespaceFieldIndex     = "schema_field_index"
	NamespaceSerDesInfo     = "serdes_info"
	NamespaceSerDesMapping  = "schema_serdes_mapping"
)

// Filter is one equality predicate. A Find call conjoins its Filters with
// AND.
type Filter struct {
	Column string
	Value  any
}

// Record is a generic row: a flat property bag. Callers marshal their
// typed entities to and from Record with ToRecord/FromRecord (see
// codec.go) so the Port itself stays entity-agnostic, the way the spec's
// storage contract requires.
type Record map[string]any

// Port is the generic, namespaced record store external to this core.
// All operations are synchronous and durable on return.
type Port interface {
	// NextId returns a monotonically increasing non-negative integer
	// within namespace, unique across the process lifetime of the
	// registry.
	NextId(ctx context.Context, namespace string) (int64, error)

	// Get returns the record with the given id in namespace, or
	// (nil, false, nil) if absent. Never returns an error for "not found."
	Get(ctx context.Context, namespace string, id int64) (Record, bool, error)

	// Find returns every record in namespace matching all filters
	// (conjoined with AND). The result is unordered.
	Find(ctx context.Context, namespace string, filters []Filter) ([]Record, error)

	// List returns every record in namespace.
	List(ctx context.Context, namespace string) ([]Record, error)

	// Add inserts record into namespace. Duplicate-primary-key semantics
	// are delegated to the store; the engine avoids inserts that would
	// duplicate via its own dedup checks.
	Add(ctx context.Context, namespace string, record Record) error

	// Update replaces the record with the given id in namespace, or
	// inserts it if no such id exists yet. Used only for the one mutable
	// field the engine exposes post-creation: a schema's compatibility
	// policy. Every other entity is written once via Add and never
	// updated, matching the registry's immutable-version model.
	Update(ctx context.Context, namespace string, id int64, record Record) error
}
