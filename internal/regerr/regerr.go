// Package regerr defines the schema registry's error taxonomy as sentinel
// values. Call sites wrap them with fmt.Errorf("...: %w", ...) and callers
// distinguish kinds with errors.Is, rather than comparing error strings.
package regerr

import "errors"

var (
	// ErrSchemaNotFound means no metadata exists for a given name, or no
	// version matches the requested key or text.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrInvalidSchema means the text failed dialect parsing or validation.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrIncompatibleSchema means the compatibility predicate rejected the
	// candidate. Raising this kind implies no storage side effects occurred.
	ErrIncompatibleSchema = errors.New("incompatible schema")

	// ErrSerDesNotFound means a referenced serdes id does not exist.
	ErrSerDesNotFound = errors.New("serdes not found")

	// ErrConfiguration means an operation referenced an unregistered
	// dialect tag.
	ErrConfiguration = errors.New("configuration error")

	// ErrIO wraps a storage or file-store failure. Never retried by the
	// engine; retry is a transport-layer concern.
	ErrIO = errors.New("io failure")
)
