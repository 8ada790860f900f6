// Package filestore defines the File Store Port: an opaque blob store
// keyed by a server-generated id, used to hold uploaded serializer and
// deserializer jars.
package filestore

import "context"

// Port stores and retrieves opaque byte blobs by id.
type Port interface {
	// Upload stores content under a new id and returns that id.
	Upload(ctx context.Context, name string, content []byte) (string, error)

	// Download returns the content previously stored under id.
	Download(ctx context.Context, id string) ([]byte, error)
}
