// Package storage defines the object-store interface used to persist turn
// audio. Implementations wrap a provider SDK; the interface is intentionally
// narrow so tests can substitute an in-memory store.
package storage

import "context"

// ObjectStore stores and serves opaque named blobs.
//
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Upload writes data under name with the given content type, replacing
	// any existing object of that name.
	Upload(ctx context.Context, name string, data []byte, contentType string) error

	// Download returns the content of the named object.
	Download(ctx context.Context, name string) ([]byte, error)

	// PublicURL returns the browser-accessible URL of the named object.
	// It does not check whether the object exists.
	PublicURL(name string) string

	// URI returns the provider-native reference for the named object
	// (e.g. a gs:// URI), suitable for passing to sibling cloud services.
	URI(name string) string
}
