package objectstore

import (
	"context"
)

// Driver is the capability set the adapter needs from a blob store backend.
//
// Blob names are slash-separated paths relative to the container. Drivers
// report a missing blob from GetBlob with ErrBlobNotFound; RemoveBlob of a
// missing blob is not an error.
type Driver interface {
	// Name identifies the driver in errors and logs
	Name() string

	// SupportsUserMetadata reports whether PutBlob persists Blob.UserMetadata
	SupportsUserMetadata() bool

	// Locations lists the assignable locations of the backend
	Locations(ctx context.Context) ([]Location, error)

	// CreateContainer creates the container in the given location; it is idempotent
	CreateContainer(ctx context.Context, container string, location string) error

	// BlobExists reports whether a blob exists
	BlobExists(ctx context.Context, container, name string) (bool, error)

	// GetBlob returns the blob metadata and a lazy opener for its content
	GetBlob(ctx context.Context, container, name string) (*Blob, error)

	// PutBlob writes the blob content and user metadata, replacing any existing blob
	PutBlob(ctx context.Context, container string, blob *Blob) error

	// RemoveBlob deletes a blob
	RemoveBlob(ctx context.Context, container, name string) error

	// DirectoryExists reports whether any blob or marker lives under dir
	DirectoryExists(ctx context.Context, container, dir string) (bool, error)

	// CreateDirectory creates a directory marker for dir
	CreateDirectory(ctx context.Context, container, dir string) error

	// DeleteDirectory recursively deletes everything under dir
	DeleteDirectory(ctx context.Context, container, dir string) error

	// List returns the top-level entries of the container
	List(ctx context.Context, container string) ([]StorageMetadata, error)

	// Close releases the backend session
	Close() error
}

// DialFunc builds a new driver session.
type DialFunc func(ctx context.Context) (Driver, error)

// Detector maps payload bytes and a file name to a content type.
type Detector interface {
	Detect(data []byte, filename string) string
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(data []byte, filename string) string

// Detect calls f(data, filename).
func (f DetectorFunc) Detect(data []byte, filename string) string {
	return f(data, filename)
}
