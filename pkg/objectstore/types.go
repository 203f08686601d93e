package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// PayloadType is the role of a payload within its object.
type PayloadType string

// Payload type constants (typed).
const (
	PayloadTypeSource     PayloadType = "Source"
	PayloadTypeAnnotation PayloadType = "Annotation"
	PayloadTypeOther      PayloadType = "Other"
)

// ParsePayloadType parses the stored form of a payload type.
func ParsePayloadType(s string) (PayloadType, error) {
	switch PayloadType(s) {
	case PayloadTypeSource, PayloadTypeAnnotation, PayloadTypeOther:
		return PayloadType(s), nil
	}
	return "", fmt.Errorf("%w: unknown payload type %q", ErrFormat, s)
}

// Reserved names in the blob namespace.
const (
	// MetadataPayloadID is the reserved PID of the annotation payload
	MetadataPayloadID = "TF-OBJ-META"

	// ManifestName is the blob name of the object manifest, relative to the object
	ManifestName = "object-manifest"

	// SidecarSuffix is appended to a payload path to name its sidecar metadata blob
	SidecarSuffix = ".meta"

	// DefaultContentType is recorded when no content type can be determined
	DefaultContentType = "application/octet-stream"

	// DefaultContainerName is used when no container is configured
	DefaultContainerName = "fascinator"

	// DefaultRefreshAfter is the number of driver accesses before the session is rebuilt
	DefaultRefreshAfter = 100
)

// Payload metadata keys, shared by native user metadata and sidecar blobs.
const (
	MetaKeyID          = "id"
	MetaKeyPayloadType = "payloadtype"
	MetaKeyLabel       = "label"
	MetaKeyLinked      = "linked"
	MetaKeyContentType = "contenttype"
)

// PayloadMetadata holds the recognised metadata of a payload.
type PayloadMetadata struct {
	ID          string      `json:"id"`
	Type        PayloadType `json:"payload_type"`
	Label       string      `json:"label"`
	ContentType string      `json:"content_type"`
	Linked      bool        `json:"linked"`
}

// StorageType classifies an entry returned by Driver.List.
type StorageType string

// Storage type constants (typed).
const (
	StorageTypeBlob         StorageType = "BLOB"
	StorageTypeFolder       StorageType = "FOLDER"
	StorageTypeRelativePath StorageType = "RELATIVE_PATH"
	StorageTypeContainer    StorageType = "CONTAINER"
)

// StorageMetadata is one top-level entry of a container listing.
type StorageMetadata struct {
	Name string
	Type StorageType
}

// Location is an assignable region or zone of a backend.
type Location struct {
	ID          string
	Description string
}

// UnknownSize marks a blob whose length the driver did not report.
const UnknownSize int64 = -1

// OpenFunc opens a blob's content for sequential reading.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Blob is a named binary stream with user metadata.
//
// For PutBlob, Body supplies the content. Blobs returned by GetBlob carry an
// Opener instead; the content is fetched only when Open is called.
type Blob struct {
	Name         string
	UserMetadata map[string]string
	ContentType  string
	Size         int64
	LastModified time.Time
	Body         io.Reader
	Opener       OpenFunc
}

// Open returns a reader positioned at the first byte of the blob.
func (b *Blob) Open(ctx context.Context) (io.ReadCloser, error) {
	if b.Opener != nil {
		return b.Opener(ctx)
	}
	if b.Body != nil {
		return io.NopCloser(b.Body), nil
	}
	return nil, fmt.Errorf("%w: %s has no content", ErrBlobNotFound, b.Name)
}

// SizeKnown reports whether the driver reported the blob length.
func (b *Blob) SizeKnown() bool {
	return b.Size >= 0
}

// payloadPath composes the blob name of a payload.
func payloadPath(oid, pid string) string {
	return oid + "/" + pid
}

// DirectoryName trims the trailing separator a driver may report for folders.
func DirectoryName(name string) string {
	return strings.TrimSuffix(name, "/")
}
