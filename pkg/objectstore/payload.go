package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// PayloadOption sets caller-supplied metadata before a payload is written.
type PayloadOption func(*Payload)

// WithLabel sets the payload label. The label defaults to the PID.
func WithLabel(label string) PayloadOption {
	return func(p *Payload) {
		p.override.Label = label
	}
}

// WithContentType records the content type as given. The stream is then
// forwarded to the backend without being buffered for detection.
func WithContentType(contentType string) PayloadOption {
	return func(p *Payload) {
		p.override.ContentType = contentType
	}
}

// Payload is one named binary stream of a digital object together with its
// metadata. Metadata is loaded from the backend once, on first access.
type Payload struct {
	store *Storage
	oid   string
	pid   string
	path  string

	mu       sync.Mutex
	loaded   bool
	exists   bool
	blob     *Blob
	meta     PayloadMetadata
	override PayloadMetadata
}

func newPayload(store *Storage, oid, pid string) *Payload {
	return &Payload{
		store: store,
		oid:   oid,
		pid:   pid,
		path:  payloadPath(oid, pid),
		meta:  PayloadMetadata{ID: pid},
	}
}

// ID returns the payload identifier.
func (p *Payload) ID() string {
	return p.pid
}

// ObjectID returns the identifier of the owning object.
func (p *Payload) ObjectID() string {
	return p.oid
}

// Path returns the blob name of the payload within the container.
func (p *Payload) Path() string {
	return p.path
}

// Load reads the payload metadata from the backend if it has not been read yet.
func (p *Payload) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLoaded(ctx)
}

// Metadata returns the payload metadata, caller overrides applied.
func (p *Payload) Metadata(ctx context.Context) (PayloadMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(ctx); err != nil {
		return PayloadMetadata{}, err
	}
	meta := p.merged()
	if meta.Label == "" {
		meta.Label = p.pid
	}
	if meta.ContentType == "" {
		meta.ContentType = DefaultContentType
	}
	return meta, nil
}

// Type returns the payload type; it is empty for a payload never written.
func (p *Payload) Type(ctx context.Context) (PayloadType, error) {
	meta, err := p.Metadata(ctx)
	return meta.Type, err
}

// Label returns the payload label, defaulting to the PID.
func (p *Payload) Label(ctx context.Context) (string, error) {
	meta, err := p.Metadata(ctx)
	return meta.Label, err
}

// ContentType returns the payload content type.
func (p *Payload) ContentType(ctx context.Context) (string, error) {
	meta, err := p.Metadata(ctx)
	return meta.ContentType, err
}

// SetType sets the type recorded on the next write.
func (p *Payload) SetType(t PayloadType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override.Type = t
}

// SetLabel sets the label recorded on the next write.
func (p *Payload) SetLabel(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override.Label = label
}

// SetContentType sets the content type recorded on the next write.
func (p *Payload) SetContentType(contentType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override.ContentType = contentType
}

// Open opens the payload content for sequential reading from byte 0. The
// blob is fetched through the current session, which stays leased until the
// reader is closed.
func (p *Payload) Open(ctx context.Context) (io.ReadCloser, error) {
	p.mu.Lock()
	err := p.ensureLoaded(ctx)
	exists := p.exists
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, p.error("open", ErrNotFound)
	}

	d, release, err := p.store.client.Acquire(ctx)
	if err != nil {
		return nil, p.error("open", err)
	}
	blob, err := d.GetBlob(ctx, p.store.client.ContainerName(), p.path)
	if err != nil {
		release()
		if errors.Is(err, ErrBlobNotFound) {
			return nil, p.error("open", ErrNotFound)
		}
		return nil, p.error("open", backendError(d, p.path, "get_blob", err))
	}

	rc, err := blob.Open(ctx)
	if err != nil {
		release()
		if errors.Is(err, ErrBlobNotFound) {
			return nil, p.error("open", ErrNotFound)
		}
		return nil, p.error("open", backendError(d, p.path, "open", err))
	}

	p.mu.Lock()
	p.blob = blob
	p.mu.Unlock()
	return &leasedReader{ReadCloser: rc, release: release}, nil
}

// leasedReader releases the session lease when the content reader is closed.
type leasedReader struct {
	io.ReadCloser
	release func()
}

func (r *leasedReader) Close() error {
	err := r.ReadCloser.Close()
	r.release()
	return err
}

// Size returns the payload length in bytes, or UnknownSize if the backend
// does not report it even after a re-fetch.
func (p *Payload) Size(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	blob, err := p.current(ctx, (*Blob).SizeKnown)
	if err != nil {
		return UnknownSize, err
	}
	return blob.Size, nil
}

// LastModified returns the payload modification time, or the zero time if
// the backend does not report it even after a re-fetch.
func (p *Payload) LastModified(ctx context.Context) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	blob, err := p.current(ctx, func(b *Blob) bool { return !b.LastModified.IsZero() })
	if err != nil {
		return time.Time{}, err
	}
	return blob.LastModified, nil
}

// current returns the cached blob, re-fetching it when the cached copy does
// not satisfy complete. Callers hold p.mu.
func (p *Payload) current(ctx context.Context, complete func(*Blob) bool) (*Blob, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if !p.exists {
		return nil, p.error("get", ErrNotFound)
	}
	if p.blob != nil && complete(p.blob) {
		return p.blob, nil
	}

	d, release, err := p.store.client.Acquire(ctx)
	if err != nil {
		return nil, p.error("get", err)
	}
	defer release()
	blob, err := d.GetBlob(ctx, p.store.client.ContainerName(), p.path)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			p.exists = false
			p.blob = nil
			return nil, p.error("get", ErrNotFound)
		}
		return nil, p.error("get", backendError(d, p.path, "get_blob", err))
	}
	p.blob = blob
	return blob, nil
}

// merged overlays caller overrides on the stored metadata. Callers hold p.mu.
func (p *Payload) merged() PayloadMetadata {
	meta := p.meta
	meta.ID = p.pid
	if p.override.Type != "" {
		meta.Type = p.override.Type
	}
	if p.override.Label != "" {
		meta.Label = p.override.Label
	}
	if p.override.ContentType != "" {
		meta.ContentType = p.override.ContentType
	}
	return meta
}

// ensureLoaded reads the payload blob and its metadata once. A payload whose
// blob does not exist yet loads as empty so that a write can create it.
// Callers hold p.mu.
func (p *Payload) ensureLoaded(ctx context.Context) error {
	if p.loaded {
		return nil
	}

	d, release, err := p.store.client.Acquire(ctx)
	if err != nil {
		return p.error("load", err)
	}
	defer release()
	container := p.store.client.ContainerName()

	exists, err := d.BlobExists(ctx, container, p.path)
	if err != nil {
		return p.error("load", backendError(d, p.path, "blob_exists", err))
	}
	if !exists {
		p.exists = false
		p.blob = nil
		p.loaded = true
		return nil
	}

	blob, err := d.GetBlob(ctx, container, p.path)
	if errors.Is(err, ErrBlobNotFound) {
		p.exists = false
		p.blob = nil
		p.loaded = true
		return nil
	}
	if err != nil {
		return p.error("load", backendError(d, p.path, "get_blob", err))
	}

	userMetadata, err := p.userMetadata(ctx, d, blob)
	if err != nil {
		return p.error("load", err)
	}

	meta := PayloadMetadata{
		ID:          p.pid,
		Label:       userMetadata[MetaKeyLabel],
		ContentType: userMetadata[MetaKeyContentType],
	}
	if v := userMetadata[MetaKeyPayloadType]; v != "" {
		t, err := ParsePayloadType(v)
		if err != nil {
			return p.error("load", err)
		}
		meta.Type = t
	}
	if v := userMetadata[MetaKeyLinked]; v != "" {
		meta.Linked, _ = strconv.ParseBool(v)
	}

	p.meta = meta
	p.blob = blob
	p.exists = true
	p.loaded = true
	return nil
}

// userMetadata returns the blob's native user metadata, or the contents of
// its sidecar when the backend cannot carry user metadata.
func (p *Payload) userMetadata(ctx context.Context, d Driver, blob *Blob) (map[string]string, error) {
	if p.store.client.SupportsUserMetadata() {
		if blob.UserMetadata == nil {
			return map[string]string{}, nil
		}
		return blob.UserMetadata, nil
	}

	sidecarPath := p.path + SidecarSuffix
	metaBlob, err := d.GetBlob(ctx, p.store.client.ContainerName(), sidecarPath)
	if errors.Is(err, ErrBlobNotFound) {
		p.store.logger.Warn("Payload sidecar metadata missing", "oid", p.oid, "pid", p.pid, "path", sidecarPath)
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, backendError(d, sidecarPath, "get_blob", err)
	}

	rc, err := metaBlob.Open(ctx)
	if err != nil {
		return nil, backendError(d, sidecarPath, "open", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, backendError(d, sidecarPath, "read", err)
	}
	return decodeSidecar(data)
}

// write stores r as the payload content, replacing any existing content.
//
// When detect is true and no content type was supplied, the whole stream is
// buffered in memory (bounded by the storage's detection limit) so that the
// detector can examine it. Otherwise the stream goes to the backend as is and
// the content type is the supplied one or DefaultContentType.
func (p *Payload) write(ctx context.Context, r io.Reader, detect bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r == nil {
		return p.error("write", fmt.Errorf("%w: nil stream", ErrInvalidArgument))
	}
	if err := p.ensureLoaded(ctx); err != nil {
		return err
	}

	meta := p.merged()
	if meta.Label == "" {
		meta.Label = p.pid
	}
	if meta.Type == "" {
		meta.Type = PayloadTypeSource
	}

	body := r
	size := UnknownSize
	switch {
	case p.override.ContentType != "":
	case detect:
		data, err := p.store.buffer(r)
		if err != nil {
			return p.error("write", err)
		}
		meta.ContentType = p.store.detector.Detect(data, p.pid)
		body = bytes.NewReader(data)
		size = int64(len(data))
	default:
		// the stored type described the previous content
		meta.ContentType = DefaultContentType
	}
	if meta.ContentType == "" {
		meta.ContentType = DefaultContentType
	}
	meta.Linked = false

	userMetadata := map[string]string{
		MetaKeyID:          p.pid,
		MetaKeyPayloadType: string(meta.Type),
		MetaKeyLabel:       meta.Label,
		MetaKeyLinked:      strconv.FormatBool(meta.Linked),
		MetaKeyContentType: meta.ContentType,
	}

	d, release, err := p.store.client.Acquire(ctx)
	if err != nil {
		return p.error("write", err)
	}
	defer release()
	container := p.store.client.ContainerName()

	blob := &Blob{
		Name:         p.path,
		UserMetadata: userMetadata,
		ContentType:  meta.ContentType,
		Size:         size,
		Body:         body,
	}
	if err := d.PutBlob(ctx, container, blob); err != nil {
		return p.error("write", backendError(d, p.path, "put_blob", err))
	}

	if !p.store.client.SupportsUserMetadata() {
		if err := p.writeSidecar(ctx, d, userMetadata); err != nil {
			return p.error("write", err)
		}
	}

	p.meta = meta
	p.override = PayloadMetadata{}
	p.blob = nil
	p.exists = true
	p.loaded = true
	return nil
}

func (p *Payload) writeSidecar(ctx context.Context, d Driver, userMetadata map[string]string) error {
	data, err := encodeSidecar(userMetadata)
	if err != nil {
		return err
	}
	sidecarPath := p.path + SidecarSuffix
	blob := &Blob{
		Name:        sidecarPath,
		ContentType: "text/plain",
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
	if err := d.PutBlob(ctx, p.store.client.ContainerName(), blob); err != nil {
		return backendError(d, sidecarPath, "put_blob", err)
	}
	return nil
}

func (p *Payload) error(op string, err error) error {
	var pe *PayloadError
	if errors.As(err, &pe) {
		return err
	}
	return &PayloadError{OID: p.oid, PID: p.pid, Op: op, Err: err}
}
