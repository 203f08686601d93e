package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// DigitalObject is a named collection of payloads whose membership is
// persisted in a manifest blob next to the payloads.
type DigitalObject struct {
	store *Storage
	oid   string

	mu       sync.RWMutex
	pids     []string
	payloads map[string]*Payload
	sourceID string
}

// openDigitalObject constructs the object and rehydrates it from its manifest.
// A missing manifest is created empty.
func openDigitalObject(ctx context.Context, store *Storage, oid string) (*DigitalObject, error) {
	o := &DigitalObject{
		store:    store,
		oid:      oid,
		payloads: make(map[string]*Payload),
	}
	if err := o.rehydrate(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// ID returns the object identifier.
func (o *DigitalObject) ID() string {
	return o.oid
}

// SourceID returns the PID of the Source payload, or "" if there is none.
func (o *DigitalObject) SourceID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sourceID
}

// PayloadIDs returns the payload identifiers in manifest order.
func (o *DigitalObject) PayloadIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	pids := make([]string, len(o.pids))
	copy(pids, o.pids)
	return pids
}

// CreateStoredPayload stores r as a new payload. The first non-metadata
// payload of an object becomes its Source payload.
func (o *DigitalObject) CreateStoredPayload(ctx context.Context, pid string, r io.Reader, opts ...PayloadOption) (*Payload, error) {
	if err := validatePID(pid); err != nil {
		return nil, o.error("create_payload", err)
	}
	if r == nil {
		return nil, o.error("create_payload", fmt.Errorf("%w: nil stream", ErrInvalidArgument))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.payloads[pid]; ok {
		return nil, &PayloadError{OID: o.oid, PID: pid, Op: "create_payload", Err: ErrDuplicatePID}
	}

	payload := newPayload(o.store, o.oid, pid)
	for _, opt := range opts {
		opt(payload)
	}

	becomesSource := false
	switch {
	case pid == MetadataPayloadID:
		payload.SetType(PayloadTypeAnnotation)
	case o.sourceID == "":
		payload.SetType(PayloadTypeSource)
		becomesSource = true
	default:
		payload.SetType(PayloadTypeOther)
	}

	if err := payload.write(ctx, r, o.store.detect); err != nil {
		return nil, err
	}

	stored, err := o.reload(ctx, pid)
	if err != nil {
		return nil, err
	}

	if becomesSource {
		o.sourceID = pid
	}
	o.pids = append(o.pids, pid)
	o.payloads[pid] = stored

	if err := o.persistManifest(ctx); err != nil {
		return nil, err
	}

	o.store.logger.Debug("Payload created", "oid", o.oid, "pid", pid, "source", becomesSource)
	return stored, nil
}

// CreateLinkedPayload copies the content of the local file at path into a new
// stored payload. Linking is not supported by blob stores.
func (o *DigitalObject) CreateLinkedPayload(ctx context.Context, pid, path string, opts ...PayloadOption) (*Payload, error) {
	o.store.logger.Warn("Linked payloads are not supported by blob stores, storing a copy", "oid", o.oid, "pid", pid, "path", path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &PayloadError{OID: o.oid, PID: pid, Op: "create_linked_payload", Err: fmt.Errorf("%w: %s", ErrNotFound, path)}
		}
		return nil, &PayloadError{OID: o.oid, PID: pid, Op: "create_linked_payload", Err: err}
	}
	defer f.Close()

	return o.CreateStoredPayload(ctx, pid, f, opts...)
}

// GetPayload returns a fresh handle on a payload listed in the manifest.
func (o *DigitalObject) GetPayload(pid string) (*Payload, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, ok := o.payloads[pid]; !ok {
		return nil, &PayloadError{OID: o.oid, PID: pid, Op: "get_payload", Err: ErrNotFound}
	}
	return newPayload(o.store, o.oid, pid), nil
}

// UpdatePayload replaces the content of an existing payload. Type and label
// are kept unless overridden by opts.
func (o *DigitalObject) UpdatePayload(ctx context.Context, pid string, r io.Reader, opts ...PayloadOption) (*Payload, error) {
	if r == nil {
		return nil, o.error("update_payload", fmt.Errorf("%w: nil stream", ErrInvalidArgument))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.payloads[pid]; !ok {
		return nil, &PayloadError{OID: o.oid, PID: pid, Op: "update_payload", Err: ErrNotFound}
	}

	payload := newPayload(o.store, o.oid, pid)
	for _, opt := range opts {
		opt(payload)
	}
	if err := payload.write(ctx, r, o.store.detect); err != nil {
		return nil, err
	}

	stored, err := o.reload(ctx, pid)
	if err != nil {
		return nil, err
	}
	o.payloads[pid] = stored

	o.store.logger.Debug("Payload updated", "oid", o.oid, "pid", pid)
	return stored, nil
}

// RemovePayload deletes the payload blob and drops it from the manifest.
func (o *DigitalObject) RemovePayload(ctx context.Context, pid string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.payloads[pid]; !ok {
		return &PayloadError{OID: o.oid, PID: pid, Op: "remove_payload", Err: ErrNotFound}
	}

	d, release, err := o.store.client.Acquire(ctx)
	if err != nil {
		return o.error("remove_payload", err)
	}
	defer release()
	container := o.store.client.ContainerName()
	path := payloadPath(o.oid, pid)

	if err := d.RemoveBlob(ctx, container, path); err != nil {
		return &PayloadError{OID: o.oid, PID: pid, Op: "remove_payload", Err: backendError(d, path, "remove_blob", err)}
	}
	if !o.store.client.SupportsUserMetadata() {
		if err := d.RemoveBlob(ctx, container, path+SidecarSuffix); err != nil {
			return &PayloadError{OID: o.oid, PID: pid, Op: "remove_payload", Err: backendError(d, path+SidecarSuffix, "remove_blob", err)}
		}
	}

	delete(o.payloads, pid)
	for i, id := range o.pids {
		if id == pid {
			o.pids = append(o.pids[:i], o.pids[i+1:]...)
			break
		}
	}
	if o.sourceID == pid {
		o.sourceID = ""
	}

	if err := o.persistManifest(ctx); err != nil {
		return err
	}

	o.store.logger.Debug("Payload removed", "oid", o.oid, "pid", pid)
	return nil
}

// reload returns a handle with the stored metadata of pid loaded.
func (o *DigitalObject) reload(ctx context.Context, pid string) (*Payload, error) {
	payload := newPayload(o.store, o.oid, pid)
	if err := payload.Load(ctx); err != nil {
		return nil, err
	}
	return payload, nil
}

// rehydrate loads the manifest and every payload it lists.
func (o *DigitalObject) rehydrate(ctx context.Context) error {
	d, release, err := o.store.client.Acquire(ctx)
	if err != nil {
		return o.error("load_manifest", err)
	}
	defer release()
	container := o.store.client.ContainerName()
	path := payloadPath(o.oid, ManifestName)

	blob, err := d.GetBlob(ctx, container, path)
	if errors.Is(err, ErrBlobNotFound) {
		o.store.logger.Debug("Creating empty object manifest", "oid", o.oid)
		return o.persistManifest(ctx)
	}
	if err != nil {
		return o.error("load_manifest", backendError(d, path, "get_blob", err))
	}

	rc, err := blob.Open(ctx)
	if err != nil {
		return o.error("load_manifest", backendError(d, path, "open", err))
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return o.error("load_manifest", backendError(d, path, "read", err))
	}

	items, err := decodeManifest(data)
	if err != nil {
		return o.error("load_manifest", err)
	}

	for _, item := range items {
		if _, ok := o.payloads[item.Name]; ok {
			continue
		}
		payload := newPayload(o.store, o.oid, item.Name)
		if err := payload.Load(ctx); err != nil {
			return err
		}
		t, err := payload.Type(ctx)
		if err != nil {
			return err
		}
		if t == PayloadTypeSource && o.sourceID == "" {
			o.sourceID = item.Name
		}
		o.pids = append(o.pids, item.Name)
		o.payloads[item.Name] = payload
	}
	return nil
}

// persistManifest writes the current payload list. Callers hold o.mu or own
// the object exclusively.
func (o *DigitalObject) persistManifest(ctx context.Context) error {
	data, err := encodeManifest(o.pids, o.sourceID)
	if err != nil {
		return o.error("save_manifest", err)
	}

	d, release, err := o.store.client.Acquire(ctx)
	if err != nil {
		return o.error("save_manifest", err)
	}
	defer release()
	path := payloadPath(o.oid, ManifestName)
	blob := &Blob{
		Name:        path,
		ContentType: "application/json",
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
	if err := d.PutBlob(ctx, o.store.client.ContainerName(), blob); err != nil {
		return o.error("save_manifest", backendError(d, path, "put_blob", err))
	}
	return nil
}

func (o *DigitalObject) error(op string, err error) error {
	var oe *ObjectError
	if errors.As(err, &oe) {
		return err
	}
	return &ObjectError{OID: o.oid, Op: op, Err: err}
}

func validatePID(pid string) error {
	switch {
	case pid == "":
		return fmt.Errorf("%w: payload id is required", ErrInvalidArgument)
	case pid == ManifestName:
		return fmt.Errorf("%w: payload id %q is reserved", ErrInvalidArgument, pid)
	case strings.HasSuffix(pid, SidecarSuffix):
		return fmt.Errorf("%w: payload id %q uses the reserved %s suffix", ErrInvalidArgument, pid, SidecarSuffix)
	}
	return nil
}
