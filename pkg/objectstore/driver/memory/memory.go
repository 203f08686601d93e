package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the in-memory driver.
const ProviderName = "transient"

type entry struct {
	data         []byte
	userMetadata map[string]string
	contentType  string
	lastModified time.Time
}

type bucket struct {
	blobs map[string]*entry
	dirs  map[string]struct{}
}

// Driver is an in-memory implementation of the objectstore.Driver interface.
// Content survives Close so that a refreshed session sees the same blobs.
type Driver struct {
	mu           sync.RWMutex
	buckets      map[string]*bucket
	userMetadata bool
	locations    []objectstore.Location
	now          func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithoutUserMetadata makes the driver drop user metadata on PutBlob and
// report the capability as absent.
func WithoutUserMetadata() Option {
	return func(d *Driver) {
		d.userMetadata = false
	}
}

// WithLocations sets the assignable locations reported by the driver.
func WithLocations(locations ...objectstore.Location) Option {
	return func(d *Driver) {
		d.locations = locations
	}
}

// WithClock sets the clock used for last-modified times.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a new in-memory driver
func New(opts ...Option) *Driver {
	d := &Driver{
		buckets:      make(map[string]*bucket),
		userMetadata: true,
		locations:    []objectstore.Location{{ID: "memory", Description: "In-process memory"}},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dialer returns a dial function that always hands out d.
func (d *Driver) Dialer() objectstore.DialFunc {
	return func(ctx context.Context) (objectstore.Driver, error) {
		return d, nil
	}
}

func (d *Driver) Name() string {
	return ProviderName
}

func (d *Driver) SupportsUserMetadata() bool {
	return d.userMetadata
}

func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	out := make([]objectstore.Location, len(d.locations))
	copy(out, d.locations)
	return out, nil
}

func (d *Driver) CreateContainer(ctx context.Context, container, location string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.buckets[container]; !ok {
		d.buckets[container] = &bucket{
			blobs: make(map[string]*entry),
			dirs:  make(map[string]struct{}),
		}
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, container, name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucket(container)
	if err != nil {
		return false, err
	}
	_, ok := b.blobs[name]
	return ok, nil
}

func (d *Driver) GetBlob(ctx context.Context, container, name string) (*objectstore.Blob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucket(container)
	if err != nil {
		return nil, err
	}
	e, ok := b.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
	}

	// Blobs are replaced, never mutated, so the opener can hold the slice.
	data := e.data
	userMetadata := make(map[string]string, len(e.userMetadata))
	for k, v := range e.userMetadata {
		userMetadata[k] = v
	}
	return &objectstore.Blob{
		Name:         name,
		UserMetadata: userMetadata,
		ContentType:  e.contentType,
		Size:         int64(len(data)),
		LastModified: e.lastModified,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, container string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	e := &entry{
		data:         data,
		contentType:  blob.ContentType,
		lastModified: d.now(),
	}
	if d.userMetadata && len(blob.UserMetadata) > 0 {
		e.userMetadata = make(map[string]string, len(blob.UserMetadata))
		for k, v := range blob.UserMetadata {
			e.userMetadata[k] = v
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.bucket(container)
	if err != nil {
		return err
	}
	b.blobs[blob.Name] = e
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, container, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.bucket(container)
	if err != nil {
		return err
	}
	delete(b.blobs, name)
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, container, dir string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucket(container)
	if err != nil {
		return false, err
	}
	dir = objectstore.DirectoryName(dir)
	if _, ok := b.dirs[dir]; ok {
		return true, nil
	}
	prefix := dir + "/"
	for name := range b.blobs {
		if strings.HasPrefix(name, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) CreateDirectory(ctx context.Context, container, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.bucket(container)
	if err != nil {
		return err
	}
	b.dirs[objectstore.DirectoryName(dir)] = struct{}{}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, container, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.bucket(container)
	if err != nil {
		return err
	}
	dir = objectstore.DirectoryName(dir)
	prefix := dir + "/"
	for name := range b.blobs {
		if strings.HasPrefix(name, prefix) {
			delete(b.blobs, name)
		}
	}
	for name := range b.dirs {
		if name == dir || strings.HasPrefix(name, prefix) {
			delete(b.dirs, name)
		}
	}
	return nil
}

func (d *Driver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucket(container)
	if err != nil {
		return nil, err
	}

	types := make(map[string]objectstore.StorageType)
	for dir := range b.dirs {
		top, _, _ := strings.Cut(dir, "/")
		types[top] = objectstore.StorageTypeFolder
	}
	for name := range b.blobs {
		top, _, nested := strings.Cut(name, "/")
		if nested {
			types[top] = objectstore.StorageTypeFolder
		} else if _, ok := types[top]; !ok {
			types[top] = objectstore.StorageTypeBlob
		}
	}

	out := make([]objectstore.StorageMetadata, 0, len(types))
	for name, t := range types {
		out = append(out, objectstore.StorageMetadata{Name: name, Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op; the blobs stay in memory.
func (d *Driver) Close() error {
	return nil
}

// Names returns every blob name in the container, sorted.
func (d *Driver) Names(container string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.buckets[container]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(b.blobs))
	for name := range b.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Driver) bucket(container string) (*bucket, error) {
	b, ok := d.buckets[container]
	if !ok {
		return nil, fmt.Errorf("container %s does not exist", container)
	}
	return b, nil
}
