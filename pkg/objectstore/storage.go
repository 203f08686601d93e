package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	// StorageID identifies the blob store plugin.
	StorageID = "blobstore"

	// StorageName is the human readable plugin name.
	StorageName = "Blobstore Storage Plugin"

	// DefaultMaxDetectSize bounds the bytes buffered for content type detection.
	DefaultMaxDetectSize int64 = 64 << 20
)

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger used by the storage, its objects and payloads
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDetector replaces the content type detector
func WithDetector(d Detector) Option {
	return func(s *Storage) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithContentDetection enables or disables content type detection on writes
// that carry no content type.
func WithContentDetection(enabled bool) Option {
	return func(s *Storage) {
		s.detect = enabled
	}
}

// WithMaxDetectSize bounds the payload size buffered for detection. A value
// of zero or less removes the bound.
func WithMaxDetectSize(n int64) Option {
	return func(s *Storage) {
		s.maxDetectSize = n
	}
}

// Storage is the object storage facade over a blob store client.
type Storage struct {
	client        *Client
	logger        *slog.Logger
	detector      Detector
	detect        bool
	maxDetectSize int64

	// mu serialises object creation and removal.
	mu sync.Mutex
}

// New creates a Storage on top of client.
func New(client *Client, opts ...Option) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrConfig)
	}
	s := &Storage{
		client:        client,
		logger:        slog.Default(),
		detector:      DefaultDetector,
		detect:        true,
		maxDetectSize: DefaultMaxDetectSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the plugin identifier.
func (s *Storage) ID() string {
	return StorageID
}

// Name returns the plugin name.
func (s *Storage) Name() string {
	return StorageName
}

// Client returns the underlying blob store client.
func (s *Storage) Client() *Client {
	return s.client
}

// Init connects the client and ensures the container exists.
func (s *Storage) Init(ctx context.Context) error {
	if err := s.client.Init(ctx); err != nil {
		return err
	}
	s.logger.Info("Object storage initialized",
		"provider", s.client.cfg.Provider,
		"container", s.client.ContainerName(),
		"user_metadata", s.client.SupportsUserMetadata())
	return nil
}

// CreateObject creates a new object with an empty manifest.
func (s *Storage) CreateObject(ctx context.Context, oid string) (*DigitalObject, error) {
	if err := validateOID(oid); err != nil {
		return nil, &ObjectError{OID: oid, Op: "create_object", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.objectExists(ctx, oid)
	if err != nil {
		return nil, &ObjectError{OID: oid, Op: "create_object", Err: err}
	}
	if exists {
		return nil, &ObjectError{OID: oid, Op: "create_object", Err: ErrDuplicateOID}
	}

	d, release, err := s.client.Acquire(ctx)
	if err != nil {
		return nil, &ObjectError{OID: oid, Op: "create_object", Err: err}
	}
	defer release()
	if err := d.CreateDirectory(ctx, s.client.ContainerName(), oid); err != nil {
		return nil, &ObjectError{OID: oid, Op: "create_object", Err: backendError(d, oid, "create_directory", err)}
	}

	obj, err := openDigitalObject(ctx, s, oid)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Object created", "oid", oid)
	return obj, nil
}

// GetObject loads an existing object from its manifest.
func (s *Storage) GetObject(ctx context.Context, oid string) (*DigitalObject, error) {
	if err := validateOID(oid); err != nil {
		return nil, &ObjectError{OID: oid, Op: "get_object", Err: err}
	}

	exists, err := s.objectExists(ctx, oid)
	if err != nil {
		return nil, &ObjectError{OID: oid, Op: "get_object", Err: err}
	}
	if !exists {
		return nil, &ObjectError{OID: oid, Op: "get_object", Err: ErrNotFound}
	}
	return openDigitalObject(ctx, s, oid)
}

// RemoveObject deletes the object directory with all its blobs.
func (s *Storage) RemoveObject(ctx context.Context, oid string) error {
	if err := validateOID(oid); err != nil {
		return &ObjectError{OID: oid, Op: "remove_object", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.objectExists(ctx, oid)
	if err != nil {
		return &ObjectError{OID: oid, Op: "remove_object", Err: err}
	}
	if !exists {
		return &ObjectError{OID: oid, Op: "remove_object", Err: ErrNotFound}
	}

	d, release, err := s.client.Acquire(ctx)
	if err != nil {
		return &ObjectError{OID: oid, Op: "remove_object", Err: err}
	}
	defer release()
	if err := d.DeleteDirectory(ctx, s.client.ContainerName(), oid); err != nil {
		return &ObjectError{OID: oid, Op: "remove_object", Err: backendError(d, oid, "delete_directory", err)}
	}
	s.logger.Info("Object removed", "oid", oid)
	return nil
}

// ObjectIDs lists the objects in the container, sorted. Listing failures are
// logged and yield an empty list.
func (s *Storage) ObjectIDs(ctx context.Context) []string {
	d, release, err := s.client.Acquire(ctx)
	if err != nil {
		s.logger.Error("Failed to list objects", "error", err)
		return []string{}
	}
	defer release()

	entries, err := d.List(ctx, s.client.ContainerName())
	if err != nil {
		s.logger.Error("Failed to list objects", "container", s.client.ContainerName(), "error", backendError(d, "", "list", err))
		return []string{}
	}

	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != StorageTypeFolder && entry.Type != StorageTypeRelativePath {
			continue
		}
		id := DirectoryName(entry.Name)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the backend session.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) objectExists(ctx context.Context, oid string) (bool, error) {
	d, release, err := s.client.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	exists, err := d.DirectoryExists(ctx, s.client.ContainerName(), oid)
	if err != nil {
		return false, backendError(d, oid, "directory_exists", err)
	}
	return exists, nil
}

// buffer reads r fully, failing once the detection bound is exceeded.
func (s *Storage) buffer(r io.Reader) ([]byte, error) {
	if s.maxDetectSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxDetectSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxDetectSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes buffered for content type detection, supply a content type", ErrInvalidArgument, s.maxDetectSize)
	}
	return data, nil
}

func validateOID(oid string) error {
	switch {
	case oid == "":
		return fmt.Errorf("%w: object id is required", ErrInvalidArgument)
	case strings.Contains(oid, "/"):
		return fmt.Errorf("%w: object id %q must not contain '/'", ErrInvalidArgument, oid)
	}
	return nil
}

// IsNotFound reports whether err means a missing object or payload.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
