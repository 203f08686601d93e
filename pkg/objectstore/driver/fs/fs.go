package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the filesystem driver.
const ProviderName = "filesystem"

// xattrName holds the JSON encoded blob attributes.
const xattrName = "user.objectstore.meta"

const tempPrefix = ".tmp-"

// Config options for the filesystem driver
type Config struct {
	BaseDir string       // Base directory; each container is a subdirectory
	Logger  *slog.Logger // Optional logger
}

// Driver is a filesystem implementation of the objectstore.Driver interface.
// User metadata is kept in an extended attribute of each blob file when the
// filesystem supports them.
type Driver struct {
	baseDir string
	xattr   bool
	logger  *slog.Logger
}

type attributes struct {
	ContentType  string            `json:"content_type,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// New creates a filesystem driver, creating the base directory if needed and
// probing it for extended attribute support.
func New(config Config) (*Driver, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", objectstore.ErrConfig)
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create base directory: %v", objectstore.ErrConfig, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		baseDir: filepath.Clean(config.BaseDir),
		logger:  logger,
	}
	d.xattr = probeXattr(d.baseDir)
	if !d.xattr {
		logger.Info("Filesystem does not support extended attributes, payload metadata goes to sidecar blobs", "base_dir", d.baseDir)
	}
	return d, nil
}

// probeXattr reports whether files under dir accept user extended attributes.
func probeXattr(dir string) bool {
	path := filepath.Join(dir, tempPrefix+"probe-"+uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return false
	}
	f.Close()
	defer os.Remove(path)

	return setxattr(path, []byte("{}")) == nil
}

func (d *Driver) Name() string {
	return ProviderName
}

func (d *Driver) SupportsUserMetadata() bool {
	return d.xattr
}

// BaseDir returns the directory holding every container.
func (d *Driver) BaseDir() string {
	return d.baseDir
}

func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{{ID: "default", Description: d.baseDir}}, nil
}

func (d *Driver) CreateContainer(ctx context.Context, container, location string) error {
	dir, err := d.path(container, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create container directory: %w", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, container, name string) (bool, error) {
	path, err := d.path(container, name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (d *Driver) GetBlob(ctx context.Context, container, name string) (*objectstore.Blob, error) {
	path, err := d.path(container, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}

	attrs, err := d.readAttributes(path)
	if err != nil {
		return nil, err
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: attrs.UserMetadata,
		ContentType:  attrs.ContentType,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			f, err := os.Open(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to open blob: %w", err)
			}
			return f, nil
		},
	}, nil
}

// PutBlob writes the content to a temporary file next to the target and
// renames it into place, so readers never see a partial blob.
func (d *Driver) PutBlob(ctx context.Context, container string, blob *objectstore.Blob) error {
	path, err := d.path(container, blob.Name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if d.xattr {
		data, err := json.Marshal(attributes{ContentType: blob.ContentType, UserMetadata: blob.UserMetadata})
		if err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to encode attributes: %w", err)
		}
		if err := setxattr(tmp, data); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to set attributes: %w", err)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, container, name string) error {
	path, err := d.path(container, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, container, dir string) (bool, error) {
	path, err := d.path(container, objectstore.DirectoryName(dir))
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat directory: %w", err)
	}
	return info.IsDir(), nil
}

func (d *Driver) CreateDirectory(ctx context.Context, container, dir string) error {
	path, err := d.path(container, objectstore.DirectoryName(dir))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, container, dir string) error {
	name := objectstore.DirectoryName(dir)
	if name == "" {
		return fmt.Errorf("refusing to delete the container root")
	}
	path, err := d.path(container, name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	return nil
}

func (d *Driver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	dir, err := d.path(container, "")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read container directory: %w", err)
	}

	out := make([]objectstore.StorageMetadata, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		t := objectstore.StorageTypeBlob
		if entry.IsDir() {
			t = objectstore.StorageTypeRelativePath
		}
		out = append(out, objectstore.StorageMetadata{Name: entry.Name(), Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *Driver) Close() error {
	return nil
}

func (d *Driver) readAttributes(path string) (attributes, error) {
	var attrs attributes
	if !d.xattr {
		return attrs, nil
	}
	data, err := getxattr(path)
	if err != nil {
		return attrs, fmt.Errorf("failed to read attributes: %w", err)
	}
	if len(data) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		d.logger.Warn("Ignoring unreadable blob attributes", "path", path, "error", err)
		return attributes{}, nil
	}
	return attrs, nil
}

// path resolves a blob name inside a container, refusing names that would
// escape it.
func (d *Driver) path(container, name string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	if name == "" {
		return filepath.Join(d.baseDir, container), nil
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("invalid blob name %q", name)
		}
	}
	return filepath.Join(d.baseDir, container, filepath.FromSlash(name)), nil
}
