package swift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ncw/swift/v2"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the OpenStack Swift driver.
const ProviderName = "swift"

const directoryContentType = "application/directory"

// Config options for the Swift driver
type Config struct {
	AuthURL  string // Keystone or TempAuth endpoint
	UserName string // Identity
	APIKey   string // Password or API key
	Region   string // Optional region
	Tenant   string // Optional tenant (project) name
	Domain   string // Optional user domain for Keystone v3
	Timeout  time.Duration
}

// Driver is an OpenStack Swift implementation of the objectstore.Driver
// interface. Directories are pseudo-directories with "dir/" marker objects.
type Driver struct {
	conn   *swift.Connection
	region string
}

// New authenticates against Swift and returns a driver session
func New(ctx context.Context, config Config) (*Driver, error) {
	if config.AuthURL == "" {
		return nil, fmt.Errorf("%w: swift auth endpoint is required", objectstore.ErrConfig)
	}

	conn := &swift.Connection{
		UserName: config.UserName,
		ApiKey:   config.APIKey,
		AuthUrl:  config.AuthURL,
		Region:   config.Region,
		Tenant:   config.Tenant,
		Domain:   config.Domain,
	}
	if config.Timeout > 0 {
		conn.Timeout = config.Timeout
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with swift: %w", err)
	}

	return &Driver{conn: conn, region: config.Region}, nil
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; Swift keeps X-Object-Meta-* headers.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

// Locations reports the region the session authenticated against.
func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	region := d.region
	if region == "" {
		region = d.conn.Region
	}
	if region == "" {
		return []objectstore.Location{}, nil
	}
	return []objectstore.Location{{ID: region, Description: "Swift region"}}, nil
}

// CreateContainer is idempotent in Swift; PUT on an existing container succeeds.
func (d *Driver) CreateContainer(ctx context.Context, container, location string) error {
	if err := d.conn.ContainerCreate(ctx, container, nil); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, container, name string) (bool, error) {
	_, _, err := d.conn.Object(ctx, container, name)
	if errors.Is(err, swift.ObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, container, name string) (*objectstore.Blob, error) {
	info, headers, err := d.conn.Object(ctx, container, name)
	if errors.Is(err, swift.ObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: headers.ObjectMetadata(),
		ContentType:  info.ContentType,
		Size:         info.Bytes,
		LastModified: info.LastModified,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			f, _, err := d.conn.ObjectOpen(ctx, container, name, false, nil)
			if errors.Is(err, swift.ObjectNotFound) {
				return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to open object: %w", err)
			}
			return f, nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, container string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	headers := swift.Metadata(blob.UserMetadata).ObjectHeaders()
	if _, err := d.conn.ObjectPut(ctx, container, blob.Name, rc, false, "", blob.ContentType, headers); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, container, name string) error {
	err := d.conn.ObjectDelete(ctx, container, name)
	if err != nil && !errors.Is(err, swift.ObjectNotFound) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, container, dir string) (bool, error) {
	objects, err := d.conn.Objects(ctx, container, &swift.ObjectsOpts{
		Prefix: prefix(dir),
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects: %w", err)
	}
	return len(objects) > 0, nil
}

// CreateDirectory writes a zero-length "dir/" pseudo-directory marker.
func (d *Driver) CreateDirectory(ctx context.Context, container, dir string) error {
	_, err := d.conn.ObjectPut(ctx, container, prefix(dir), strings.NewReader(""), false, "", directoryContentType, nil)
	if err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, container, dir string) error {
	names, err := d.conn.ObjectNamesAll(ctx, container, &swift.ObjectsOpts{Prefix: prefix(dir)})
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}
	for _, name := range names {
		if err := d.RemoveBlob(ctx, container, name); err != nil {
			return err
		}
	}
	return nil
}

// List uses the '/' delimiter so that pseudo-directories are reported once.
func (d *Driver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	objects, err := d.conn.ObjectsAll(ctx, container, &swift.ObjectsOpts{Delimiter: '/'})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	out := make([]objectstore.StorageMetadata, 0, len(objects))
	for _, obj := range objects {
		t := objectstore.StorageTypeBlob
		if obj.PseudoDirectory {
			t = objectstore.StorageTypeRelativePath
		}
		out = append(out, objectstore.StorageMetadata{Name: obj.Name, Type: t})
	}
	return out, nil
}

func (d *Driver) Close() error {
	d.conn.UnAuthenticate()
	return nil
}

func prefix(dir string) string {
	return objectstore.DirectoryName(dir) + "/"
}
