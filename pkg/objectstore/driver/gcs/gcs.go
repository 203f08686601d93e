package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the Google Cloud Storage driver.
const ProviderName = "google-cloud-storage"

// Config options for the Google Cloud Storage driver
type Config struct {
	ProjectID       string // Required to create buckets
	CredentialsFile string // Optional; application default credentials are used when empty
	Endpoint        string // Optional, for emulators such as fake-gcs-server
	Anonymous       bool   // Skip authentication, for emulators
}

// Driver is a Google Cloud Storage implementation of the objectstore.Driver
// interface.
type Driver struct {
	client    *storage.Client
	projectID string
}

// New creates a Google Cloud Storage driver
func New(ctx context.Context, config Config) (*Driver, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	if config.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &Driver{client: client, projectID: config.ProjectID}, nil
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; GCS keeps custom metadata on the object.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

// Locations lists the multi-region locations. Regional locations are
// accepted by CreateContainer as well.
func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{
		{ID: "US", Description: "United States multi-region"},
		{ID: "EU", Description: "European Union multi-region"},
		{ID: "ASIA", Description: "Asia multi-region"},
	}, nil
}

func (d *Driver) CreateContainer(ctx context.Context, bucket, location string) error {
	b := d.client.Bucket(bucket)
	_, err := b.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if d.projectID == "" {
		return fmt.Errorf("%w: gcs project id is required to create bucket %s", objectstore.ErrConfig, bucket)
	}
	if err := b.Create(ctx, d.projectID, &storage.BucketAttrs{Location: location}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := d.client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object attrs: %w", err)
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, bucket, name string) (*objectstore.Blob, error) {
	obj := d.client.Bucket(bucket).Object(name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("failed to get object attrs: %w", err)
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: attrs.Metadata,
		ContentType:  attrs.ContentType,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			r, err := obj.NewReader(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotExist) {
					return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
				}
				return nil, fmt.Errorf("failed to open object: %w", err)
			}
			return r, nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, bucket string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	w := d.client.Bucket(bucket).Object(blob.Name).NewWriter(ctx)
	w.ContentType = blob.ContentType
	if len(blob.UserMetadata) > 0 {
		w.Metadata = blob.UserMetadata
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, bucket, name string) error {
	err := d.client.Bucket(bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, bucket, dir string) (bool, error) {
	it := d.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix(dir)})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to list objects: %w", err)
	}
	return true, nil
}

// CreateDirectory writes an empty "dir/" marker object.
func (d *Driver) CreateDirectory(ctx context.Context, bucket, dir string) error {
	w := d.client.Bucket(bucket).Object(prefix(dir)).NewWriter(ctx)
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, bucket, dir string) error {
	it := d.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix(dir)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if err := d.RemoveBlob(ctx, bucket, attrs.Name); err != nil {
			return err
		}
	}
}

// List queries with a "/" delimiter; synthetic prefix entries become folders.
func (d *Driver) List(ctx context.Context, bucket string) ([]objectstore.StorageMetadata, error) {
	it := d.client.Bucket(bucket).Objects(ctx, &storage.Query{Delimiter: "/"})

	var out []objectstore.StorageMetadata
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if attrs.Prefix != "" {
			out = append(out, objectstore.StorageMetadata{Name: attrs.Prefix, Type: objectstore.StorageTypeFolder})
			continue
		}
		out = append(out, objectstore.StorageMetadata{Name: attrs.Name, Type: objectstore.StorageTypeBlob})
	}
}

func (d *Driver) Close() error {
	return d.client.Close()
}

func prefix(dir string) string {
	return objectstore.DirectoryName(dir) + "/"
}
