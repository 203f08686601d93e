package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the MinIO driver.
const ProviderName = "minio"

// Config options for the MinIO driver
type Config struct {
	Endpoint        string // host:port of the MinIO server
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// Driver is a MinIO implementation of the objectstore.Driver interface.
type Driver struct {
	client *minio.Client
	region string
}

// New creates a MinIO driver
func New(config Config) (*Driver, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", objectstore.ErrConfig)
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Driver{client: client, region: config.Region}, nil
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; MinIO stores x-amz-meta headers.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	region := d.region
	if region == "" {
		region = "us-east-1"
	}
	return []objectstore.Location{{ID: region, Description: "MinIO region"}}, nil
}

func (d *Driver) CreateContainer(ctx context.Context, bucket, location string) error {
	exists, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := d.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := d.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, bucket, name string) (*objectstore.Blob, error) {
	stat, err := d.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: lowerKeys(stat.UserMetadata),
		ContentType:  stat.ContentType,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			obj, err := d.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
			if err != nil {
				if isNotFound(err) {
					return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
				}
				return nil, fmt.Errorf("failed to get object: %w", err)
			}
			return obj, nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, bucket string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	opts := minio.PutObjectOptions{
		ContentType:  blob.ContentType,
		UserMetadata: blob.UserMetadata,
	}
	size := blob.Size
	if !blob.SizeKnown() {
		size = -1
	}
	if _, err := d.client.PutObject(ctx, bucket, blob.Name, rc, size, opts); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, bucket, name string) error {
	err := d.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, bucket, dir string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range d.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix(dir),
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		return true, nil
	}
	return false, nil
}

// CreateDirectory writes an empty "dir/" marker object.
func (d *Driver) CreateDirectory(ctx context.Context, bucket, dir string) error {
	_, err := d.client.PutObject(ctx, bucket, prefix(dir), strings.NewReader(""), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, bucket, dir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := d.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix(dir),
		Recursive: true,
	})
	for result := range d.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("failed to remove %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// List reports common prefixes, whose keys end in "/", as folders.
func (d *Driver) List(ctx context.Context, bucket string) ([]objectstore.StorageMetadata, error) {
	var out []objectstore.StorageMetadata
	for obj := range d.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		t := objectstore.StorageTypeBlob
		if strings.HasSuffix(obj.Key, "/") {
			t = objectstore.StorageTypeFolder
		}
		out = append(out, objectstore.StorageMetadata{Name: obj.Key, Type: t})
	}
	return out, nil
}

func (d *Driver) Close() error {
	return nil
}

func prefix(dir string) string {
	return objectstore.DirectoryName(dir) + "/"
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// lowerKeys undoes the header canonicalisation minio-go applies to user
// metadata keys.
func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
