package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the Azure Blob Storage driver.
const ProviderName = "azureblob"

// Config options for the Azure Blob Storage driver. Either ConnectionString or
// AccountName and AccountKey must be set.
type Config struct {
	ConnectionString string
	AccountName      string
	AccountKey       string
	Endpoint         string // Optional service URL; defaults to https://<account>.blob.core.windows.net/
}

// Driver is an Azure Blob Storage implementation of the objectstore.Driver
// interface. Directories are virtual, marked with an empty "dir/" blob.
type Driver struct {
	client *azblob.Client
}

// New creates an Azure Blob Storage driver
func New(config Config) (*Driver, error) {
	var (
		client *azblob.Client
		err    error
	)
	switch {
	case config.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(config.ConnectionString, nil)
	case config.AccountName != "" && config.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("%w: invalid azure credentials: %v", objectstore.ErrConfig, credErr)
		}
		endpoint := config.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", config.AccountName)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	default:
		return nil, fmt.Errorf("%w: azure connection string or account credentials are required", objectstore.ErrConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	return &Driver{client: client}, nil
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; Azure stores x-ms-meta headers.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

// Locations is empty; the storage account fixes the region.
func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{}, nil
}

func (d *Driver) CreateContainer(ctx context.Context, name, location string) error {
	_, err := d.client.CreateContainer(ctx, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

func (d *Driver) blobClient(containerName, name string) *blob.Client {
	return d.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)
}

func (d *Driver) BlobExists(ctx context.Context, containerName, name string) (bool, error) {
	_, err := d.blobClient(containerName, name).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get blob properties: %w", err)
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, containerName, name string) (*objectstore.Blob, error) {
	props, err := d.blobClient(containerName, name).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	b := &objectstore.Blob{
		Name:         name,
		UserMetadata: ptrMapToMap(props.Metadata),
		ContentType:  deref(props.ContentType),
		Size:         objectstore.UnknownSize,
		LastModified: deref(props.LastModified),
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			resp, err := d.client.DownloadStream(ctx, containerName, name, nil)
			if err != nil {
				if isNotFound(err) {
					return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
				}
				return nil, fmt.Errorf("failed to download blob: %w", err)
			}
			return resp.Body, nil
		},
	}
	if props.ContentLength != nil {
		b.Size = *props.ContentLength
	}
	return b, nil
}

func (d *Driver) PutBlob(ctx context.Context, containerName string, b *objectstore.Blob) error {
	rc, err := b.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	opts := &azblob.UploadStreamOptions{
		Metadata: mapToPtrMap(b.UserMetadata),
	}
	if b.ContentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: ptr(b.ContentType)}
	}
	if _, err := d.client.UploadStream(ctx, containerName, b.Name, rc, opts); err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, containerName, name string) error {
	_, err := d.client.DeleteBlob(ctx, containerName, name, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, containerName, dir string) (bool, error) {
	pager := d.client.NewListBlobsFlatPager(containerName, &container.ListBlobsFlatOptions{
		Prefix:     ptr(prefix(dir)),
		MaxResults: ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list blobs: %w", err)
	}
	return len(page.Segment.BlobItems) > 0, nil
}

// CreateDirectory uploads an empty "dir/" marker blob.
func (d *Driver) CreateDirectory(ctx context.Context, containerName, dir string) error {
	if _, err := d.client.UploadBuffer(ctx, containerName, prefix(dir), []byte{}, nil); err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, containerName, dir string) error {
	pager := d.client.NewListBlobsFlatPager(containerName, &container.ListBlobsFlatOptions{
		Prefix: ptr(prefix(dir)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if err := d.RemoveBlob(ctx, containerName, deref(item.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// List walks the container hierarchy one level deep using "/" as delimiter.
func (d *Driver) List(ctx context.Context, containerName string) ([]objectstore.StorageMetadata, error) {
	pager := d.client.ServiceClient().NewContainerClient(containerName).NewListBlobsHierarchyPager("/", nil)

	var out []objectstore.StorageMetadata
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, p := range page.Segment.BlobPrefixes {
			out = append(out, objectstore.StorageMetadata{Name: deref(p.Name), Type: objectstore.StorageTypeFolder})
		}
		for _, item := range page.Segment.BlobItems {
			out = append(out, objectstore.StorageMetadata{Name: deref(item.Name), Type: objectstore.StorageTypeBlob})
		}
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
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// ptrMapToMap converts map[string]*string to map[string]string. Keys are
// lowercased since the service may return them in header case.
func ptrMapToMap(m map[string]*string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			result[strings.ToLower(k)] = *v
		}
	}
	return result
}

// mapToPtrMap converts map[string]string to map[string]*string.
func mapToPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}
	result := make(map[string]*string, len(m))
	for k, v := range m {
		result[k] = ptr(v)
	}
	return result
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
