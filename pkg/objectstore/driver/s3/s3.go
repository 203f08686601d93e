package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the S3 driver.
const ProviderName = "s3"

// Config options for the S3 driver
type Config struct {
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm
}

// Driver is an S3 implementation of the objectstore.Driver interface. The
// container is the bucket; directories are key prefixes with a "dir/" marker.
type Driver struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
}

// New creates an S3 driver
func New(ctx context.Context, config Config) (*Driver, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return &Driver{
		client:   client,
		uploader: manager.NewUploader(client),
		config:   config,
	}, nil
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; S3 stores user metadata as x-amz-meta headers.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

// Locations reports the configured region.
func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{{ID: d.config.Region, Description: "AWS region"}}, nil
}

// CreateContainer creates the bucket if it doesn't exist
func (d *Driver) CreateContainer(ctx context.Context, bucket, location string) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) && !strings.Contains(err.Error(), "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	region := location
	if region == "" {
		region = d.config.Region
	}
	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// Add location constraint for regions other than us-east-1
	if region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err = d.client.CreateBucket(ctx, createInput)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, bucket, name string) (*objectstore.Blob, error) {
	result, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	size := objectstore.UnknownSize
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: result.Metadata,
		ContentType:  aws.ToString(result.ContentType),
		Size:         size,
		LastModified: aws.ToTime(result.LastModified),
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(name),
			})
			if err != nil {
				if isNotFound(err) {
					return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
				}
				return nil, fmt.Errorf("failed to download from S3: %w", err)
			}
			return out.Body, nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, bucket string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	input := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(blob.Name),
		Body:     rc,
		Metadata: blob.UserMetadata,
	}
	if blob.ContentType != "" {
		input.ContentType = aws.String(blob.ContentType)
	}
	d.applySSE(input)

	if _, err := d.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (d *Driver) applySSE(input *s3.PutObjectInput) {
	if !d.config.EnableSSE {
		return
	}
	switch d.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if d.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(d.config.SSEKMSKeyID)
		}
	}
}

func (d *Driver) RemoveBlob(ctx context.Context, bucket, name string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, bucket, dir string) (bool, error) {
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix(dir)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects: %w", err)
	}
	return len(out.Contents) > 0, nil
}

// CreateDirectory writes an empty "dir/" marker object.
func (d *Driver) CreateDirectory(ctx context.Context, bucket, dir string) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(prefix(dir)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, bucket, dir string) error {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix(dir)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// List returns common prefixes as folders and top-level keys as blobs.
func (d *Driver) List(ctx context.Context, bucket string) ([]objectstore.StorageMetadata, error) {
	var out []objectstore.StorageMetadata
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, p := range page.CommonPrefixes {
			out = append(out, objectstore.StorageMetadata{Name: aws.ToString(p.Prefix), Type: objectstore.StorageTypeFolder})
		}
		for _, obj := range page.Contents {
			out = append(out, objectstore.StorageMetadata{Name: aws.ToString(obj.Key), Type: objectstore.StorageTypeBlob})
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

// isNotFound handles the typed and the generic API errors that S3 and
// S3-compatible services return for missing keys and buckets.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
