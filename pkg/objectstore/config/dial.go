package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/azure"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/fs"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/gcs"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/gridfs"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/memory"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/minio"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/postgres"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/s3"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/swift"
)

// Dialer returns the function that opens a driver session for the
// configured provider. The transient provider keeps one in-process store
// across sessions.
func (b BlobstoreConfig) Dialer(logger *slog.Logger) (objectstore.DialFunc, error) {
	provider, ok := ProviderName(b.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", objectstore.ErrConfig, b.Provider)
	}

	switch provider {
	case memory.ProviderName:
		var opts []memory.Option
		if b.Location != "" {
			opts = append(opts, memory.WithLocations(objectstore.Location{ID: b.Location}))
		}
		if supported, set, _ := b.SupportsUserMetadata.Get(); set && !supported {
			opts = append(opts, memory.WithoutUserMetadata())
		}
		return memory.New(opts...).Dialer(), nil

	case fs.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return fs.New(fs.Config{BaseDir: b.FileSystemLocation, Logger: logger})
		}, nil

	case swift.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return swift.New(ctx, swift.Config{
				AuthURL:  b.Endpoint,
				UserName: b.Identity,
				APIKey:   b.Password,
				Region:   b.Region,
				Tenant:   b.Tenant,
				Domain:   b.Domain,
			})
		}, nil

	case s3.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return s3.New(ctx, b.s3Config())
		}, nil

	case minio.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return minio.New(minio.Config{
				Endpoint:        b.Endpoint,
				AccessKeyID:     b.Identity,
				SecretAccessKey: b.Password,
				Region:          b.region(),
				UseSSL:          b.UseSSL,
			})
		}, nil

	case gridfs.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return gridfs.New(ctx, gridfs.Config{ConnectionString: b.GridFsConnectionString})
		}, nil

	case azure.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return azure.New(azure.Config{
				ConnectionString: b.ConnectionString,
				AccountName:      b.Identity,
				AccountKey:       b.Password,
				Endpoint:         b.Endpoint,
			})
		}, nil

	case gcs.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return gcs.New(ctx, gcs.Config{
				ProjectID:       b.Identity,
				CredentialsFile: b.Password,
				Endpoint:        b.Endpoint,
				Anonymous:       b.Endpoint != "" && b.Password == "",
			})
		}, nil

	case postgres.ProviderName:
		return func(ctx context.Context) (objectstore.Driver, error) {
			return postgres.New(ctx, postgres.Config{DatabaseURL: b.DatabaseURL, Schema: b.DatabaseSchema})
		}, nil
	}

	return nil, fmt.Errorf("%w: unsupported provider %q", objectstore.ErrConfig, b.Provider)
}

// region falls back to the location id, which names the region for the
// S3-style providers.
func (b BlobstoreConfig) region() string {
	if b.Region != "" {
		return b.Region
	}
	return b.Location
}

func (b BlobstoreConfig) s3Config() s3.Config {
	return s3.Config{
		Region:          b.region(),
		AccessKeyID:     b.Identity,
		SecretAccessKey: b.Password,
		Endpoint:        b.Endpoint,
		UsePathStyle:    b.UsePathStyle,
		EnableSSE:       b.SSEAlgorithm != "",
		SSEAlgorithm:    b.SSEAlgorithm,
		SSEKMSKeyID:     b.SSEKMSKeyID,
	}
}
