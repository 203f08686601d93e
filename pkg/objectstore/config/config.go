package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

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

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			Blobstore: BlobstoreConfig{
				Provider:      swift.ProviderName,
				ContainerName: objectstore.DefaultContainerName,
				RefreshAfter:  objectstore.DefaultRefreshAfter,
			},
		},
	}
}

// Config is the configuration document. Only the storage.blobstore section
// is read; other sections are ignored.
type Config struct {
	Storage StorageConfig `json:"storage"`
}

// StorageConfig wraps the blobstore section
type StorageConfig struct {
	Blobstore BlobstoreConfig `json:"blobstore"`
}

// BlobstoreConfig selects and configures the backend.
//
// Identity and Password are the backend credentials: the Keystone user and
// key for swift, the access key pair for s3 and minio, the account name and
// key for azureblob, and the project id and credentials file for
// google-cloud-storage.
type BlobstoreConfig struct {
	Provider      string `json:"provider" env:"OBJECTSTORE_PROVIDER"`
	Identity      string `json:"identity" env:"OBJECTSTORE_IDENTITY"`
	Password      string `json:"password" env:"OBJECTSTORE_PASSWORD"`
	ContainerName string `json:"containerName" env:"OBJECTSTORE_CONTAINER_NAME"`
	Location      string `json:"location" env:"OBJECTSTORE_LOCATION"`

	FileSystemLocation     string `json:"fileSystemLocation" env:"OBJECTSTORE_FILESYSTEM_LOCATION"`
	GridFsConnectionString string `json:"gridFsConnectionString" env:"OBJECTSTORE_GRIDFS_CONNECTION_STRING"`

	// SupportsUserMetadata overrides the capability reported by the driver
	SupportsUserMetadata OptionalBool `json:"supportsUserMetadata" env:"OBJECTSTORE_SUPPORTS_USER_METADATA"`

	Endpoint         string `json:"endpoint" env:"OBJECTSTORE_ENDPOINT"`
	Region           string `json:"region" env:"OBJECTSTORE_REGION"`
	UsePathStyle     bool   `json:"usePathStyle" env:"OBJECTSTORE_USE_PATH_STYLE"`
	UseSSL           bool   `json:"useSSL" env:"OBJECTSTORE_USE_SSL"`
	Tenant           string `json:"tenant" env:"OBJECTSTORE_TENANT"`
	Domain           string `json:"domain" env:"OBJECTSTORE_DOMAIN"`
	ConnectionString string `json:"connectionString" env:"OBJECTSTORE_CONNECTION_STRING"`
	DatabaseURL      string `json:"databaseUrl" env:"OBJECTSTORE_DATABASE_URL"`
	DatabaseSchema   string `json:"databaseSchema" env:"OBJECTSTORE_DATABASE_SCHEMA"`

	// SSEAlgorithm enables s3 server-side encryption: AES256 or aws:kms
	SSEAlgorithm string `json:"sseAlgorithm" env:"OBJECTSTORE_SSE_ALGORITHM"`
	SSEKMSKeyID  string `json:"sseKmsKeyId" env:"OBJECTSTORE_SSE_KMS_KEY_ID"`

	RefreshAfter      int          `json:"refreshAfter" env:"OBJECTSTORE_REFRESH_AFTER"`
	DetectContentType OptionalBool `json:"detectContentType" env:"OBJECTSTORE_DETECT_CONTENT_TYPE"`
	MaxDetectSize     int64        `json:"maxDetectSize" env:"OBJECTSTORE_MAX_DETECT_SIZE"`
}

// OptionalBool is a tri-state flag: unset, true or false. It decodes from a
// JSON boolean or a string such as "false".
type OptionalBool string

// UnmarshalJSON accepts true, false, "true", "false" and null.
func (b *OptionalBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*b = ""
	case bool:
		*b = OptionalBool(strconv.FormatBool(t))
	case string:
		*b = OptionalBool(strings.TrimSpace(t))
	default:
		return fmt.Errorf("expected boolean or string, got %s", string(data))
	}
	return nil
}

// Get returns the flag value and whether it was set.
func (b OptionalBool) Get() (bool, bool, error) {
	if b == "" {
		return false, false, nil
	}
	v, err := strconv.ParseBool(string(b))
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean %q", string(b))
	}
	return v, true, nil
}

func (b OptionalBool) ptr() *bool {
	v, ok, err := b.Get()
	if !ok || err != nil {
		return nil
	}
	return &v
}

// Bool returns a set OptionalBool
func Bool(v bool) OptionalBool {
	return OptionalBool(strconv.FormatBool(v))
}

var providerAliases = map[string]string{
	"transient":            memory.ProviderName,
	"memory":               memory.ProviderName,
	"filesystem":           fs.ProviderName,
	"fs":                   fs.ProviderName,
	"swift":                swift.ProviderName,
	"openstack-swift":      swift.ProviderName,
	"s3":                   s3.ProviderName,
	"aws-s3":               s3.ProviderName,
	"gridfs":               gridfs.ProviderName,
	"minio":                minio.ProviderName,
	"azureblob":            azure.ProviderName,
	"azure":                azure.ProviderName,
	"google-cloud-storage": gcs.ProviderName,
	"gcs":                  gcs.ProviderName,
	"postgres":             postgres.ProviderName,
}

// ProviderName resolves a provider alias to the driver name it selects.
func ProviderName(provider string) (string, bool) {
	name, ok := providerAliases[strings.ToLower(strings.TrimSpace(provider))]
	return name, ok
}

// Validate checks the provider and the keys it requires.
func (c *Config) Validate() error {
	b := &c.Storage.Blobstore

	provider, ok := ProviderName(b.Provider)
	if !ok {
		return fmt.Errorf("%w: unsupported provider %q", objectstore.ErrConfig, b.Provider)
	}
	b.Provider = provider

	if b.ContainerName == "" {
		return fmt.Errorf("%w: containerName cannot be empty", objectstore.ErrConfig)
	}
	if b.RefreshAfter < 0 {
		return fmt.Errorf("%w: refreshAfter must not be negative", objectstore.ErrConfig)
	}
	if _, _, err := b.SupportsUserMetadata.Get(); err != nil {
		return fmt.Errorf("%w: supportsUserMetadata: %v", objectstore.ErrConfig, err)
	}
	if _, _, err := b.DetectContentType.Get(); err != nil {
		return fmt.Errorf("%w: detectContentType: %v", objectstore.ErrConfig, err)
	}

	switch provider {
	case fs.ProviderName:
		if b.FileSystemLocation == "" {
			return fmt.Errorf("%w: fileSystemLocation is required for %s", objectstore.ErrConfig, provider)
		}
	case gridfs.ProviderName:
		if b.GridFsConnectionString == "" {
			return fmt.Errorf("%w: gridFsConnectionString is required for %s", objectstore.ErrConfig, provider)
		}
	case postgres.ProviderName:
		if b.DatabaseURL == "" {
			return fmt.Errorf("%w: databaseUrl is required for %s", objectstore.ErrConfig, provider)
		}
	case s3.ProviderName:
		switch b.SSEAlgorithm {
		case "", "AES256", "aws:kms":
		default:
			return fmt.Errorf("%w: unsupported sseAlgorithm %q", objectstore.ErrConfig, b.SSEAlgorithm)
		}
		if b.SSEKMSKeyID != "" && b.SSEAlgorithm != "aws:kms" {
			return fmt.Errorf("%w: sseKmsKeyId requires sseAlgorithm aws:kms", objectstore.ErrConfig)
		}
	case swift.ProviderName, minio.ProviderName:
		if b.Endpoint == "" {
			return fmt.Errorf("%w: endpoint is required for %s", objectstore.ErrConfig, provider)
		}
	case azure.ProviderName:
		if b.ConnectionString == "" && (b.Identity == "" || b.Password == "") {
			return fmt.Errorf("%w: connectionString or identity and password are required for %s", objectstore.ErrConfig, provider)
		}
	}

	return nil
}

// BuildClient creates the backend client. The driver is not dialed until
// the client is initialised.
func (c *Config) BuildClient(logger *slog.Logger) (*objectstore.Client, error) {
	b := c.Storage.Blobstore
	dial, err := b.Dialer(logger)
	if err != nil {
		return nil, err
	}
	return objectstore.NewClient(objectstore.ClientConfig{
		Provider:             b.Provider,
		ContainerName:        b.ContainerName,
		Location:             b.Location,
		SupportsUserMetadata: b.SupportsUserMetadata.ptr(),
		RefreshAfter:         b.RefreshAfter,
	}, dial, objectstore.WithClientLogger(logger))
}

// BuildStorage creates the storage facade over a new client.
func (c *Config) BuildStorage(logger *slog.Logger) (*objectstore.Storage, error) {
	client, err := c.BuildClient(logger)
	if err != nil {
		return nil, err
	}

	b := c.Storage.Blobstore
	opts := []objectstore.Option{objectstore.WithLogger(logger)}
	if detect := b.DetectContentType.ptr(); detect != nil {
		opts = append(opts, objectstore.WithContentDetection(*detect))
	}
	if b.MaxDetectSize != 0 {
		opts = append(opts, objectstore.WithMaxDetectSize(b.MaxDetectSize))
	}
	return objectstore.New(client, opts...)
}
