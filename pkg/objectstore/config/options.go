package config

import (
	"encoding/json"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithFile reads a JSON configuration file, then applies OBJECTSTORE_*
// environment overrides.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return fmt.Errorf("config file path cannot be empty")
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithJSON decodes a JSON configuration document
func WithJSON(data []byte) Option {
	return func(c *Config) error {
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		return nil
	}
}

// WithEnv applies OBJECTSTORE_* environment variable overrides.
//
//	OBJECTSTORE_PROVIDER                 - swift, filesystem, gridfs, s3, minio, azureblob, gcs, postgres, transient
//	OBJECTSTORE_IDENTITY                 - backend identity
//	OBJECTSTORE_PASSWORD                 - backend credential
//	OBJECTSTORE_CONTAINER_NAME           - container (default: fascinator)
//	OBJECTSTORE_LOCATION                 - optional location id
//	OBJECTSTORE_FILESYSTEM_LOCATION      - base directory for filesystem
//	OBJECTSTORE_GRIDFS_CONNECTION_STRING - mongodb:// URI for gridfs
//	OBJECTSTORE_SUPPORTS_USER_METADATA   - true or false to override detection
//	OBJECTSTORE_ENDPOINT                 - auth or service endpoint
//	OBJECTSTORE_DATABASE_URL             - postgres:// URI for postgres
//	OBJECTSTORE_REFRESH_AFTER            - calls per session, 0 disables refresh
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithProvider sets the backend provider
func WithProvider(provider string) Option {
	return func(c *Config) error {
		if provider == "" {
			return fmt.Errorf("provider cannot be empty")
		}
		c.Storage.Blobstore.Provider = provider
		return nil
	}
}

// WithContainer sets the container name
func WithContainer(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("container name cannot be empty")
		}
		c.Storage.Blobstore.ContainerName = name
		return nil
	}
}

// WithFilesystem selects the filesystem provider rooted at baseDir
func WithFilesystem(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage.Blobstore.Provider = "filesystem"
		c.Storage.Blobstore.FileSystemLocation = baseDir
		return nil
	}
}

// WithSupportsUserMetadata overrides the driver capability
func WithSupportsUserMetadata(supported bool) Option {
	return func(c *Config) error {
		c.Storage.Blobstore.SupportsUserMetadata = Bool(supported)
		return nil
	}
}

// WithRefreshAfter sets how many driver calls a session serves
func WithRefreshAfter(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("refreshAfter must not be negative, got: %d", n)
		}
		c.Storage.Blobstore.RefreshAfter = n
		return nil
	}
}
