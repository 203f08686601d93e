package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the PostgreSQL driver.
const ProviderName = "postgres"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS objectstore_container (
	name       TEXT PRIMARY KEY,
	location   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS objectstore_blob (
	container    TEXT NOT NULL REFERENCES objectstore_container(name) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	data         BYTEA NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	metadata     JSONB NOT NULL DEFAULT '{}',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (container, name)
);`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Config options for the PostgreSQL driver
type Config struct {
	DatabaseURL string
	Schema      string // Optional search_path for every connection
}

// Driver stores blobs as bytea rows. It keeps user metadata in a jsonb
// column, so it supports user metadata natively.
type Driver struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and creates the blob tables when missing.
func New(ctx context.Context, config Config) (*Driver, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database_url is required for postgres", objectstore.ErrConfig)
	}
	cfg, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database url: %v", objectstore.ErrConfig, err)
	}
	if schema := config.Schema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	d := &Driver{db: pool, pool: pool}
	if err := d.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// NewWithDB creates a driver over an existing connection or transaction.
// The caller owns the connection and must run Migrate if needed.
func NewWithDB(db DBTX) *Driver {
	return &Driver{db: db}
}

// Migrate creates the container and blob tables.
func (d *Driver) Migrate(ctx context.Context) error {
	if _, err := d.db.Exec(ctx, schemaSQL); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

func (d *Driver) Name() string {
	return ProviderName
}

func (d *Driver) SupportsUserMetadata() bool {
	return true
}

func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{{ID: "default", Description: "PostgreSQL database"}}, nil
}

func (d *Driver) CreateContainer(ctx context.Context, name, location string) error {
	query := `INSERT INTO objectstore_container (name, location) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := d.db.Exec(ctx, query, name, location); err != nil {
		return handlePostgresError("create container", err)
	}
	return nil
}

func (d *Driver) BlobExists(ctx context.Context, container, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM objectstore_blob WHERE container = $1 AND name = $2)`
	var exists bool
	if err := d.db.QueryRow(ctx, query, container, name).Scan(&exists); err != nil {
		return false, handlePostgresError("blob exists", err)
	}
	return exists, nil
}

func (d *Driver) GetBlob(ctx context.Context, container, name string) (*objectstore.Blob, error) {
	query := `
		SELECT content_type, metadata, octet_length(data), updated_at
		FROM objectstore_blob WHERE container = $1 AND name = $2`

	var (
		contentType string
		metadata    map[string]string
		size        int64
		updatedAt   time.Time
	)
	err := d.db.QueryRow(ctx, query, container, name).Scan(&contentType, &metadata, &size, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
		}
		return nil, handlePostgresError("get blob", err)
	}

	return &objectstore.Blob{
		Name:         name,
		UserMetadata: metadata,
		ContentType:  contentType,
		Size:         size,
		LastModified: updatedAt,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			var data []byte
			err := d.db.QueryRow(ctx,
				`SELECT data FROM objectstore_blob WHERE container = $1 AND name = $2`,
				container, name).Scan(&data)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
				}
				return nil, handlePostgresError("read blob", err)
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}, nil
}

func (d *Driver) PutBlob(ctx context.Context, container string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read blob content: %w", err)
	}
	metadata := blob.UserMetadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	query := `
		INSERT INTO objectstore_blob (container, name, data, content_type, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (container, name) DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`
	if _, err := d.db.Exec(ctx, query, container, blob.Name, data, blob.ContentType, metadata); err != nil {
		return handlePostgresError("put blob", err)
	}
	return nil
}

func (d *Driver) RemoveBlob(ctx context.Context, container, name string) error {
	if _, err := d.db.Exec(ctx, `DELETE FROM objectstore_blob WHERE container = $1 AND name = $2`, container, name); err != nil {
		return handlePostgresError("remove blob", err)
	}
	return nil
}

func (d *Driver) DirectoryExists(ctx context.Context, container, dir string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM objectstore_blob WHERE container = $1 AND starts_with(name, $2))`
	var exists bool
	if err := d.db.QueryRow(ctx, query, container, prefix(dir)).Scan(&exists); err != nil {
		return false, handlePostgresError("directory exists", err)
	}
	return exists, nil
}

// CreateDirectory inserts an empty "dir/" marker row.
func (d *Driver) CreateDirectory(ctx context.Context, container, dir string) error {
	query := `
		INSERT INTO objectstore_blob (container, name, data)
		VALUES ($1, $2, ''::bytea)
		ON CONFLICT (container, name) DO NOTHING`
	if _, err := d.db.Exec(ctx, query, container, prefix(dir)); err != nil {
		return handlePostgresError("create directory", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, container, dir string) error {
	query := `DELETE FROM objectstore_blob WHERE container = $1 AND starts_with(name, $2)`
	if _, err := d.db.Exec(ctx, query, container, prefix(dir)); err != nil {
		return handlePostgresError("delete directory", err)
	}
	return nil
}

// List folds every name below the top level into its first path segment.
func (d *Driver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	query := `
		SELECT DISTINCT CASE WHEN strpos(name, '/') > 0 THEN split_part(name, '/', 1) || '/' ELSE name END
		FROM objectstore_blob WHERE container = $1
		ORDER BY 1`
	rows, err := d.db.Query(ctx, query, container)
	if err != nil {
		return nil, handlePostgresError("list", err)
	}
	defer rows.Close()

	var out []objectstore.StorageMetadata
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, handlePostgresError("list", err)
		}
		t := objectstore.StorageTypeBlob
		if strings.HasSuffix(name, "/") {
			t = objectstore.StorageTypeFolder
		}
		out = append(out, objectstore.StorageMetadata{Name: name, Type: t})
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list", err)
	}
	return out, nil
}

// Close releases the pool when the driver created it.
func (d *Driver) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

func prefix(dir string) string {
	return objectstore.DirectoryName(dir) + "/"
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("container not found in %s: %s", operation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
