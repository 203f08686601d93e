package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ProviderName is the provider name of the GridFS driver.
const ProviderName = "gridfs"

// DefaultDatabase is used when the connection string names no database.
const DefaultDatabase = "fascinator"

// Config options for the GridFS driver
type Config struct {
	ConnectionString string // mongodb:// URI; its path selects the database
	Database         string // Optional database override
}

// Driver is a MongoDB GridFS implementation of the objectstore.Driver
// interface. Each container is a GridFS bucket; blob names are file names and
// user metadata lives in the file document.
type Driver struct {
	client   *mongo.Client
	database *mongo.Database
}

type fileDocument struct {
	ID         bson.ObjectID `bson:"_id"`
	Filename   string        `bson:"filename"`
	Length     int64         `bson:"length"`
	UploadDate time.Time     `bson:"uploadDate"`
	Metadata   fileMetadata  `bson:"metadata"`
}

type fileMetadata struct {
	ContentType  string            `bson:"contentType,omitempty"`
	UserMetadata map[string]string `bson:"userMetadata,omitempty"`
}

// New connects to MongoDB
func New(ctx context.Context, config Config) (*Driver, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("%w: gridfs connection string is required", objectstore.ErrConfig)
	}

	database := config.Database
	if database == "" {
		database = databaseFromURI(config.ConnectionString)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(config.ConnectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Driver{client: client, database: client.Database(database)}, nil
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return DefaultDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return DefaultDatabase
}

func (d *Driver) Name() string {
	return ProviderName
}

// SupportsUserMetadata is true; metadata is stored in the GridFS file document.
func (d *Driver) SupportsUserMetadata() bool {
	return true
}

// Locations is empty; GridFS has no assignable locations.
func (d *Driver) Locations(ctx context.Context) ([]objectstore.Location, error) {
	return []objectstore.Location{}, nil
}

// CreateContainer is a no-op; GridFS buckets are created on first write.
func (d *Driver) CreateContainer(ctx context.Context, container, location string) error {
	return nil
}

func (d *Driver) bucket(container string) *mongo.GridFSBucket {
	return d.database.GridFSBucket(options.GridFSBucket().SetName(container))
}

// latest returns the newest revision of a file.
func (d *Driver) latest(ctx context.Context, container, name string) (*fileDocument, error) {
	cursor, err := d.bucket(container).Find(ctx,
		bson.D{{Key: "filename", Value: name}},
		options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}}).SetLimit(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("failed to find file: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
	}
	var doc fileDocument
	if err := cursor.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode file document: %w", err)
	}
	return &doc, nil
}

func (d *Driver) BlobExists(ctx context.Context, container, name string) (bool, error) {
	_, err := d.latest(ctx, container, name)
	if errors.Is(err, objectstore.ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) GetBlob(ctx context.Context, container, name string) (*objectstore.Blob, error) {
	doc, err := d.latest(ctx, container, name)
	if err != nil {
		return nil, err
	}

	id := doc.ID
	return &objectstore.Blob{
		Name:         name,
		UserMetadata: doc.Metadata.UserMetadata,
		ContentType:  doc.Metadata.ContentType,
		Size:         doc.Length,
		LastModified: doc.UploadDate,
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			stream, err := d.bucket(container).OpenDownloadStream(ctx, id)
			if errors.Is(err, mongo.ErrFileNotFound) {
				return nil, fmt.Errorf("%w: %s", objectstore.ErrBlobNotFound, name)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to open download stream: %w", err)
			}
			return stream, nil
		},
	}, nil
}

// PutBlob uploads a new revision and then deletes the older ones.
func (d *Driver) PutBlob(ctx context.Context, container string, blob *objectstore.Blob) error {
	rc, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	bucket := d.bucket(container)
	meta := fileMetadata{ContentType: blob.ContentType, UserMetadata: blob.UserMetadata}
	id, err := bucket.UploadFromStream(ctx, blob.Name, rc, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return d.deleteWhere(ctx, container, bson.D{
		{Key: "filename", Value: blob.Name},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}},
	})
}

func (d *Driver) RemoveBlob(ctx context.Context, container, name string) error {
	return d.deleteWhere(ctx, container, bson.D{{Key: "filename", Value: name}})
}

func (d *Driver) DirectoryExists(ctx context.Context, container, dir string) (bool, error) {
	cursor, err := d.bucket(container).Find(ctx, prefixFilter(dir), options.GridFSFind().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to find files: %w", err)
	}
	defer cursor.Close(ctx)

	found := cursor.Next(ctx)
	if err := cursor.Err(); err != nil {
		return false, fmt.Errorf("failed to find files: %w", err)
	}
	return found, nil
}

// CreateDirectory uploads an empty "dir/" marker file.
func (d *Driver) CreateDirectory(ctx context.Context, container, dir string) error {
	_, err := d.bucket(container).UploadFromStream(ctx, prefix(dir), strings.NewReader(""))
	if err != nil {
		return fmt.Errorf("failed to create directory marker: %w", err)
	}
	return nil
}

func (d *Driver) DeleteDirectory(ctx context.Context, container, dir string) error {
	return d.deleteWhere(ctx, container, prefixFilter(dir))
}

func (d *Driver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	cursor, err := d.bucket(container).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to find files: %w", err)
	}
	defer cursor.Close(ctx)

	types := make(map[string]objectstore.StorageType)
	for cursor.Next(ctx) {
		var doc fileDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode file document: %w", err)
		}
		top, _, nested := strings.Cut(doc.Filename, "/")
		if nested {
			types[top] = objectstore.StorageTypeFolder
		} else if _, ok := types[top]; !ok {
			types[top] = objectstore.StorageTypeBlob
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to find files: %w", err)
	}

	out := make([]objectstore.StorageMetadata, 0, len(types))
	for name, t := range types {
		out = append(out, objectstore.StorageMetadata{Name: name, Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close disconnects from MongoDB.
func (d *Driver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *Driver) deleteWhere(ctx context.Context, container string, filter bson.D) error {
	bucket := d.bucket(container)
	cursor, err := bucket.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to find files: %w", err)
	}

	var ids []bson.ObjectID
	for cursor.Next(ctx) {
		var doc fileDocument
		if err := cursor.Decode(&doc); err != nil {
			cursor.Close(ctx)
			return fmt.Errorf("failed to decode file document: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	err = cursor.Err()
	cursor.Close(ctx)
	if err != nil {
		return fmt.Errorf("failed to find files: %w", err)
	}

	for _, id := range ids {
		if err := bucket.Delete(ctx, id); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func prefix(dir string) string {
	return objectstore.DirectoryName(dir) + "/"
}

func prefixFilter(dir string) bson.D {
	return bson.D{{Key: "filename", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix(dir))}}}}
}
