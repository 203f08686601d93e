// Package drivertest provides the conformance suite every objectstore driver
// runs against its backend.
package drivertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// Prefix returns a unique directory name so suites can share a container.
func Prefix(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("dt-%d", time.Now().UnixNano())
}

// RunDriver exercises the raw blob operations of d in container.
func RunDriver(t *testing.T, d objectstore.Driver, container string) {
	ctx := context.Background()
	dir := Prefix(t)

	require.NoError(t, d.CreateContainer(ctx, container, ""))
	require.NoError(t, d.CreateContainer(ctx, container, ""), "CreateContainer must be idempotent")

	t.Cleanup(func() {
		_ = d.DeleteDirectory(context.Background(), container, dir)
	})

	t.Run("Name", func(t *testing.T) {
		assert.NotEmpty(t, d.Name())
	})

	t.Run("PutAndGet", func(t *testing.T) {
		name := dir + "/hello.txt"
		err := d.PutBlob(ctx, container, &objectstore.Blob{
			Name:         name,
			ContentType:  "text/plain",
			Size:         5,
			Body:         strings.NewReader("hello"),
			UserMetadata: map[string]string{"label": "Greeting", "payloadtype": "Source"},
		})
		require.NoError(t, err)

		exists, err := d.BlobExists(ctx, container, name)
		require.NoError(t, err)
		assert.True(t, exists)

		blob, err := d.GetBlob(ctx, container, name)
		require.NoError(t, err)
		assert.Equal(t, name, blob.Name)
		if blob.SizeKnown() {
			assert.Equal(t, int64(5), blob.Size)
		}
		assert.Equal(t, "hello", read(t, blob))

		if d.SupportsUserMetadata() {
			assert.Equal(t, "Greeting", blob.UserMetadata["label"])
			assert.Equal(t, "Source", blob.UserMetadata["payloadtype"])
		}
	})

	t.Run("UnknownSizeUpload", func(t *testing.T) {
		name := dir + "/streamed.bin"
		payload := bytes.Repeat([]byte{0x01, 0x02, 0x03}, 1000)
		err := d.PutBlob(ctx, container, &objectstore.Blob{
			Name: name,
			Size: objectstore.UnknownSize,
			Body: bytes.NewReader(payload),
		})
		require.NoError(t, err)

		blob, err := d.GetBlob(ctx, container, name)
		require.NoError(t, err)
		assert.Equal(t, string(payload), read(t, blob))
	})

	t.Run("Overwrite", func(t *testing.T) {
		name := dir + "/overwrite.txt"
		require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: name, Size: 3, Body: strings.NewReader("one")}))
		require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: name, Size: 3, Body: strings.NewReader("two")}))

		blob, err := d.GetBlob(ctx, container, name)
		require.NoError(t, err)
		assert.Equal(t, "two", read(t, blob))
	})

	t.Run("MissingBlob", func(t *testing.T) {
		name := dir + "/missing"
		exists, err := d.BlobExists(ctx, container, name)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = d.GetBlob(ctx, container, name)
		assert.True(t, errors.Is(err, objectstore.ErrBlobNotFound), "got %v", err)

		assert.NoError(t, d.RemoveBlob(ctx, container, name), "RemoveBlob of a missing blob must succeed")
	})

	t.Run("RemoveBlob", func(t *testing.T) {
		name := dir + "/remove.txt"
		require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: name, Size: 1, Body: strings.NewReader("x")}))
		require.NoError(t, d.RemoveBlob(ctx, container, name))

		exists, err := d.BlobExists(ctx, container, name)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Directories", func(t *testing.T) {
		sub := dir + "-obj"
		t.Cleanup(func() { _ = d.DeleteDirectory(context.Background(), container, sub) })

		exists, err := d.DirectoryExists(ctx, container, sub)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, d.CreateDirectory(ctx, container, sub))
		exists, err = d.DirectoryExists(ctx, container, sub)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: sub + "/a", Size: 1, Body: strings.NewReader("a")}))
		require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: sub + "/b", Size: 1, Body: strings.NewReader("b")}))

		entries, err := d.List(ctx, container)
		require.NoError(t, err)
		found := false
		for _, e := range entries {
			if objectstore.DirectoryName(e.Name) == sub {
				found = true
				assert.Contains(t, []objectstore.StorageType{objectstore.StorageTypeFolder, objectstore.StorageTypeRelativePath}, e.Type)
			}
		}
		assert.True(t, found, "List must report %s as a folder", sub)

		require.NoError(t, d.DeleteDirectory(ctx, container, sub))
		exists, err = d.DirectoryExists(ctx, container, sub)
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = d.BlobExists(ctx, container, sub+"/a")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

// RunStorage exercises a Storage built on dial in both metadata modes the
// driver can serve. dial is called once per session and must reach the same
// backend every time.
func RunStorage(t *testing.T, dial objectstore.DialFunc, container string) {
	ctx := context.Background()

	modes := []struct {
		name     string
		override *bool
	}{
		{"Detected", nil},
		{"Sidecar", boolPtr(false)},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			client, err := objectstore.NewClient(objectstore.ClientConfig{
				Provider:             "drivertest",
				ContainerName:        container,
				SupportsUserMetadata: mode.override,
				RefreshAfter:         objectstore.DefaultRefreshAfter,
			}, dial)
			require.NoError(t, err)

			store, err := objectstore.New(client)
			require.NoError(t, err)
			require.NoError(t, store.Init(ctx))
			t.Cleanup(func() { _ = store.Close() })

			oid := Prefix(t) + "-" + strings.ToLower(mode.name)
			t.Cleanup(func() { _ = store.RemoveObject(context.Background(), oid) })

			obj, err := store.CreateObject(ctx, oid)
			require.NoError(t, err)

			_, err = obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader("hello"))
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "notes", strings.NewReader("N"), objectstore.WithLabel("Notes"))
			require.NoError(t, err)

			assert.Contains(t, store.ObjectIDs(ctx), oid)

			reloaded, err := store.GetObject(ctx, oid)
			require.NoError(t, err)
			assert.Equal(t, []string{"data.txt", "notes"}, reloaded.PayloadIDs())
			assert.Equal(t, "data.txt", reloaded.SourceID())

			p, err := reloaded.GetPayload("notes")
			require.NoError(t, err)
			meta, err := p.Metadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Notes", meta.Label)
			assert.Equal(t, objectstore.PayloadTypeOther, meta.Type)

			p, err = reloaded.GetPayload("data.txt")
			require.NoError(t, err)
			rc, err := p.Open(ctx)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))

			require.NoError(t, reloaded.RemovePayload(ctx, "notes"))
			_, err = reloaded.GetPayload("notes")
			assert.True(t, errors.Is(err, objectstore.ErrNotFound))

			require.NoError(t, store.RemoveObject(ctx, oid))
			_, err = store.GetObject(ctx, oid)
			assert.True(t, errors.Is(err, objectstore.ErrNotFound))
		})
	}
}

func read(t *testing.T, blob *objectstore.Blob) string {
	t.Helper()
	rc, err := blob.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func boolPtr(v bool) *bool {
	return &v
}
