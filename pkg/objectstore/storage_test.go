package objectstore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/memory"
)

const container = "fascinator"

type metadataMode struct {
	name    string
	options []memory.Option
}

var modes = []metadataMode{
	{name: "NativeMetadata"},
	{name: "SidecarMetadata", options: []memory.Option{memory.WithoutUserMetadata()}},
}

func newStorage(t *testing.T, mode metadataMode, opts ...objectstore.Option) (*objectstore.Storage, *memory.Driver) {
	t.Helper()
	d := memory.New(mode.options...)
	client, err := objectstore.NewClient(objectstore.ClientConfig{
		Provider:      memory.ProviderName,
		ContainerName: container,
		RefreshAfter:  objectstore.DefaultRefreshAfter,
	}, d.Dialer())
	require.NoError(t, err)

	store, err := objectstore.New(client, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store, d
}

func readPayload(t *testing.T, p *objectstore.Payload) string {
	t.Helper()
	rc, err := p.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

type manifest struct {
	Items []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"items"`
}

func readManifest(t *testing.T, d *memory.Driver, oid string) manifest {
	t.Helper()
	ctx := context.Background()
	blob, err := d.GetBlob(ctx, container, oid+"/"+objectstore.ManifestName)
	require.NoError(t, err)
	rc, err := blob.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()

	var m manifest
	require.NoError(t, json.NewDecoder(rc).Decode(&m))
	return m
}

func manifestNames(m manifest) []string {
	names := []string{}
	for _, item := range m.Items {
		names = append(names, item.Name)
	}
	return names
}

func TestStorageIdentity(t *testing.T) {
	store, _ := newStorage(t, modes[0])
	assert.Equal(t, "blobstore", store.ID())
	assert.Equal(t, "Blobstore Storage Plugin", store.Name())
}

func TestCreateAndReadBack(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj1")
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader("hello"))
			require.NoError(t, err)

			assert.Contains(t, store.ObjectIDs(ctx), "obj1")

			reloaded, err := store.GetObject(ctx, "obj1")
			require.NoError(t, err)
			p, err := reloaded.GetPayload("data.txt")
			require.NoError(t, err)

			assert.Equal(t, "hello", readPayload(t, p))

			typ, err := p.Type(ctx)
			require.NoError(t, err)
			assert.Equal(t, objectstore.PayloadTypeSource, typ)

			label, err := p.Label(ctx)
			require.NoError(t, err)
			assert.Equal(t, "data.txt", label)

			contentType, err := p.ContentType(ctx)
			require.NoError(t, err)
			assert.Equal(t, "text/plain", contentType)

			size, err := p.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(5), size)

			modified, err := p.LastModified(ctx)
			require.NoError(t, err)
			assert.False(t, modified.IsZero())
		})
	}
}

func TestSecondPayloadIsOther(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, d := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj1")
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader("hello"))
			require.NoError(t, err)
			notes, err := obj.CreateStoredPayload(ctx, "notes", strings.NewReader("N"))
			require.NoError(t, err)

			typ, err := notes.Type(ctx)
			require.NoError(t, err)
			assert.Equal(t, objectstore.PayloadTypeOther, typ)
			assert.Equal(t, "data.txt", obj.SourceID())

			m := readManifest(t, d, "obj1")
			require.Len(t, m.Items, 2)
			assert.Equal(t, "data.txt", m.Items[0].Name)
			assert.Equal(t, "Source", m.Items[0].Type)
			assert.Equal(t, "notes", m.Items[1].Name)
			assert.Equal(t, "other", m.Items[1].Type)
		})
	}
}

func TestAnnotationPayload(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj1")
			require.NoError(t, err)

			meta, err := obj.CreateStoredPayload(ctx, objectstore.MetadataPayloadID, strings.NewReader("{}"))
			require.NoError(t, err)
			typ, err := meta.Type(ctx)
			require.NoError(t, err)
			assert.Equal(t, objectstore.PayloadTypeAnnotation, typ)
			assert.Empty(t, obj.SourceID())

			_, err = obj.CreateStoredPayload(ctx, "first", strings.NewReader("content"))
			require.NoError(t, err)
			assert.Equal(t, "first", obj.SourceID())

			reloaded, err := store.GetObject(ctx, "obj1")
			require.NoError(t, err)
			assert.Equal(t, "first", reloaded.SourceID())

			p, err := reloaded.GetPayload(objectstore.MetadataPayloadID)
			require.NoError(t, err)
			typ, err = p.Type(ctx)
			require.NoError(t, err)
			assert.Equal(t, objectstore.PayloadTypeAnnotation, typ)
		})
	}
}

func TestDuplicatePayloadRejected(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj1")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "x", strings.NewReader("original"))
	require.NoError(t, err)

	_, err = obj.CreateStoredPayload(ctx, "x", strings.NewReader("replacement"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, objectstore.ErrDuplicatePID))

	var payloadErr *objectstore.PayloadError
	require.True(t, errors.As(err, &payloadErr))
	assert.Equal(t, "x", payloadErr.PID)

	p, err := obj.GetPayload("x")
	require.NoError(t, err)
	assert.Equal(t, "original", readPayload(t, p))
}

func TestSidecarMode(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[1])
	require.False(t, store.Client().SupportsUserMetadata())

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "p", strings.NewReader("bytes"), objectstore.WithLabel("Primary = copy"))
	require.NoError(t, err)

	names := d.Names(container)
	assert.Contains(t, names, "obj/p")
	assert.Contains(t, names, "obj/p.meta")

	blob, err := d.GetBlob(ctx, container, "obj/p.meta")
	require.NoError(t, err)
	rc, err := blob.Open(ctx)
	require.NoError(t, err)
	sidecar, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "payloadtype = Source")

	reloaded, err := store.GetObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, reloaded.PayloadIDs())

	p, err := reloaded.GetPayload("p")
	require.NoError(t, err)
	label, err := p.Label(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Primary = copy", label)

	m := readManifest(t, d, "obj")
	assert.Equal(t, []string{"p"}, manifestNames(m))
}

func TestNativeModeWritesNoSidecar(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "p", strings.NewReader("bytes"))
	require.NoError(t, err)

	assert.Equal(t, []string{"obj/object-manifest", "obj/p"}, d.Names(container))

	blob, err := d.GetBlob(ctx, container, "obj/p")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"id":          "p",
		"payloadtype": "Source",
		"label":       "p",
		"linked":      "false",
		"contenttype": "text/plain",
	}, blob.UserMetadata)
}

func TestRemoveCleansUp(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, d := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj1")
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader("hello"))
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "notes", strings.NewReader("N"))
			require.NoError(t, err)

			require.NoError(t, obj.RemovePayload(ctx, "data.txt"))

			_, err = obj.GetPayload("data.txt")
			assert.True(t, errors.Is(err, objectstore.ErrNotFound))
			assert.NotContains(t, d.Names(container), "obj1/data.txt")
			assert.NotContains(t, d.Names(container), "obj1/data.txt.meta")
			assert.Equal(t, []string{"notes"}, manifestNames(readManifest(t, d, "obj1")))
			assert.Empty(t, obj.SourceID())

			reloaded, err := store.GetObject(ctx, "obj1")
			require.NoError(t, err)
			_, err = reloaded.GetPayload("data.txt")
			assert.True(t, errors.Is(err, objectstore.ErrNotFound))

			require.NoError(t, store.RemoveObject(ctx, "obj1"))
			for _, name := range d.Names(container) {
				assert.False(t, strings.HasPrefix(name, "obj1/"), "leftover blob %s", name)
			}
			assert.NotContains(t, store.ObjectIDs(ctx), "obj1")
		})
	}
}

func TestRemovedSourceIsReplaced(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "a", strings.NewReader("a"))
	require.NoError(t, err)
	require.NoError(t, obj.RemovePayload(ctx, "a"))

	p, err := obj.CreateStoredPayload(ctx, "b", strings.NewReader("b"))
	require.NoError(t, err)
	typ, err := p.Type(ctx)
	require.NoError(t, err)
	assert.Equal(t, objectstore.PayloadTypeSource, typ)
	assert.Equal(t, "b", obj.SourceID())
}

func TestManifestMatchesPayloads(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, d := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj")
			require.NoError(t, err)
			assert.Empty(t, manifestNames(readManifest(t, d, "obj")))

			steps := []struct {
				op   string
				pid  string
				want []string
			}{
				{"create", "a", []string{"a"}},
				{"create", "b", []string{"a", "b"}},
				{"create", objectstore.MetadataPayloadID, []string{"a", "b", objectstore.MetadataPayloadID}},
				{"update", "a", []string{"a", "b", objectstore.MetadataPayloadID}},
				{"remove", "b", []string{"a", objectstore.MetadataPayloadID}},
				{"create", "c", []string{"a", objectstore.MetadataPayloadID, "c"}},
			}
			for _, step := range steps {
				switch step.op {
				case "create":
					_, err = obj.CreateStoredPayload(ctx, step.pid, strings.NewReader(step.pid))
				case "update":
					_, err = obj.UpdatePayload(ctx, step.pid, strings.NewReader("updated"))
				case "remove":
					err = obj.RemovePayload(ctx, step.pid)
				}
				require.NoError(t, err, "%s %s", step.op, step.pid)
				assert.Equal(t, step.want, manifestNames(readManifest(t, d, "obj")), "%s %s", step.op, step.pid)
				assert.Equal(t, step.want, obj.PayloadIDs())

				sources := 0
				for _, pid := range obj.PayloadIDs() {
					p, err := obj.GetPayload(pid)
					require.NoError(t, err)
					typ, err := p.Type(ctx)
					require.NoError(t, err)
					if typ == objectstore.PayloadTypeSource {
						sources++
					}
				}
				assert.LessOrEqual(t, sources, 1)
			}
		})
	}
}

func TestMetadataRoundTripAcrossModes(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj")
			require.NoError(t, err)
			created, err := obj.CreateStoredPayload(ctx, "image", bytes.NewReader([]byte("\x89PNG\r\n\x1a\n")),
				objectstore.WithLabel("Cover image"))
			require.NoError(t, err)
			want, err := created.Metadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, "image/png", want.ContentType)

			reloaded, err := store.GetObject(ctx, "obj")
			require.NoError(t, err)
			p, err := reloaded.GetPayload("image")
			require.NoError(t, err)
			got, err := p.Metadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.False(t, got.Linked)
		})
	}
}

func TestReservedPayloadIDs(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)

	for _, pid := range []string{"", "p.meta", objectstore.ManifestName} {
		t.Run("pid="+pid, func(t *testing.T) {
			_, err := obj.CreateStoredPayload(ctx, pid, strings.NewReader("x"))
			assert.True(t, errors.Is(err, objectstore.ErrInvalidArgument), "got %v", err)
		})
	}
	assert.Empty(t, manifestNames(readManifest(t, d, "obj")))
}

func TestInvalidObjectIDs(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	for _, oid := range []string{"", "a/b"} {
		_, err := store.CreateObject(ctx, oid)
		assert.True(t, errors.Is(err, objectstore.ErrInvalidArgument), "create %q: %v", oid, err)
		_, err = store.GetObject(ctx, oid)
		assert.True(t, errors.Is(err, objectstore.ErrInvalidArgument), "get %q: %v", oid, err)
	}
}

func TestObjectLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	_, err := store.GetObject(ctx, "missing")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))

	err = store.RemoveObject(ctx, "missing")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))

	_, err = store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = store.CreateObject(ctx, "obj")
	assert.True(t, errors.Is(err, objectstore.ErrDuplicateOID))

	var objectErr *objectstore.ObjectError
	require.True(t, errors.As(err, &objectErr))
	assert.Equal(t, "obj", objectErr.OID)
}

func TestPayloadErrors(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)

	_, err = obj.CreateStoredPayload(ctx, "p", nil)
	assert.True(t, errors.Is(err, objectstore.ErrInvalidArgument))

	_, err = obj.GetPayload("missing")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))

	_, err = obj.UpdatePayload(ctx, "missing", strings.NewReader("x"))
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))

	err = obj.RemovePayload(ctx, "missing")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))
}

func TestUpdatePayload(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newStorage(t, mode)

			obj, err := store.CreateObject(ctx, "obj")
			require.NoError(t, err)
			_, err = obj.CreateStoredPayload(ctx, "doc", strings.NewReader("first"), objectstore.WithLabel("Document"))
			require.NoError(t, err)

			updated, err := obj.UpdatePayload(ctx, "doc", strings.NewReader("second version"))
			require.NoError(t, err)
			assert.Equal(t, "second version", readPayload(t, updated))

			meta, err := updated.Metadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Document", meta.Label)
			assert.Equal(t, objectstore.PayloadTypeSource, meta.Type)

			relabelled, err := obj.UpdatePayload(ctx, "doc", strings.NewReader("third"), objectstore.WithLabel("Renamed"))
			require.NoError(t, err)
			label, err := relabelled.Label(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Renamed", label)
		})
	}
}

func TestLinkedPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "source.txt")
	require.NoError(t, os.WriteFile(path, []byte("linked content"), 0o644))

	p, err := obj.CreateLinkedPayload(ctx, "linked", path)
	require.NoError(t, err)
	assert.Equal(t, "linked content", readPayload(t, p))

	meta, err := p.Metadata(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Linked)
	assert.Equal(t, objectstore.PayloadTypeSource, meta.Type)

	_, err = obj.CreateLinkedPayload(ctx, "missing", filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))
	assert.Equal(t, []string{"linked"}, obj.PayloadIDs())
}

func TestContentTypeOverride(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[1], objectstore.WithMaxDetectSize(4))

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)

	_, err = obj.CreateStoredPayload(ctx, "big", strings.NewReader("more than four bytes"))
	assert.True(t, errors.Is(err, objectstore.ErrInvalidArgument))
	assert.Empty(t, obj.PayloadIDs())

	p, err := obj.CreateStoredPayload(ctx, "big", strings.NewReader("more than four bytes"),
		objectstore.WithContentType("application/x-custom"))
	require.NoError(t, err)
	contentType, err := p.ContentType(ctx)
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", contentType)
	assert.Equal(t, "more than four bytes", readPayload(t, p))
}

func TestContentDetectionDisabled(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[0], objectstore.WithContentDetection(false))

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	p, err := obj.CreateStoredPayload(ctx, "data.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	contentType, err := p.ContentType(ctx)
	require.NoError(t, err)
	assert.Equal(t, objectstore.DefaultContentType, contentType)
}

func TestUpdateWithoutDetectionResetsContentType(t *testing.T) {
	ctx := context.Background()
	store, _ := newStorage(t, modes[1], objectstore.WithContentDetection(false))

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "doc", strings.NewReader("{}"), objectstore.WithContentType("application/json"))
	require.NoError(t, err)

	updated, err := obj.UpdatePayload(ctx, "doc", strings.NewReader("plain bytes"))
	require.NoError(t, err)
	contentType, err := updated.ContentType(ctx)
	require.NoError(t, err)
	assert.Equal(t, objectstore.DefaultContentType, contentType)

	reopened, err := store.GetObject(ctx, "obj")
	require.NoError(t, err)
	p, err := reopened.GetPayload("doc")
	require.NoError(t, err)
	contentType, err = p.ContentType(ctx)
	require.NoError(t, err)
	assert.Equal(t, objectstore.DefaultContentType, contentType)
}

func TestCustomDetector(t *testing.T) {
	ctx := context.Background()
	detector := objectstore.DetectorFunc(func(data []byte, filename string) string {
		return "application/x-" + filename
	})
	store, _ := newStorage(t, modes[0], objectstore.WithDetector(detector))

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	p, err := obj.CreateStoredPayload(ctx, "thing", strings.NewReader("x"))
	require.NoError(t, err)

	contentType, err := p.ContentType(ctx)
	require.NoError(t, err)
	assert.Equal(t, "application/x-thing", contentType)
}

func TestMissingSidecarLoadsDefaults(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[1])

	obj, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	_, err = obj.CreateStoredPayload(ctx, "p", strings.NewReader("x"), objectstore.WithLabel("Label"))
	require.NoError(t, err)
	require.NoError(t, d.RemoveBlob(ctx, container, "obj/p.meta"))

	reloaded, err := store.GetObject(ctx, "obj")
	require.NoError(t, err)
	assert.Empty(t, reloaded.SourceID())

	p, err := reloaded.GetPayload("p")
	require.NoError(t, err)
	label, err := p.Label(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p", label)
	assert.Equal(t, "x", readPayload(t, p))
}

func TestMalformedManifest(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[0])

	_, err := store.CreateObject(ctx, "obj")
	require.NoError(t, err)
	require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{
		Name: "obj/" + objectstore.ManifestName,
		Body: strings.NewReader("{not json"),
	}))

	_, err = store.GetObject(ctx, "obj")
	assert.True(t, errors.Is(err, objectstore.ErrFormat), "got %v", err)
}

func TestGetObjectCreatesMissingManifest(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[0])

	require.NoError(t, d.CreateDirectory(ctx, container, "bare"))
	obj, err := store.GetObject(ctx, "bare")
	require.NoError(t, err)
	assert.Empty(t, obj.PayloadIDs())
	assert.Contains(t, d.Names(container), "bare/"+objectstore.ManifestName)
}

type failingListDriver struct {
	*memory.Driver
}

func (failingListDriver) List(ctx context.Context, container string) ([]objectstore.StorageMetadata, error) {
	return nil, errors.New("listing unavailable")
}

func TestObjectIDsSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	d := failingListDriver{Driver: memory.New()}
	client, err := objectstore.NewClient(objectstore.ClientConfig{Provider: "failing"}, func(ctx context.Context) (objectstore.Driver, error) {
		return d, nil
	})
	require.NoError(t, err)
	store, err := objectstore.New(client)
	require.NoError(t, err)

	_, err = store.CreateObject(ctx, "obj")
	require.NoError(t, err)

	ids := store.ObjectIDs(ctx)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestObjectIDsSorted(t *testing.T) {
	ctx := context.Background()
	store, d := newStorage(t, modes[0])

	for _, oid := range []string{"b", "c", "a"} {
		_, err := store.CreateObject(ctx, oid)
		require.NoError(t, err)
	}
	require.NoError(t, d.PutBlob(ctx, container, &objectstore.Blob{Name: "loose-blob", Body: strings.NewReader("x")}))

	assert.Equal(t, []string{"a", "b", "c"}, store.ObjectIDs(ctx))
}

func TestNewStorageRequiresClient(t *testing.T) {
	_, err := objectstore.New(nil)
	assert.True(t, errors.Is(err, objectstore.ErrConfig))
}
