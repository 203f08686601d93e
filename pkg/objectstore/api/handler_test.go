package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
	"github.com/tendant/simple-objectstore/pkg/objectstore/driver/memory"
)

// setupHandlerTest creates a Handler over an in-memory storage
func setupHandlerTest(t *testing.T) (http.Handler, *objectstore.Storage) {
	client, err := objectstore.NewClient(objectstore.ClientConfig{Provider: memory.ProviderName}, memory.New().Dialer())
	require.NoError(t, err)
	store, err := objectstore.New(client)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return RequestIDMiddleware(NewHandler(store, nil).Routes()), store
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateAndListObjects(t *testing.T) {
	h, _ := setupHandlerTest(t)

	w := do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"obj1"}`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[ObjectResponse](t, w)
	assert.Equal(t, "obj1", created.ID)
	assert.Empty(t, created.Payloads)

	w = do(t, h, http.MethodPost, "/objects", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	generated := decode[ObjectResponse](t, w)
	assert.Len(t, generated.ID, 36)

	w = do(t, h, http.MethodGet, "/objects", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ObjectsResponse](t, w)
	assert.ElementsMatch(t, []string{"obj1", generated.ID}, list.Objects)
}

func TestCreateObjectErrors(t *testing.T) {
	h, _ := setupHandlerTest(t)

	w := do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"dup"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"dup"}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "conflict", resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	w = do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayloadLifecycle(t *testing.T) {
	h, _ := setupHandlerTest(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"obj"}`), nil).Code)

	w := do(t, h, http.MethodPut, "/objects/obj/payloads/doc.txt?label=Document", strings.NewReader("hello world"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[PayloadResponse](t, w)
	assert.Equal(t, objectstore.PayloadTypeSource, created.Type)
	assert.Equal(t, "Document", created.Label)
	assert.Equal(t, "text/plain", created.ContentType)
	assert.Equal(t, int64(11), created.Size)

	w = do(t, h, http.MethodGet, "/objects/obj/payloads/doc.txt", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "11", w.Header().Get("Content-Length"))
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))

	w = do(t, h, http.MethodPut, "/objects/obj/payloads/doc.txt", strings.NewReader("{}"), map[string]string{"Content-Type": "application/json; charset=utf-8"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[PayloadResponse](t, w)
	assert.Equal(t, "application/json", updated.ContentType)
	assert.Equal(t, "Document", updated.Label)

	w = do(t, h, http.MethodGet, "/objects/obj/payloads/doc.txt/metadata", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[PayloadResponse](t, w)
	assert.Equal(t, "doc.txt", meta.ID)
	assert.Equal(t, int64(2), meta.Size)

	w = do(t, h, http.MethodGet, "/objects/obj", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	obj := decode[ObjectResponse](t, w)
	assert.Equal(t, "doc.txt", obj.SourceID)
	require.Len(t, obj.Payloads, 1)

	w = do(t, h, http.MethodDelete, "/objects/obj/payloads/doc.txt", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/objects/obj/payloads/doc.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/objects/obj", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/objects/obj", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOctetStreamIsSniffed(t *testing.T) {
	h, _ := setupHandlerTest(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"obj"}`), nil).Code)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	w := do(t, h, http.MethodPut, "/objects/obj/payloads/image", bytes.NewReader(png), map[string]string{"Content-Type": "application/octet-stream"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "image/png", decode[PayloadResponse](t, w).ContentType)
}

func TestPayloadErrors(t *testing.T) {
	h, _ := setupHandlerTest(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"obj"}`), nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"missing object", http.MethodPut, "/objects/none/payloads/p", http.StatusNotFound},
		{"missing payload", http.MethodGet, "/objects/obj/payloads/none", http.StatusNotFound},
		{"missing payload metadata", http.MethodGet, "/objects/obj/payloads/none/metadata", http.StatusNotFound},
		{"remove missing payload", http.MethodDelete, "/objects/obj/payloads/none", http.StatusNotFound},
		{"reserved pid", http.MethodPut, "/objects/obj/payloads/p.meta", http.StatusBadRequest},
		{"manifest pid", http.MethodPut, "/objects/obj/payloads/object-manifest", http.StatusBadRequest},
		{"remove missing object", http.MethodDelete, "/objects/none", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, strings.NewReader("x"), nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&objectstore.ObjectError{OID: "o", Op: "get_object", Err: objectstore.ErrNotFound}, http.StatusNotFound},
		{&objectstore.PayloadError{OID: "o", PID: "p", Op: "create", Err: objectstore.ErrDuplicatePID}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", objectstore.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("bad manifest: %w", objectstore.ErrFormat), http.StatusUnprocessableEntity},
		{&objectstore.BackendError{Driver: "s3", Key: "o/p", Op: "put_blob", Err: errors.New("timeout")}, http.StatusBadGateway},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestID(r.Context())))
	}))

	w := do(t, handler, http.MethodGet, "/", nil, map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = do(t, handler, http.MethodGet, "/", nil, nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := do(t, handler, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, w).Error.Code)
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h, _ := setupHandlerTest(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/objects", strings.NewReader(`{"oid":"obj"}`), nil).Code)

	limited := RequestSizeLimitMiddleware(4)(h)
	w := do(t, limited, http.MethodPut, "/objects/obj/payloads/big", strings.NewReader("more than four bytes"), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := do(t, handler, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}
