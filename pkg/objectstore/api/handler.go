package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// ObjectsResponse is the response body for the object listing
type ObjectsResponse struct {
	Objects []string `json:"objects"`
}

// CreateObjectRequest is the request body for creating an object
type CreateObjectRequest struct {
	OID string `json:"oid"`
}

// ObjectResponse is the response body for an object
type ObjectResponse struct {
	ID       string            `json:"id"`
	SourceID string            `json:"source_id,omitempty"`
	Payloads []PayloadResponse `json:"payloads"`
}

// PayloadResponse is the response body for payload metadata
type PayloadResponse struct {
	ID           string                  `json:"id"`
	Type         objectstore.PayloadType `json:"payload_type"`
	Label        string                  `json:"label"`
	ContentType  string                  `json:"content_type"`
	Linked       bool                    `json:"linked"`
	Size         int64                   `json:"size"`
	LastModified *time.Time              `json:"last_modified,omitempty"`
}

// ErrorResponse is the error envelope of every failed request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler serves objects and payloads of a Storage over HTTP
type Handler struct {
	store  *objectstore.Storage
	logger *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(store *objectstore.Storage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns the router for object and payload endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/objects", h.ListObjects)
	r.Post("/objects", h.CreateObject)
	r.Route("/objects/{oid}", func(r chi.Router) {
		r.Get("/", h.GetObject)
		r.Delete("/", h.DeleteObject)
		r.Put("/payloads/{pid}", h.PutPayload)
		r.Get("/payloads/{pid}", h.GetPayload)
		r.Get("/payloads/{pid}/metadata", h.GetPayloadMetadata)
		r.Delete("/payloads/{pid}", h.DeletePayload)
	})
	return r
}

// ListObjects lists the object ids of the container
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ObjectsResponse{Objects: h.store.ObjectIDs(r.Context())})
}

// CreateObject creates an object. A UUID is generated when no oid is given.
func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	var req CreateObjectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
			return
		}
	}
	if req.OID == "" {
		req.OID = uuid.New().String()
	}

	obj, err := h.store.CreateObject(r.Context(), req.OID)
	if err != nil {
		h.handleError(w, r, "create object", err)
		return
	}

	resp, err := h.objectResponse(r, obj)
	if err != nil {
		h.handleError(w, r, "create object", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetObject returns the object with its payload metadata
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.store.GetObject(r.Context(), chi.URLParam(r, "oid"))
	if err != nil {
		h.handleError(w, r, "get object", err)
		return
	}

	resp, err := h.objectResponse(r, obj)
	if err != nil {
		h.handleError(w, r, "get object", err)
		return
	}
	render.JSON(w, r, resp)
}

// DeleteObject removes the object and every payload
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveObject(r.Context(), chi.URLParam(r, "oid")); err != nil {
		h.handleError(w, r, "delete object", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutPayload creates the payload from the request body, or replaces its
// content when it already exists.
func (h *Handler) PutPayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := chi.URLParam(r, "pid")

	obj, err := h.store.GetObject(ctx, chi.URLParam(r, "oid"))
	if err != nil {
		h.handleError(w, r, "put payload", err)
		return
	}

	var opts []objectstore.PayloadOption
	if ct := requestContentType(r); ct != "" {
		opts = append(opts, objectstore.WithContentType(ct))
	}
	if label := r.URL.Query().Get("label"); label != "" {
		opts = append(opts, objectstore.WithLabel(label))
	}

	status := http.StatusCreated
	var payload *objectstore.Payload
	if _, err := obj.GetPayload(pid); err == nil {
		status = http.StatusOK
		payload, err = obj.UpdatePayload(ctx, pid, r.Body, opts...)
		if err != nil {
			h.handleError(w, r, "update payload", err)
			return
		}
	} else {
		payload, err = obj.CreateStoredPayload(ctx, pid, r.Body, opts...)
		if err != nil {
			h.handleError(w, r, "create payload", err)
			return
		}
	}

	resp, err := payloadResponse(r, payload)
	if err != nil {
		h.handleError(w, r, "put payload", err)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// GetPayload streams the payload content
func (h *Handler) GetPayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}

	meta, err := payload.Metadata(ctx)
	if err != nil {
		h.handleError(w, r, "get payload", err)
		return
	}
	rc, err := payload.Open(ctx)
	if err != nil {
		h.handleError(w, r, "get payload", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	if size, err := payload.Size(ctx); err == nil && size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if modified, err := payload.LastModified(ctx); err == nil && !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("Failed to stream payload",
			"request_id", RequestID(ctx),
			"oid", payload.ObjectID(),
			"pid", payload.ID(),
			"error", err)
	}
}

// GetPayloadMetadata returns the payload metadata
func (h *Handler) GetPayloadMetadata(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}
	resp, err := payloadResponse(r, payload)
	if err != nil {
		h.handleError(w, r, "get payload metadata", err)
		return
	}
	render.JSON(w, r, resp)
}

// DeletePayload removes a payload from its object
func (h *Handler) DeletePayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obj, err := h.store.GetObject(ctx, chi.URLParam(r, "oid"))
	if err != nil {
		h.handleError(w, r, "delete payload", err)
		return
	}
	if err := obj.RemovePayload(ctx, chi.URLParam(r, "pid")); err != nil {
		h.handleError(w, r, "delete payload", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) payload(w http.ResponseWriter, r *http.Request) (*objectstore.Payload, bool) {
	obj, err := h.store.GetObject(r.Context(), chi.URLParam(r, "oid"))
	if err != nil {
		h.handleError(w, r, "get payload", err)
		return nil, false
	}
	payload, err := obj.GetPayload(chi.URLParam(r, "pid"))
	if err != nil {
		h.handleError(w, r, "get payload", err)
		return nil, false
	}
	return payload, true
}

func (h *Handler) objectResponse(r *http.Request, obj *objectstore.DigitalObject) (ObjectResponse, error) {
	resp := ObjectResponse{
		ID:       obj.ID(),
		SourceID: obj.SourceID(),
		Payloads: []PayloadResponse{},
	}
	for _, pid := range obj.PayloadIDs() {
		payload, err := obj.GetPayload(pid)
		if err != nil {
			return resp, err
		}
		pr, err := payloadResponse(r, payload)
		if err != nil {
			return resp, err
		}
		resp.Payloads = append(resp.Payloads, pr)
	}
	return resp, nil
}

func payloadResponse(r *http.Request, payload *objectstore.Payload) (PayloadResponse, error) {
	ctx := r.Context()
	meta, err := payload.Metadata(ctx)
	if err != nil {
		return PayloadResponse{}, err
	}
	size, err := payload.Size(ctx)
	if err != nil {
		return PayloadResponse{}, err
	}
	resp := PayloadResponse{
		ID:          meta.ID,
		Type:        meta.Type,
		Label:       meta.Label,
		ContentType: meta.ContentType,
		Linked:      meta.Linked,
		Size:        size,
	}
	if modified, err := payload.LastModified(ctx); err == nil && !modified.IsZero() {
		resp.LastModified = &modified
	}
	return resp, nil
}

// requestContentType returns the declared media type, or "" when the client
// sent none or only the generic binary type.
func requestContentType(r *http.Request) string {
	header := r.Header.Get("Content-Type")
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == objectstore.DefaultContentType {
		return ""
	}
	return mediaType
}

// statusFor maps an error kind to an HTTP status and error code
func statusFor(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, objectstore.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, objectstore.ErrDuplicateOID), errors.Is(err, objectstore.ErrDuplicatePID):
		return http.StatusConflict, "conflict"
	case errors.Is(err, objectstore.ErrFormat):
		return http.StatusUnprocessableEntity, "format_error"
	case errors.Is(err, objectstore.ErrBackend):
		return http.StatusBadGateway, "backend_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "request_id", RequestID(r.Context()), "op", op, "error", err)
	} else {
		h.logger.Debug("Request rejected", "request_id", RequestID(r.Context()), "op", op, "error", err)
	}
	h.writeError(w, r, status, code, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, newErrorResponse(r, code, message))
}

func newErrorResponse(r *http.Request, code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}}
}
