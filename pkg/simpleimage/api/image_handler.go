package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultMaxUploadBytes bounds multipart request bodies when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipartMemory is the part of a multipart body kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// ImageHandler handles the image API endpoints
type ImageHandler struct {
	service        simpleimage.Service
	validator      *simpleimage.UploadValidator
	maxUploadBytes int64
	logger         *slog.Logger
	metrics        *Metrics
}

// HandlerOption configures an ImageHandler
type HandlerOption func(*ImageHandler)

// WithMaxUploadBytes sets the request body limit for uploads
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *ImageHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithHandlerLogger sets the logger used for request failures
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *ImageHandler) {
		h.logger = logger
	}
}

// WithMetrics records error kinds on m
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *ImageHandler) {
		h.metrics = m
	}
}

func NewImageHandler(service simpleimage.Service, validator *simpleimage.UploadValidator, opts ...HandlerOption) *ImageHandler {
	h := &ImageHandler{
		service:        service,
		validator:      validator,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for image endpoints, to be mounted at /image
func (h *ImageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.UploadImage)
	r.Get("/", h.SearchByLabel)
	r.Get("/{id}", h.GetImage)
	r.Delete("/{id}", h.DeleteImage)
	r.Get("/file/{id}", h.DownloadImage)
	return r
}

// UploadImage accepts a multipart form with a "file" part
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		h.logger.Warn("Upload is not multipart", "content_type", r.Header.Get("Content-Type"))
		http.Error(w, "Expected multipart/form-data with a file part", http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Upload exceeds size limit", "limit", h.maxUploadBytes)
			http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("Failed to parse multipart form", "error", err)
		http.Error(w, "Malformed multipart body", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("Upload has no file part", "error", err)
		http.Error(w, "Missing required 'file' part", http.StatusUnsupportedMediaType)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	candidate := simpleimage.UploadCandidate{
		Present:     true,
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	}
	if err := h.validator.Validate(candidate); err != nil {
		h.logger.Warn("Upload rejected", "file_name", header.Filename, "error", err)
		h.writeError(w, r, err)
		return
	}

	image, err := h.service.CreateImage(r.Context(), simpleimage.UploadImageRequest{
		Reader:      file,
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		h.logger.Error("Failed to create image", "file_name", header.Filename, "error", err)
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, image)
}

// GetImage returns the metadata record of an image
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.imageID(w, r)
	if !ok {
		return
	}

	image, err := h.service.GetImage(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get image", "image_id", id, "error", err)
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, image)
}

// DeleteImage removes an image. Deleting an absent image succeeds.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.imageID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteImage(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete image", "image_id", id, "error", err)
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SearchByLabel lists the images carrying the label query parameter
func (h *ImageHandler) SearchByLabel(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		http.Error(w, "Missing required 'label' parameter", http.StatusBadRequest)
		return
	}

	images, err := h.service.SearchByLabel(r.Context(), label)
	if err != nil {
		h.logger.Error("Failed to search images", "label", label, "error", err)
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, images)
}

// DownloadImage streams the image content inline
func (h *ImageHandler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.imageID(w, r)
	if !ok {
		return
	}

	result, err := h.service.DownloadImage(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to download image", "image_id", id, "error", err)
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, result.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		h.logger.Warn("Failed to write image content", "image_id", id, "error", err)
	}
}

// imageID reads and validates the {id} path parameter
func (h *ImageHandler) imageID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid image ID", "image_id", raw, "error", err)
		http.Error(w, "Invalid image ID", http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

func (h *ImageHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if h.metrics != nil {
		h.metrics.ObserveError(simpleimage.KindOf(err))
	}

	switch status {
	case http.StatusBadRequest:
		http.Error(w, err.Error(), status)
	case http.StatusNotFound:
		http.Error(w, "Image not found", status)
	default:
		http.Error(w, DiagnosticBody(err), status)
	}
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch simpleimage.KindOf(err) {
	case simpleimage.ErrValidationRejected:
		return http.StatusBadRequest
	case simpleimage.ErrImageNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// DiagnosticBody renders a failure as "Error: <message> | Cause: <root cause>".
func DiagnosticBody(err error) string {
	cause := "none"
	if root := simpleimage.RootCause(err); root != nil && root != err {
		cause = root.Error()
	}
	return fmt.Sprintf("Error: %s | Cause: %s", err.Error(), cause)
}
