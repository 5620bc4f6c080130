package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/maneesh/filesmanager/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FilesHandler serves file metadata and content
type FilesHandler struct {
	manager  *files.Manager
	maxBytes int64
	logger   *slog.Logger
}

// NewFilesHandler creates a new files handler. Upload bodies larger than
// maxBytes are rejected as invalid.
func NewFilesHandler(manager *files.Manager, maxBytes int64, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{manager: manager, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /files
func (fh *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, fh.maxBytes)
	defer body.Close()

	in, err := files.DecodeUploadInput(body)
	if err != nil {
		// unauthenticated callers get 401 whatever they sent
		if _, authErr := fh.manager.Authenticate(ctx, token(r)); authErr != nil {
			err = authErr
		}
		writeError(w, r, fh.logger, err)
		return
	}

	entry, err := fh.manager.Upload(ctx, token(r), in)
	if err != nil {
		writeError(w, r, fh.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Show handles GET /files/{id}
func (fh *FilesHandler) Show(w http.ResponseWriter, r *http.Request) {
	entry, err := fh.manager.GetByID(r.Context(), token(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, fh.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Index handles GET /files?parentId=&page=
func (fh *FilesHandler) Index(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	parent := models.ParseParentRef(query.Get("parentId"))
	page := files.ParsePage(query.Get("page"))

	entries, err := fh.manager.List(r.Context(), token(r), parent, page)
	if err != nil {
		writeError(w, r, fh.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Publish handles PUT /files/{id}/publish
func (fh *FilesHandler) Publish(w http.ResponseWriter, r *http.Request) {
	fh.setVisibility(w, r, true)
}

// Unpublish handles PUT /files/{id}/unpublish
func (fh *FilesHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	fh.setVisibility(w, r, false)
}

func (fh *FilesHandler) setVisibility(w http.ResponseWriter, r *http.Request, isPublic bool) {
	entry, err := fh.manager.SetVisibility(r.Context(), token(r), mux.Vars(r)["id"], isPublic)
	if err != nil {
		writeError(w, r, fh.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Data handles GET /files/{id}/data[?size=500|250|100]
func (fh *FilesHandler) Data(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || !models.IsThumbnailWidth(n) {
			writeError(w, r, fh.logger, apperr.ErrNotFound)
			return
		}
		size = n
	}

	content, err := fh.manager.GetContent(ctx, id, token(r), size)
	if err != nil {
		writeError(w, r, fh.logger, err)
		return
	}
	defer content.Body.Close()

	_, span := tracer.Start(ctx, "stream_content",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.String("content_type", content.ContentType),
		),
	)
	defer span.End()

	w.Header().Set("Content-Type", content.ContentType)
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, content.Body)
	span.SetAttributes(attribute.Int64("bytes_written", n))
	if err != nil {
		// headers are gone; the client sees a truncated body
		span.RecordError(err)
		fh.logger.WarnContext(ctx, "failed to stream content", "file_id", id, "error", err)
	}
}
