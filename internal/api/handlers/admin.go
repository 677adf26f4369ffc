package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/gcsuploader"
	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/dvloznov/finance-assistant/internal/pipeline"
	"github.com/rs/zerolog"
)

// AdminHandler handles knowledge base administration.
type AdminHandler struct {
	knowledge KnowledgeAdmin
	storage   gcsuploader.Storage
	publisher jobs.Publisher
	maxUpload int64
	log       zerolog.Logger
}

// NewAdminHandler creates a new admin handler. maxUpload is in bytes.
func NewAdminHandler(knowledge KnowledgeAdmin, storage gcsuploader.Storage, publisher jobs.Publisher, maxUpload int64, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		knowledge: knowledge,
		storage:   storage,
		publisher: publisher,
		maxUpload: maxUpload,
		log:       log,
	}
}

// UploadDocument handles POST /api/admin/documents with a multipart "file".
// The document is stored and an ingestion job is enqueued.
func (h *AdminHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxUpload))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "A multipart \"file\" field is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if err := pipeline.CheckExtension(filename); err != nil {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported file type: %s. Please use PDF or TXT files.", pipeline.Extension(filename)))
		return
	}

	ctx := r.Context()

	location, err := h.storage.Put(ctx, filename, file)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("Failed to store upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	h.log.Info().
		Str("filename", filename).
		Str("location", location).
		Int64("bytes", header.Size).
		Msg("File uploaded successfully")

	job := &jobs.IngestDocumentJob{Location: location, Filename: filename}
	if err := h.publisher.PublishIngestDocument(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"location": location,
		"status":   string(job.Status),
	})
}

// AddText handles POST /api/admin/knowledge/text
func (h *AdminHandler) AddText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg := h.knowledge.AddText(r.Context(), req.Text, req.Metadata)
	status := http.StatusOK
	if strings.HasPrefix(msg, "Error") {
		status = http.StatusUnprocessableEntity
	}
	middleware.WriteJSON(w, status, map[string]string{"message": msg})
}

// AddDefaults handles POST /api/admin/knowledge/defaults
func (h *AdminHandler) AddDefaults(w http.ResponseWriter, r *http.Request) {
	msg := h.knowledge.AddDefaultKnowledge(r.Context())
	status := http.StatusOK
	if strings.HasPrefix(msg, "Error") {
		status = http.StatusInternalServerError
	}
	middleware.WriteJSON(w, status, map[string]string{"message": msg})
}
