package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/admin/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/admin/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Location: query.Get("location"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
