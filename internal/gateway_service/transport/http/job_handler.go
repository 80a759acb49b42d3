package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/outbound_service/repository"
)

const defaultFailedJobsLimit = 50

// JobStore is the job query surface the HTTP layer consumes.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*core_domain.OutboundJob, error)
	ListFailed(ctx context.Context, limit int) ([]*core_domain.OutboundJob, error)
}

// JobHandler exposes outbound job state: per-job status reads and the
// dead-letter listing.
type JobHandler struct {
	jobs   JobStore
	logger *slog.Logger
}

// NewJobHandler creates the job query handler.
func NewJobHandler(jobs JobStore, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger.With("component", "job_handler"),
	}
}

// RegisterRoutes sets up job query routing.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/jobs/failed", h.ListFailedJobs)
	r.Get("/jobs/{jobID}", h.GetJob)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := h.jobs.GetByID(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			respondWithError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.ErrorContext(ctx, "failed to get job",
			"request_id", chi_middleware.GetReqID(ctx), "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) ListFailedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultFailedJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := h.jobs.ListFailed(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list dead-letter jobs",
			"request_id", chi_middleware.GetReqID(ctx), "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]JobResponseDTO, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, toJobResponse(job))
	}
	respondWithJSON(w, http.StatusOK, resp)
}
