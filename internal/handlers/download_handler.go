package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/ternarybob/tubeq/internal/services/downloads"
)

// DownloadService defines the job lifecycle operations exposed over HTTP
type DownloadService interface {
	Enqueue(ctx context.Context, rawURL string, tagID *uint64) (*models.Job, bool, error)
	Cancel(ctx context.Context, id uint64) (*models.Job, error)
	Delete(ctx context.Context, id uint64) error
}

// JobReader loads a single job
type JobReader interface {
	Get(ctx context.Context, id uint64) (*models.Job, error)
}

// VisibleJobLister lists the jobs shown on the downloads page
type VisibleJobLister interface {
	ListVisible(ctx context.Context) ([]*models.Job, error)
}

type enqueueRequest struct {
	URL   string  `json:"url" validate:"required,url"`
	TagID *uint64 `json:"tagId"`
}

// DownloadHandler handles /api/downloads
type DownloadHandler struct {
	service  DownloadService
	jobs     JobReader
	visible  VisibleJobLister
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(service DownloadService, jobs JobReader, visible VisibleJobLister, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		service:  service,
		jobs:     jobs,
		visible:  visible,
		validate: validator.New(),
		logger:   logger,
	}
}

// EnqueueHandler handles POST /api/downloads. A new job answers 201; a URL
// that is already queued answers 200 with the existing job.
func (h *DownloadHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req enqueueRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := common.NormalizeMediaURL(req.URL)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, created, err := h.service.Enqueue(r.Context(), url, req.TagID)
	if err != nil {
		if errors.Is(err, interfaces.ErrTagNotFound) {
			WriteError(w, http.StatusBadRequest, "Tag not found")
			return
		}
		h.logger.Error().Err(err).Str("url", url).Msg("Failed to enqueue download")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue download")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, job)
}

// ListHandler handles GET /api/downloads
func (h *DownloadHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.visible.ListVisible(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list downloads")
		WriteError(w, http.StatusInternalServerError, "Failed to list downloads")
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// GetHandler handles GET /api/downloads/{id}
func (h *DownloadHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		h.writeJobError(w, err, id, "Failed to get download")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// DeleteHandler handles DELETE /api/downloads/{id}
func (h *DownloadHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeJobError(w, err, id, "Failed to delete download")
		return
	}

	h.logger.Info().Int64("job_id", int64(id)).Msg("Download deleted")
	WriteSuccess(w, "Download deleted")
}

// CancelHandler handles POST /api/downloads/{id}/cancel. Only Pending and
// Failed jobs can be cancelled; anything else answers 409.
func (h *DownloadHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.service.Cancel(r.Context(), id)
	if errors.Is(err, downloads.ErrNotCancellable) {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
			"job":    job,
		})
		return
	}
	if err != nil {
		h.writeJobError(w, err, id, "Failed to cancel download")
		return
	}

	h.logger.Info().Int64("job_id", int64(id)).Msg("Download cancelled")
	WriteJSON(w, http.StatusOK, job)
}

func (h *DownloadHandler) jobID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := PathID(r.URL.Path, "/api/downloads/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func (h *DownloadHandler) writeJobError(w http.ResponseWriter, err error, id uint64, message string) {
	if errors.Is(err, interfaces.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "Download not found")
		return
	}
	h.logger.Error().Err(err).Int64("job_id", int64(id)).Msg(message)
	WriteError(w, http.StatusInternalServerError, message)
}
