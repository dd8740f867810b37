package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/models"
)

// ArchiveService lists and purges finished jobs past the retention window
type ArchiveService interface {
	ListArchived(ctx context.Context) ([]*models.Job, error)
	Purge(ctx context.Context) (int, error)
}

// ArchiveHandler handles /api/archive
type ArchiveHandler struct {
	archive ArchiveService
	logger  arbor.ILogger
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(archive ArchiveService, logger arbor.ILogger) *ArchiveHandler {
	return &ArchiveHandler{
		archive: archive,
		logger:  logger,
	}
}

// ListArchivedHandler handles GET /api/archive
func (h *ArchiveHandler) ListArchivedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.archive.ListArchived(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list archived downloads")
		WriteError(w, http.StatusInternalServerError, "Failed to list archived downloads")
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// PurgeArchiveHandler handles DELETE /api/archive
func (h *ArchiveHandler) PurgeArchiveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	deleted, err := h.archive.Purge(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Int("deleted", deleted).Msg("Failed to purge archive")
		WriteError(w, http.StatusInternalServerError, "Failed to purge archive")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      fmt.Sprintf("Deleted %d archived downloads", deleted),
		"deletedCount": deleted,
	})
}
