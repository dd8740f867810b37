package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/services/downloads"
)

// PlaylistService expands playlist links and enqueues their entries
type PlaylistService interface {
	Entries(ctx context.Context, rawURL string) ([]string, error)
	Enqueue(ctx context.Context, rawURL string, tagID *uint64) (*downloads.PlaylistResult, error)
}

// PlaylistHandler handles /api/playlists
type PlaylistHandler struct {
	service  PlaylistService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewPlaylistHandler creates a new playlist handler
func NewPlaylistHandler(service PlaylistService, logger arbor.ILogger) *PlaylistHandler {
	return &PlaylistHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// EnqueueHandler handles POST /api/playlists. Answers 201 when at least one
// entry was newly queued, 200 when every entry was already known.
func (h *PlaylistHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.service.Enqueue(r.Context(), url, req.TagID)
	if err != nil {
		h.writePlaylistError(w, err, url)
		return
	}

	status := http.StatusOK
	if result.Created > 0 {
		status = http.StatusCreated
	}
	WriteJSON(w, status, result)
}

// EntriesHandler handles GET /api/playlists/entries?url=...
func (h *PlaylistHandler) EntriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	url, err := common.NormalizeMediaURL(r.URL.Query().Get("url"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.service.Entries(r.Context(), url)
	if err != nil {
		h.writePlaylistError(w, err, url)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"url":     url,
		"entries": entries,
	})
}

func (h *PlaylistHandler) writePlaylistError(w http.ResponseWriter, err error, url string) {
	switch {
	case errors.Is(err, interfaces.ErrTagNotFound):
		WriteError(w, http.StatusBadRequest, "Tag not found")
	case errors.Is(err, downloads.ErrPlaylistUnavailable):
		h.logger.Warn().Err(err).Str("url", url).Msg("Playlist could not be expanded")
		WriteError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error().Err(err).Str("url", url).Msg("Failed to process playlist")
		WriteError(w, http.StatusInternalServerError, "Failed to process playlist")
	}
}
