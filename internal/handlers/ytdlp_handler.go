package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
)

// YtDlpHandler handles /api/ytdlp
type YtDlpHandler struct {
	tool   interfaces.ToolManager
	logger arbor.ILogger
}

// NewYtDlpHandler creates a new yt-dlp handler
func NewYtDlpHandler(tool interfaces.ToolManager, logger arbor.ILogger) *YtDlpHandler {
	return &YtDlpHandler{
		tool:   tool,
		logger: logger,
	}
}

// VersionHandler handles GET /api/ytdlp/version
func (h *YtDlpHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	version, err := h.tool.Version(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read yt-dlp version")
		WriteError(w, http.StatusInternalServerError, "Failed to read yt-dlp version")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"version": version})
}

// UpdateHandler handles POST /api/ytdlp/update
func (h *YtDlpHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	output, err := h.tool.Update(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("yt-dlp update failed")
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
			"output": output,
		})
		return
	}

	version, err := h.tool.Version(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Updated yt-dlp but could not read its version")
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"output":  output,
		"version": version,
	})
}
