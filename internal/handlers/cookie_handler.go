package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/services/cookies"
)

// multipartOverhead allows for form boundaries and headers around the file part
const multipartOverhead = 1 << 20

// CookieStore persists the cookies file passed to yt-dlp
type CookieStore interface {
	Save(ctx context.Context, r io.Reader) (*cookies.Info, error)
	Info() (*cookies.Info, error)
}

// CookieHandler handles /api/cookies
type CookieHandler struct {
	store  CookieStore
	logger arbor.ILogger
}

// NewCookieHandler creates a new cookie handler
func NewCookieHandler(store CookieStore, logger arbor.ILogger) *CookieHandler {
	return &CookieHandler{
		store:  store,
		logger: logger,
	}
}

// UploadCookiesHandler handles POST /api/cookies. The file is taken from the
// multipart field "file", or from the raw request body for any other content type.
func (h *CookieHandler) UploadCookiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cookies.MaxSize+multipartOverhead)

	body, closeBody, err := cookieSource(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeBody()

	info, err := h.store.Save(r.Context(), body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, cookies.ErrEmpty):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, cookies.ErrTooLarge), errors.As(err, &maxBytesErr):
			WriteError(w, http.StatusRequestEntityTooLarge, cookies.ErrTooLarge.Error())
		default:
			h.logger.Error().Err(err).Msg("Failed to save cookies")
			WriteError(w, http.StatusInternalServerError, "Failed to save cookies")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Cookies updated",
		"info":    info,
	})
}

// CookiesInfoHandler handles GET /api/cookies/info
func (h *CookieHandler) CookiesInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	info, err := h.store.Info()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read cookies info")
		WriteError(w, http.StatusInternalServerError, "Failed to read cookies info")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

func cookieSource(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("multipart upload must include a \"file\" field")
	}
	return file, func() { file.Close() }, nil
}
