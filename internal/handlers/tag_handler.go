package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

// TagHandler handles /api/tags
type TagHandler struct {
	tags   interfaces.TagStorage
	events interfaces.EventService
	logger arbor.ILogger
}

// NewTagHandler creates a new tag handler. events may be nil.
func NewTagHandler(tags interfaces.TagStorage, events interfaces.EventService, logger arbor.ILogger) *TagHandler {
	return &TagHandler{
		tags:   tags,
		events: events,
		logger: logger,
	}
}

// ListTagsHandler handles GET /api/tags
func (h *TagHandler) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tags, err := h.tags.ListTags(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list tags")
		WriteError(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	WriteJSON(w, http.StatusOK, tags)
}

// CreateTagHandler handles POST /api/tags
func (h *TagHandler) CreateTagHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	tag, ok := h.decodeTag(w, r)
	if !ok {
		return
	}
	tag.ID = 0

	if err := h.tags.CreateTag(r.Context(), tag); err != nil {
		h.logger.Error().Err(err).Str("name", tag.Name).Msg("Failed to create tag")
		WriteError(w, http.StatusInternalServerError, "Failed to create tag")
		return
	}

	h.logger.Info().Int64("tag_id", int64(tag.ID)).Str("name", tag.Name).Msg("Tag created")
	h.notify(r.Context())
	WriteJSON(w, http.StatusCreated, tag)
}

// GetTagHandler handles GET /api/tags/{id}
func (h *TagHandler) GetTagHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/tags/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tag, err := h.tags.GetTag(r.Context(), id)
	if err != nil {
		h.writeTagError(w, err, id, "Failed to get tag")
		return
	}
	WriteJSON(w, http.StatusOK, tag)
}

// UpdateTagHandler handles PUT /api/tags/{id}
func (h *TagHandler) UpdateTagHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/tags/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tag, ok := h.decodeTag(w, r)
	if !ok {
		return
	}
	tag.ID = id

	if err := h.tags.UpdateTag(r.Context(), tag); err != nil {
		h.writeTagError(w, err, id, "Failed to update tag")
		return
	}

	h.notify(r.Context())
	WriteJSON(w, http.StatusOK, tag)
}

// DeleteTagHandler handles DELETE /api/tags/{id}
func (h *TagHandler) DeleteTagHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/tags/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tags.DeleteTag(r.Context(), id); err != nil {
		h.writeTagError(w, err, id, "Failed to delete tag")
		return
	}

	h.logger.Info().Int64("tag_id", int64(id)).Msg("Tag deleted")
	h.notify(r.Context())
	WriteSuccess(w, "Tag deleted")
}

func (h *TagHandler) decodeTag(w http.ResponseWriter, r *http.Request) (*models.Tag, bool) {
	var tag models.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	if usage, err := models.ParseTagUsage(string(tag.Usage)); err == nil {
		tag.Usage = usage
	}
	if err := tag.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err).Error())
		return nil, false
	}
	return &tag, true
}

func (h *TagHandler) writeTagError(w http.ResponseWriter, err error, id uint64, message string) {
	if errors.Is(err, interfaces.ErrTagNotFound) {
		WriteError(w, http.StatusNotFound, "Tag not found")
		return
	}
	h.logger.Error().Err(err).Int64("tag_id", int64(id)).Msg(message)
	WriteError(w, http.StatusInternalServerError, message)
}

func (h *TagHandler) notify(ctx context.Context) {
	if h.events == nil {
		return
	}
	event := interfaces.Event{Type: interfaces.EventTagsChanged}
	if err := h.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to publish tags_changed")
	}
}
