package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tubeq/internal/models"
)

func TestEnqueueHandler_CreatedThenExisting(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	rec := doRequest(handler.EnqueueHandler, http.MethodPost, "/api/downloads", `{"url":"https://example.com/watch?v=1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeResponse[models.Job](t, rec)
	assert.Equal(t, models.JobStatusPending, first.Status)
	assert.Equal(t, "https://example.com/watch?v=1", first.URL)

	// Same link with a different case host and a fragment is the same job
	rec = doRequest(handler.EnqueueHandler, http.MethodPost, "/api/downloads", `{"url":"https://EXAMPLE.com/watch?v=1#t=5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeResponse[models.Job](t, rec)
	assert.Equal(t, first.ID, second.ID)

	all, err := env.storage.JobStorage().ListByStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnqueueHandler_WithTag(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	tag := &models.Tag{Name: "Music", Value: "music", Usage: models.TagUsageDirectory}
	require.NoError(t, env.storage.TagStorage().CreateTag(context.Background(), tag))

	body := fmt.Sprintf(`{"url":"https://example.com/song","tagId":%d}`, tag.ID)
	rec := doRequest(handler.EnqueueHandler, http.MethodPost, "/api/downloads", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeResponse[models.Job](t, rec)
	require.NotNil(t, job.TagID)
	assert.Equal(t, tag.ID, *job.TagID)
}

func TestEnqueueHandler_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url":`},
		{"missing url", `{}`},
		{"not a url", `{"url":"just words"}`},
		{"unsupported scheme", `{"url":"ftp://example.com/file"}`},
		{"unknown tag", `{"url":"https://example.com/v","tagId":99}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(handler.EnqueueHandler, http.MethodPost, "/api/downloads", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "error", decodeResponse[map[string]string](t, rec)["status"])
		})
	}

	rec := doRequest(handler.EnqueueHandler, http.MethodGet, "/api/downloads", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	job, _, err := env.service.Enqueue(context.Background(), "https://example.com/a", nil)
	require.NoError(t, err)

	rec := doRequest(handler.GetHandler, http.MethodGet, fmt.Sprintf("/api/downloads/%d", job.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.URL, decodeResponse[models.Job](t, rec).URL)

	rec = doRequest(handler.GetHandler, http.MethodGet, "/api/downloads/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(handler.GetHandler, http.MethodGet, "/api/downloads/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandler_HidesArchivedJobs(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	_, _, err := env.service.Enqueue(context.Background(), "https://example.com/pending", nil)
	require.NoError(t, err)
	env.finishedJob(t, "https://example.com/recent", time.Now().Add(-time.Hour))
	env.finishedJob(t, "https://example.com/old", time.Now().Add(-200*time.Hour))

	rec := doRequest(handler.ListHandler, http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	jobs := decodeResponse[[]models.Job](t, rec)
	urls := make([]string, len(jobs))
	for i, job := range jobs {
		urls[i] = job.URL
	}
	assert.ElementsMatch(t, []string{"https://example.com/pending", "https://example.com/recent"}, urls)
}

func TestListHandler_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env.downloadHandler().ListHandler, http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCancelHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()
	ctx := context.Background()

	pending, _, err := env.service.Enqueue(ctx, "https://example.com/pending", nil)
	require.NoError(t, err)

	rec := doRequest(handler.CancelHandler, http.MethodPost, fmt.Sprintf("/api/downloads/%d/cancel", pending.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobStatusCancelled, decodeResponse[models.Job](t, rec).Status)

	// Cancelling twice is harmless
	rec = doRequest(handler.CancelHandler, http.MethodPost, fmt.Sprintf("/api/downloads/%d/cancel", pending.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	running, _, err := env.service.Enqueue(ctx, "https://example.com/running", nil)
	require.NoError(t, err)
	_, err = env.service.Start(ctx, running.ID)
	require.NoError(t, err)

	rec = doRequest(handler.CancelHandler, http.MethodPost, fmt.Sprintf("/api/downloads/%d/cancel", running.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	stored, err := env.storage.JobStorage().Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDownloading, stored.Status)

	rec = doRequest(handler.CancelHandler, http.MethodPost, "/api/downloads/999/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := env.downloadHandler()

	job, _, err := env.service.Enqueue(context.Background(), "https://example.com/gone", nil)
	require.NoError(t, err)
	target := fmt.Sprintf("/api/downloads/%d", job.ID)

	rec := doRequest(handler.DeleteHandler, http.MethodDelete, target, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler.GetHandler, http.MethodGet, target, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(handler.DeleteHandler, http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveHandler_ListAndPurge(t *testing.T) {
	env := newTestEnv(t)
	handler := NewArchiveHandler(env.archive, env.logger)

	env.finishedJob(t, "https://example.com/recent", time.Now().Add(-time.Hour))
	old := env.finishedJob(t, "https://example.com/old", time.Now().Add(-200*time.Hour))

	rec := doRequest(handler.ListArchivedHandler, http.MethodGet, "/api/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	archived := decodeResponse[[]models.Job](t, rec)
	require.Len(t, archived, 1)
	assert.Equal(t, old.ID, archived[0].ID)

	rec = doRequest(handler.PurgeArchiveHandler, http.MethodDelete, "/api/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse[map[string]interface{}](t, rec)
	assert.Equal(t, float64(1), body["deletedCount"])
	assert.Contains(t, body["message"], "1")

	rec = doRequest(handler.ListArchivedHandler, http.MethodGet, "/api/archive", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doRequest(handler.PurgeArchiveHandler, http.MethodPost, "/api/archive", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
