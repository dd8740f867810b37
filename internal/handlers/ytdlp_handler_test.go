package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeTool struct {
	version      string
	versionErr   error
	updateOutput string
	updateErr    error
	versionCalls int32
	updateCalls  int32
}

func (f *fakeTool) Version(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.versionCalls, 1)
	return f.version, f.versionErr
}

func (f *fakeTool) Update(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.updateCalls, 1)
	return f.updateOutput, f.updateErr
}

func TestYtDlpHandler_Version(t *testing.T) {
	handler := NewYtDlpHandler(&fakeTool{version: "2024.08.06"}, arbor.NewLogger())

	rec := doRequest(handler.VersionHandler, http.MethodGet, "/api/ytdlp/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024.08.06", decodeResponse[map[string]string](t, rec)["version"])

	handler = NewYtDlpHandler(&fakeTool{versionErr: errors.New("not installed")}, arbor.NewLogger())
	rec = doRequest(handler.VersionHandler, http.MethodGet, "/api/ytdlp/version", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestYtDlpHandler_Update(t *testing.T) {
	tool := &fakeTool{version: "2024.09.01", updateOutput: "Updated yt-dlp to 2024.09.01"}
	handler := NewYtDlpHandler(tool, arbor.NewLogger())

	rec := doRequest(handler.UpdateHandler, http.MethodGet, "/api/ytdlp/update", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&tool.updateCalls))

	rec = doRequest(handler.UpdateHandler, http.MethodPost, "/api/ytdlp/update", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse[map[string]string](t, rec)
	assert.Equal(t, "2024.09.01", body["version"])
	assert.Contains(t, body["output"], "Updated")

	failing := NewYtDlpHandler(&fakeTool{updateOutput: "ERROR: unable to write", updateErr: errors.New("exit status 1")}, arbor.NewLogger())
	rec = doRequest(failing.UpdateHandler, http.MethodPost, "/api/ytdlp/update", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ERROR: unable to write", decodeResponse[map[string]string](t, rec)["output"])
}
