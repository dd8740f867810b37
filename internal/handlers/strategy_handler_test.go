package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tubeq/internal/models"
)

func TestStrategyHandler_CRUD(t *testing.T) {
	env := newTestEnv(t)
	handler := NewStrategyHandler(env.storage.StrategyStorage(), env.logger)

	rec := doRequest(handler.CreateStrategyHandler, http.MethodPost, "/api/strategies",
		`{"name":"mkv merge","format":"bv*+ba","mergeOutputFormat":"mkv","priority":3,"isEnabled":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeResponse[models.OptionStrategy](t, rec)
	require.NotZero(t, created.ID)

	target := fmt.Sprintf("/api/strategies/%d", created.ID)

	rec = doRequest(handler.UpdateStrategyHandler, http.MethodPut, target,
		`{"name":"mkv merge","format":"bv*+ba","mergeOutputFormat":"mkv","priority":3,"isEnabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(handler.GetStrategyHandler, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeResponse[models.OptionStrategy](t, rec).IsEnabled)

	enabled, err := env.storage.StrategyStorage().ListEnabled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, enabled)

	rec = doRequest(handler.DeleteStrategyHandler, http.MethodDelete, target, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler.DeleteStrategyHandler, http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrategyHandler_Validation(t *testing.T) {
	env := newTestEnv(t)
	handler := NewStrategyHandler(env.storage.StrategyStorage(), env.logger)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"format":"b"}`},
		{"bad merge format", `{"name":"x","mergeOutputFormat":"zip"}`},
		{"audio without format", `{"name":"x","extractAudio":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(handler.CreateStrategyHandler, http.MethodPost, "/api/strategies", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestStrategyHandler_UpdatePriorities(t *testing.T) {
	env := newTestEnv(t)
	handler := NewStrategyHandler(env.storage.StrategyStorage(), env.logger)
	ctx := context.Background()

	first := &models.OptionStrategy{Name: "first", Priority: 0, IsEnabled: true}
	second := &models.OptionStrategy{Name: "second", Priority: 1, IsEnabled: true}
	require.NoError(t, env.storage.StrategyStorage().CreateStrategy(ctx, first))
	require.NoError(t, env.storage.StrategyStorage().CreateStrategy(ctx, second))

	body := fmt.Sprintf(`{"priorities":[{"id":%d,"priority":5},{"id":%d,"priority":0}]}`, first.ID, second.ID)
	rec := doRequest(handler.UpdatePrioritiesHandler, http.MethodPost, "/api/strategies/priorities", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	enabled, err := env.storage.StrategyStorage().ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "second", enabled[0].Name)
	assert.Equal(t, "first", enabled[1].Name)

	// An unknown id rejects the whole batch
	body = fmt.Sprintf(`{"priorities":[{"id":%d,"priority":9},{"id":999,"priority":1}]}`, first.ID)
	rec = doRequest(handler.UpdatePrioritiesHandler, http.MethodPost, "/api/strategies/priorities", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, err := env.storage.StrategyStorage().GetStrategy(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Priority)

	rec = doRequest(handler.UpdatePrioritiesHandler, http.MethodPost, "/api/strategies/priorities", `{"priorities":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
