package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

type priorityEntry struct {
	ID       uint64 `json:"id" validate:"required"`
	Priority int    `json:"priority" validate:"min=0"`
}

type prioritiesRequest struct {
	Priorities []priorityEntry `json:"priorities" validate:"required,min=1,dive"`
}

// StrategyHandler handles /api/strategies
type StrategyHandler struct {
	strategies interfaces.StrategyStorage
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewStrategyHandler creates a new option strategy handler
func NewStrategyHandler(strategies interfaces.StrategyStorage, logger arbor.ILogger) *StrategyHandler {
	return &StrategyHandler{
		strategies: strategies,
		validate:   validator.New(),
		logger:     logger,
	}
}

// ListStrategiesHandler handles GET /api/strategies (ascending priority)
func (h *StrategyHandler) ListStrategiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	strategies, err := h.strategies.ListStrategies(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list strategies")
		WriteError(w, http.StatusInternalServerError, "Failed to list strategies")
		return
	}
	if strategies == nil {
		strategies = []*models.OptionStrategy{}
	}
	WriteJSON(w, http.StatusOK, strategies)
}

// CreateStrategyHandler handles POST /api/strategies
func (h *StrategyHandler) CreateStrategyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	strategy, ok := h.decodeStrategy(w, r)
	if !ok {
		return
	}
	strategy.ID = 0

	if err := h.strategies.CreateStrategy(r.Context(), strategy); err != nil {
		h.logger.Error().Err(err).Str("name", strategy.Name).Msg("Failed to create strategy")
		WriteError(w, http.StatusInternalServerError, "Failed to create strategy")
		return
	}

	h.logger.Info().Int64("strategy_id", int64(strategy.ID)).Str("name", strategy.Name).Msg("Strategy created")
	WriteJSON(w, http.StatusCreated, strategy)
}

// GetStrategyHandler handles GET /api/strategies/{id}
func (h *StrategyHandler) GetStrategyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/strategies/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := h.strategies.GetStrategy(r.Context(), id)
	if err != nil {
		h.writeStrategyError(w, err, id, "Failed to get strategy")
		return
	}
	WriteJSON(w, http.StatusOK, strategy)
}

// UpdateStrategyHandler handles PUT /api/strategies/{id}
func (h *StrategyHandler) UpdateStrategyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/strategies/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy, ok := h.decodeStrategy(w, r)
	if !ok {
		return
	}
	strategy.ID = id

	if err := h.strategies.UpdateStrategy(r.Context(), strategy); err != nil {
		h.writeStrategyError(w, err, id, "Failed to update strategy")
		return
	}
	WriteJSON(w, http.StatusOK, strategy)
}

// DeleteStrategyHandler handles DELETE /api/strategies/{id}
func (h *StrategyHandler) DeleteStrategyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id, err := PathID(r.URL.Path, "/api/strategies/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.strategies.DeleteStrategy(r.Context(), id); err != nil {
		h.writeStrategyError(w, err, id, "Failed to delete strategy")
		return
	}

	h.logger.Info().Int64("strategy_id", int64(id)).Msg("Strategy deleted")
	WriteSuccess(w, "Strategy deleted")
}

// UpdatePrioritiesHandler handles POST /api/strategies/priorities.
// The whole batch is applied or none of it is.
func (h *StrategyHandler) UpdatePrioritiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req prioritiesRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	priorities := make(map[uint64]int, len(req.Priorities))
	for _, entry := range req.Priorities {
		priorities[entry.ID] = entry.Priority
	}

	if err := h.strategies.UpdatePriorities(r.Context(), priorities); err != nil {
		if errors.Is(err, interfaces.ErrStrategyNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Int("count", len(priorities)).Msg("Failed to update strategy priorities")
		WriteError(w, http.StatusInternalServerError, "Failed to update strategy priorities")
		return
	}

	h.logger.Info().Int("count", len(priorities)).Msg("Strategy priorities updated")
	WriteSuccess(w, "Priorities updated")
}

func (h *StrategyHandler) decodeStrategy(w http.ResponseWriter, r *http.Request) (*models.OptionStrategy, bool) {
	var strategy models.OptionStrategy
	if err := json.NewDecoder(r.Body).Decode(&strategy); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := strategy.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err).Error())
		return nil, false
	}
	return &strategy, true
}

func (h *StrategyHandler) writeStrategyError(w http.ResponseWriter, err error, id uint64, message string) {
	if errors.Is(err, interfaces.ErrStrategyNotFound) {
		WriteError(w, http.StatusNotFound, "Strategy not found")
		return
	}
	h.logger.Error().Err(err).Int64("strategy_id", int64(id)).Msg(message)
	WriteError(w, http.StatusInternalServerError, message)
}
