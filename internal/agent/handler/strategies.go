package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stocksim/internal/agent/strategy"
	exhandler "stocksim/internal/handler"
)

// StrategiesHandler serves the strategy catalog and DSL validation.
type StrategiesHandler struct {
	registry *strategy.Registry
}

type parameterResponse struct {
	Name        string   `json:"name"`
	Type        string   `json:"param_type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Required    bool     `json:"required"`
	Min         *float64 `json:"min_value,omitempty"`
	Max         *float64 `json:"max_value,omitempty"`
}

type strategyResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  []parameterResponse `json:"parameters"`
	IsDSL       bool                `json:"is_dsl"`
}

type validateRequest struct {
	StrategyType   string         `json:"strategy_type"`
	StrategyParams map[string]any `json:"strategy_params"`
	StrategySource string         `json:"strategy_source"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// List handles GET /strategies.
func (h *StrategiesHandler) List(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.List()
	out := make([]strategyResponse, len(defs))
	for i, def := range defs {
		out[i] = buildStrategyResponse(def)
	}
	exhandler.WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /strategies/{strategy_id}.
func (h *StrategiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	def, ok := h.registry.Get(chi.URLParam(r, "strategy_id"))
	if !ok {
		exhandler.WriteError(w, http.StatusNotFound, exhandler.CodeNotFound, "strategy not found")
		return
	}
	exhandler.WriteJSON(w, http.StatusOK, buildStrategyResponse(def))
}

// Validate handles POST /strategies/validate: it compiles or
// parameter-checks a configuration without creating an agent.
func (h *StrategiesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := exhandler.ParseJSON(r, &req); err != nil {
		exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, err.Error())
		return
	}

	if _, err := h.registry.Build(req.StrategyType, req.StrategySource, req.StrategyParams); err != nil {
		exhandler.WriteJSON(w, http.StatusOK, validateResponse{
			Valid:  false,
			Errors: []string{err.Error()},
		})
		return
	}
	exhandler.WriteJSON(w, http.StatusOK, validateResponse{Valid: true, Errors: []string{}})
}

func buildStrategyResponse(def *strategy.Definition) strategyResponse {
	params := make([]parameterResponse, len(def.Parameters))
	for i, p := range def.Parameters {
		params[i] = parameterResponse{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Default:     p.Default,
			Required:    p.Required,
			Min:         p.Min,
			Max:         p.Max,
		}
	}
	return strategyResponse{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Parameters:  params,
		IsDSL:       def.IsDSL,
	}
}
