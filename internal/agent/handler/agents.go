package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stocksim/internal/agent"
	"stocksim/internal/agent/runtime"
	"stocksim/internal/agent/store"
	"stocksim/internal/agent/strategy"
	"stocksim/internal/domain"
	exhandler "stocksim/internal/handler"
)

// AgentsHandler serves agent CRUD and lifecycle endpoints.
type AgentsHandler struct {
	store    *store.Store
	registry *strategy.Registry
	runner   *runtime.Runner
}

type createAgentRequest struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ExchangeURL     string         `json:"exchange_url"`
	APIKey          string         `json:"api_key"`
	StrategyType    string         `json:"strategy_type"`
	StrategyParams  map[string]any `json:"strategy_params"`
	StrategySource  string         `json:"strategy_source"`
	IntervalSeconds float64        `json:"interval_seconds"`
}

type updateAgentRequest struct {
	Name            *string        `json:"name"`
	Description     *string        `json:"description"`
	StrategyParams  map[string]any `json:"strategy_params"`
	StrategySource  *string        `json:"strategy_source"`
	IntervalSeconds *float64       `json:"interval_seconds"`
}

type agentResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	ExchangeURL     string  `json:"exchange_url"`
	StrategyType    string  `json:"strategy_type"`
	StrategySource  string  `json:"strategy_source,omitempty"`
	IntervalSeconds float64 `json:"interval_seconds"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	StartedAt       *string `json:"started_at"`
	StoppedAt       *string `json:"stopped_at"`
	LastError       string  `json:"last_error,omitempty"`
	ErrorCount      int     `json:"error_count"`
	TotalTicks      int64   `json:"total_ticks"`
	TotalTrades     int64   `json:"total_trades"`
}

type agentListResponse struct {
	Agents []agentResponse `json:"agents"`
}

// Create handles POST /agents.
func (h *AgentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := exhandler.ParseJSON(r, &req); err != nil {
		exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, err.Error())
		return
	}

	if req.IntervalSeconds == 0 {
		req.IntervalSeconds = 5
	}

	var paramsJSON string
	if len(req.StrategyParams) > 0 {
		raw, err := json.Marshal(req.StrategyParams)
		if err != nil {
			exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, "invalid strategy_params")
			return
		}
		paramsJSON = string(raw)
	}

	a := &agent.Agent{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		ExchangeURL:    req.ExchangeURL,
		APIKey:         req.APIKey,
		StrategyType:   req.StrategyType,
		StrategyParams: paramsJSON,
		StrategySource: req.StrategySource,
		IntervalSecs:   req.IntervalSeconds,
		Status:         agent.StatusCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		writeAgentError(w, err)
		return
	}

	// Reject broken strategy configuration at creation, not first start.
	if _, err := h.registry.Build(a.StrategyType, a.StrategySource, req.StrategyParams); err != nil {
		writeAgentError(w, toValidation(err))
		return
	}

	if err := h.store.Create(a); err != nil {
		writeAgentError(w, err)
		return
	}
	exhandler.WriteJSON(w, http.StatusCreated, buildAgentResponse(a))
}

// List handles GET /agents.
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.List()
	if err != nil {
		writeAgentError(w, err)
		return
	}
	resp := agentListResponse{Agents: make([]agentResponse, len(agents))}
	for i, a := range agents {
		resp.Agents[i] = buildAgentResponse(a)
	}
	exhandler.WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /agents/{agent_id}.
func (h *AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(chi.URLParam(r, "agent_id"))
	if err != nil {
		writeAgentError(w, err)
		return
	}
	exhandler.WriteJSON(w, http.StatusOK, buildAgentResponse(a))
}

// Update handles PATCH /agents/{agent_id}. Strategy edits require the
// agent to not be running; the rebuilt strategy starts with fresh
// cooldowns on the next start.
func (h *AgentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(chi.URLParam(r, "agent_id"))
	if err != nil {
		writeAgentError(w, err)
		return
	}

	var req updateAgentRequest
	if err := exhandler.ParseJSON(r, &req); err != nil {
		exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, err.Error())
		return
	}

	touchesStrategy := req.StrategySource != nil || len(req.StrategyParams) > 0
	if touchesStrategy && a.Status == agent.StatusRunning {
		writeAgentError(w, fmt.Errorf("%w: pause the agent before editing its strategy", domain.ErrInvalidAgentState))
		return
	}

	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.StrategySource != nil {
		a.StrategySource = *req.StrategySource
	}
	if len(req.StrategyParams) > 0 {
		raw, err := json.Marshal(req.StrategyParams)
		if err != nil {
			exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, "invalid strategy_params")
			return
		}
		a.StrategyParams = string(raw)
	}
	if req.IntervalSeconds != nil {
		a.IntervalSecs = *req.IntervalSeconds
	}
	if err := a.Validate(); err != nil {
		writeAgentError(w, err)
		return
	}

	if touchesStrategy {
		if _, err := h.runner.BuildStrategy(a); err != nil {
			writeAgentError(w, toValidation(err))
			return
		}
	}

	if err := h.store.Save(a); err != nil {
		writeAgentError(w, err)
		return
	}
	exhandler.WriteJSON(w, http.StatusOK, buildAgentResponse(a))
}

// Delete handles DELETE /agents/{agent_id}, stopping the agent first if
// it is running.
func (h *AgentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agent_id")
	a, err := h.store.Get(id)
	if err != nil {
		writeAgentError(w, err)
		return
	}

	if h.runner.IsRunning(id) {
		if err := h.runner.Stop(id, agent.StatusStopped); err != nil {
			writeAgentError(w, err)
			return
		}
	}
	if err := h.store.Delete(a.ID); err != nil {
		writeAgentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /agents/{agent_id}/start.
func (h *AgentsHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, agent.StatusRunning)
}

// Stop handles POST /agents/{agent_id}/stop.
func (h *AgentsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, agent.StatusStopped)
}

// Pause handles POST /agents/{agent_id}/pause.
func (h *AgentsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, agent.StatusPaused)
}

func (h *AgentsHandler) transition(w http.ResponseWriter, r *http.Request, to agent.Status) {
	a, err := h.store.Get(chi.URLParam(r, "agent_id"))
	if err != nil {
		writeAgentError(w, err)
		return
	}

	if !agent.CanTransition(a.Status, to) {
		writeAgentError(w, fmt.Errorf("%w: cannot go from %s to %s", domain.ErrInvalidAgentState, a.Status, to))
		return
	}

	switch to {
	case agent.StatusRunning:
		err = h.runner.Start(a)
	case agent.StatusStopped, agent.StatusPaused:
		err = h.runner.Stop(a.ID, to)
	}
	if err != nil {
		writeAgentError(w, err)
		return
	}

	a, err = h.store.Get(a.ID)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	exhandler.WriteJSON(w, http.StatusOK, buildAgentResponse(a))
}

// toValidation wraps strategy build failures as 400s.
func toValidation(err error) error {
	return domain.Validationf("invalid strategy configuration: %v", err)
}

func buildAgentResponse(a *agent.Agent) agentResponse {
	resp := agentResponse{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		ExchangeURL:     a.ExchangeURL,
		StrategyType:    a.StrategyType,
		StrategySource:  a.StrategySource,
		IntervalSeconds: a.IntervalSecs,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastError:       a.LastError,
		ErrorCount:      a.ErrorCount,
		TotalTicks:      a.TotalTicks,
		TotalTrades:     a.TotalTrades,
	}
	if a.StartedAt != nil {
		s := a.StartedAt.UTC().Format(time.RFC3339Nano)
		resp.StartedAt = &s
	}
	if a.StoppedAt != nil {
		s := a.StoppedAt.UTC().Format(time.RFC3339Nano)
		resp.StoppedAt = &s
	}
	return resp
}
