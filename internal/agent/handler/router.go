// Package handler is the agent platform's HTTP surface: the strategy
// catalog, DSL validation, and agent lifecycle management.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stocksim/internal/agent/runtime"
	"stocksim/internal/agent/store"
	"stocksim/internal/agent/strategy"
	"stocksim/internal/domain"
	exhandler "stocksim/internal/handler"
)

// NewRouter creates the agent platform's chi router.
func NewRouter(
	st *store.Store,
	registry *strategy.Registry,
	runner *runtime.Runner,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(exhandler.RequestLogging(logger))

	strategiesH := &StrategiesHandler{registry: registry}
	agentsH := &AgentsHandler{store: st, registry: registry, runner: runner}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		exhandler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/strategies", strategiesH.List)
	r.Get("/strategies/{strategy_id}", strategiesH.Get)
	r.Post("/strategies/validate", strategiesH.Validate)

	r.Post("/agents", agentsH.Create)
	r.Get("/agents", agentsH.List)
	r.Get("/agents/{agent_id}", agentsH.Get)
	r.Patch("/agents/{agent_id}", agentsH.Update)
	r.Delete("/agents/{agent_id}", agentsH.Delete)
	r.Post("/agents/{agent_id}/start", agentsH.Start)
	r.Post("/agents/{agent_id}/stop", agentsH.Stop)
	r.Post("/agents/{agent_id}/pause", agentsH.Pause)

	return r
}

// writeAgentError maps platform errors onto the error taxonomy.
func writeAgentError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, validationErr.Message)
		return
	}
	var compileErr *strategy.CompilationError
	if errors.As(err, &compileErr) {
		exhandler.WriteError(w, http.StatusBadRequest, exhandler.CodeInvalidParameters, compileErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAgentNotFound):
		exhandler.WriteError(w, http.StatusNotFound, exhandler.CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAgentState):
		exhandler.WriteError(w, http.StatusConflict, exhandler.CodeConflict, err.Error())
	default:
		exhandler.WriteError(w, http.StatusInternalServerError, exhandler.CodeInternalError, "an unexpected error occurred")
	}
}
