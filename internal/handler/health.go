package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/metrics"
)

// HealthChecker reports database connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AIHealthChecker reports language model availability.
type AIHealthChecker interface {
	IsCircuitOpen() bool
}

// MemoryCounter reports the size of the store's in-memory fallback. A
// growing fallback means the primary has been down for a while.
type MemoryCounter interface {
	MemoryCount() int
}

// HealthHandler serves the health and probe endpoints.
type HealthHandler struct {
	db         HealthChecker
	ai         AIHealthChecker
	store      MemoryCounter
	errorRates *metrics.ErrorRateTracker
	logger     *zap.Logger
}

// HealthHandlerConfig holds the handler's collaborators. Nil fields
// skip the corresponding check.
type HealthHandlerConfig struct {
	DB         HealthChecker
	AI         AIHealthChecker
	Store      MemoryCounter
	ErrorRates *metrics.ErrorRateTracker
	Logger     *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &HealthHandler{
		db:         cfg.DB,
		ai:         cfg.AI,
		store:      cfg.Store,
		errorRates: cfg.ErrorRates,
		logger:     cfg.Logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/live", h.HandleLiveness)
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Checks     map[string]ComponentHealth `json:"checks,omitempty"`
	ErrorRates map[string]int64           `json:"error_rates,omitempty"`
}

// ComponentHealth is the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealth reports the health of every collaborator. The database
// degrades rather than fails the check: the store keeps conversations
// alive from memory during a primary outage.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "ok",
		Checks: make(map[string]ComponentHealth),
	}
	degraded := false

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			degraded = true
			response.Checks["database"] = ComponentHealth{
				Status:  "degraded",
				Message: "primary store unreachable, serving from memory",
			}
			h.logger.Warn("database health check failed", zap.Error(err))
		} else {
			response.Checks["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.ai != nil {
		if h.ai.IsCircuitOpen() {
			degraded = true
			response.Checks["llm"] = ComponentHealth{
				Status:  "degraded",
				Message: "circuit breaker open, running on heuristics",
			}
		} else {
			response.Checks["llm"] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.store != nil {
		count := h.store.MemoryCount()
		status := ComponentHealth{Status: "healthy"}
		if count > 0 {
			status.Message = "records pending primary writes"
		}
		response.Checks["memory_fallback"] = status
	}

	if h.errorRates != nil {
		snapshot := h.errorRates.Snapshot()
		if len(snapshot) > 0 {
			response.ErrorRates = make(map[string]int64, len(snapshot))
			for category, count := range snapshot {
				response.ErrorRates[string(category)] = count
			}
		}
	}

	if degraded {
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Debug("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness answers the orchestrator's readiness probe. The bot
// is ready as soon as the process serves HTTP: a database outage is a
// degradation, not an excuse to drop webhook deliveries.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleLiveness answers the orchestrator's liveness probe.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
