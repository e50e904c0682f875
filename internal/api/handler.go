package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/ibhops/internal/config"
	"github.com/gyaneshwarpardhi/ibhops/internal/engine"
	"github.com/gyaneshwarpardhi/ibhops/internal/metrics"
	"github.com/gyaneshwarpardhi/ibhops/internal/progress"
	"github.com/gyaneshwarpardhi/ibhops/internal/query"
	"github.com/gyaneshwarpardhi/ibhops/internal/route"
	"github.com/gyaneshwarpardhi/ibhops/internal/sink"
)

const maxTargets = 4096

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil,
// in which case reloads are refused; otherwise eng.Apply must be among its
// OnChange hooks for reloads to reach the engine.
func New(eng *engine.Engine, loader *config.Loader) http.Handler {
	h := &Handler{eng: eng, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/hops", h.countHops)
	h.mux.HandleFunc("POST /v1/analyses", h.analyze)
	h.mux.HandleFunc("GET /v1/fabric", h.fabricSummary)
	h.mux.HandleFunc("GET /v1/fabric/entities/{node}", h.getEntity)
	h.mux.HandleFunc("POST /v1/fabric/reload", h.reloadFabric)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

type hopsRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// POST /v1/hops: synchronous single pair.
func (h *Handler) countHops(w http.ResponseWriter, r *http.Request) {
	var req hopsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}
	res, err := h.eng.CountSync(r.Context(), req.Source, req.Target)
	if err != nil {
		writeRouteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/analyses: one source against many targets.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(q.Targets) > maxTargets {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%d targets exceeds max %d", len(q.Targets), maxTargets))
		return
	}
	q.Normalize()

	store := sink.NewStore()
	rep, err := h.eng.Analyze(r.Context(), &q, store, progress.NewLog(slog.Default(), "analysis", q.ID))
	if err != nil {
		writeRouteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":  rep,
		"entries": store.Entries(),
	})
}

// GET /v1/fabric: summary of the loaded fabric.
func (h *Handler) fabricSummary(w http.ResponseWriter, r *http.Request) {
	f := h.eng.Fabric()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, route.ErrFabricNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation":  h.eng.Generation(),
		"entities":    f.EntityCount(),
		"connections": f.ConnectionCount(),
		"kinds":       f.KindCounts(),
	})
}

// GET /v1/fabric/entities/{node}: one entity with its forwarding table per port.
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	f := h.eng.Fabric()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, route.ErrFabricNotFound.Error())
		return
	}
	e, err := route.NewResolver(f).Lookup(r.PathValue("node"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newEntityView(f, e))
}

// POST /v1/fabric/reload: re-read the fabric description from disk. The
// loader's change hook (Engine.Apply) swaps the fabric.
func (h *Handler) reloadFabric(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "no config loader attached")
		return
	}
	if _, err := h.loader.Reload(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrRejected) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	resp := map[string]interface{}{
		"reloaded":   true,
		"generation": h.eng.Generation(),
	}
	if f := h.eng.Fabric(); f != nil {
		resp["entities"] = f.EntityCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if no fabric is loaded or the pair queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	switch {
	case h.eng.Fabric() == nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "no_fabric",
		})
		return
	case util > 0.8:
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// writeRouteError maps engine and route errors onto HTTP statuses.
func writeRouteError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, route.ErrFabricNotFound):
		status = http.StatusServiceUnavailable
	case errors.Is(err, route.ErrSourceUnresolved), errors.Is(err, route.ErrTargetUnresolved):
		status = http.StatusNotFound
	case errors.Is(err, route.ErrNoRoute), errors.Is(err, route.ErrRoutingLoop):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Outcome: route.OutcomeOf(err)})
}
