// Package api exposes pool statistics over HTTP for observability.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guileen/connpool/logger"
	"github.com/guileen/connpool/pool"
)

type RESTHandler struct {
	manager *pool.Manager
}

func NewRESTHandler(manager *pool.Manager) *RESTHandler {
	return &RESTHandler{manager: manager}
}

func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Get("/{name}", h.GetPool)
	})
	r.Get("/healthz", h.Health)
}

type PoolListResponse struct {
	Pools map[string]pool.Stats `json:"pools"`
	Count int                   `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ListPools returns the statistics of every registered pool
func (h *RESTHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.AllStats()
	writeJSON(w, http.StatusOK, PoolListResponse{
		Pools: stats,
		Count: len(stats),
	})
}

// GetPool returns the statistics of one pool
func (h *RESTHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	p, ok := h.manager.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "pool not found: " + name})
		return
	}

	writeJSON(w, http.StatusOK, p.Stats())
}

// Health reports process liveness
func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encoding response failed", "error", err)
	}
}
