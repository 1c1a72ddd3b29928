// Package server exposes persisted backtest runs over a read-only HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/akarpos/quantfolio/internal/backtest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles backtest result HTTP requests.
type Handler struct {
	store *backtest.ResultStore
	log   zerolog.Logger
}

// NewHandler creates a results handler.
func NewHandler(store *backtest.ResultStore, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "results").Logger(),
	}
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []backtest.RunSummary{}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"runs": summaries,
		},
		"metadata": map[string]interface{}{
			"count":     len(summaries),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	result, err := h.store.Load(runID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetRunCurve handles GET /api/runs/{id}/curve.csv
func (h *Handler) HandleGetRunCurve(w http.ResponseWriter, r *http.Request, runID string) {
	data, err := os.ReadFile(h.store.CurvePath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to read curve")
		http.Error(w, "Failed to read curve", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if _, err := w.Write(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to write curve response")
	}
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// RegisterRoutes registers all result routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRun(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/{id}/curve.csv", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRunCurve(w, r, chi.URLParam(r, "id"))
		})
	})
}
