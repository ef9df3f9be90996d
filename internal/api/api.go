// Package api exposes the monitoring core over HTTP: competitor
// management, manual captures, version history, reconstructed pages, and
// alerts.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagewatch/pagewatch/internal/capture"
	"github.com/pagewatch/pagewatch/internal/store"
	"github.com/pagewatch/pagewatch/internal/version"
)

// Service wires the HTTP handlers to the core.
type Service struct {
	store  *store.Store
	orch   *capture.Orchestrator
	engine *version.Engine
	log    *slog.Logger
}

// NewService creates the HTTP service.
func NewService(s *store.Store, o *capture.Orchestrator, e *version.Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, orch: o, engine: e, log: log}
}

// Router builds the chi router for the service.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/competitors", s.handleListCompetitors)
		r.Post("/competitors", s.handleCreateCompetitor)
		r.Get("/competitors/{id}", s.handleGetCompetitor)
		r.Delete("/competitors/{id}", s.handleDeleteCompetitor)
		r.Post("/competitors/{id}/capture", s.handleCapture)
		r.Get("/competitors/{id}/versions", s.handleListVersions)
		r.Get("/competitors/{id}/versions/{version}/html", s.handleVersionHTML)
		r.Get("/competitors/{id}/alerts", s.handleListAlerts)
		r.Post("/alerts/{id}/read", s.handleAlertStatus("read"))
		r.Post("/alerts/{id}/archive", s.handleAlertStatus("archived"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CreateCompetitorRequest is the body for POST /api/v1/competitors.
type CreateCompetitorRequest struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	CheckIntervalS int    `json:"check_interval_s"`
	Priority       string `json:"priority"`
}

func (s *Service) handleCreateCompetitor(w http.ResponseWriter, r *http.Request) {
	var req CreateCompetitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}

	c := &store.Competitor{
		UserID:            req.UserID,
		Name:              req.Name,
		URL:               req.URL,
		MonitoringEnabled: true,
		CheckIntervalS:    req.CheckIntervalS,
		Priority:          req.Priority,
	}
	if err := s.store.InsertCompetitor(r.Context(), c); err != nil {
		s.log.Error("api: create competitor", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Service) handleListCompetitors(w http.ResponseWriter, r *http.Request) {
	comps, err := s.store.ListCompetitors(r.Context())
	if err != nil {
		s.log.Error("api: list competitors", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if comps == nil {
		comps = []*store.Competitor{}
	}
	writeJSON(w, http.StatusOK, comps)
}

func (s *Service) handleGetCompetitor(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCompetitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "competitor not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Service) handleDeleteCompetitor(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCompetitor(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapture triggers a manual capture.
// POST /api/v1/competitors/{id}/capture
func (s *Service) handleCapture(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.Capture(r.Context(), chi.URLParam(r, "id"), capture.Options{
		IsManualCheck: true,
	})
	switch {
	case errors.Is(err, capture.ErrCompetitorNotFound):
		http.Error(w, "competitor not found", http.StatusNotFound)
	case errors.Is(err, capture.ErrCaptureInProgress):
		http.Error(w, "capture already in progress", http.StatusConflict)
	case err != nil:
		s.log.Error("api: capture", "competitor_id", chi.URLParam(r, "id"), "error", err)
		http.Error(w, "capture failed: "+err.Error(), http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Service) handleListVersions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.ListSnapshots(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []*store.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleVersionHTML returns the reconstructed raw HTML of one version.
// GET /api/v1/competitors/{id}/versions/{version}/html
func (s *Service) handleVersionHTML(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || v < 1 {
		http.Error(w, "invalid version", http.StatusBadRequest)
		return
	}

	html, err := s.engine.Reconstruct(r.Context(), chi.URLParam(r, "id"), v)
	switch {
	case errors.Is(err, version.ErrVersionNotFound):
		http.Error(w, "version not found", http.StatusNotFound)
	case errors.Is(err, version.ErrNoReachableBaseline), errors.Is(err, version.ErrNotReconstructable):
		http.Error(w, "version not reconstructable", http.StatusGone)
	case err != nil:
		s.log.Error("api: reconstruct", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}
}

func (s *Service) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.store.ListAlerts(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("status"), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []*store.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Service) handleAlertStatus(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.SetAlertStatus(r.Context(), chi.URLParam(r, "id"), status); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
