// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/educonnect/beacon/internal/delivery"
	"github.com/educonnect/beacon/internal/models"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response, logging encode failures.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("Response encode failed")
	}
}

// shareRequest is the optional share body. Without it (or with an empty
// recipient list) the configured default guardians are used.
type shareRequest struct {
	Recipients []models.Recipient `json:"recipients"`
}

// handleShare triggers one full share pipeline run.
//
// POST /api/v1/share
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}
		for _, recipient := range req.Recipients {
			if err := delivery.ValidateEmail(recipient.Address); err != nil {
				s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
				return
			}
		}
	}

	var summary *models.ShareSummary
	var err error
	if len(req.Recipients) > 0 {
		summary, err = s.orchestrator.ShareCurrentLocationWith(r.Context(), req.Recipients)
	} else {
		summary, err = s.orchestrator.ShareCurrentLocation(r.Context())
	}
	if err != nil {
		// Only capture can fail the pipeline; everything else degrades.
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleSync triggers one reconciliation pass.
//
// POST /api/v1/share/sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result := s.orchestrator.ProcessPendingShares(r.Context())
	status := http.StatusOK
	if result.Skipped {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, result)
}

// handleHealth runs (or returns the cached) system health check.
//
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.RunSystemHealthCheck(r.Context())
	code := http.StatusOK
	if !status.Overall {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// handleEvents lists recorded service events, newest-first.
//
// GET /api/v1/events
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.monitor.Events()
	if events == nil {
		events = []models.ServiceEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleResolveEvent marks one event resolved.
//
// POST /api/v1/events/{id}/resolve
func (s *Server) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.monitor.ResolveEvent(id) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown event id"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLocations lists cached locations, most-recent-first.
//
// GET /api/v1/locations
func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.Locations())
}
