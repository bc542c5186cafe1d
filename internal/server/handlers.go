package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"genzweekly/internal/store"

	"github.com/go-chi/chi/v5"
)

// HealthResponse is the /health payload
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// WeekSummary is one entry of the week listing
type WeekSummary struct {
	WeekID  string       `json:"week_id"`
	Status  store.Status `json:"status"`
	Formats []string     `json:"formats"`
}

// DecisionRequest is the optional body of approve and reject
type DecisionRequest struct {
	Note string `json:"note"`
}

// DecisionResponse reports a recorded decision
type DecisionResponse struct {
	WeekID string       `json:"week_id"`
	Status store.Status `json:"status"`
}

var serverStartTime = time.Now()

var contentTypes = map[string]string{
	"html": "text/html; charset=utf-8",
	"json": "application/json",
	"txt":  "text/plain; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",
	"mp3":  "audio/mpeg",
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(serverStartTime).Round(time.Second).String(),
	})
}

// handleListWeeks handles GET /api/weeks
func (s *Server) handleListWeeks(w http.ResponseWriter, r *http.Request) {
	entries, err := s.archive.ArchiveIndex(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}

	weeks := make([]WeekSummary, len(entries))
	for i, e := range entries {
		weeks[i] = WeekSummary{WeekID: e.WeekID, Status: e.Status, Formats: e.Formats}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"weeks": weeks})
}

// handleLatestWeek handles GET /api/weeks/latest
func (s *Server) handleLatestWeek(w http.ResponseWriter, r *http.Request) {
	weekID, err := s.archive.LatestWeek(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeWeek(w, r, weekID)
}

// handleGetWeek handles GET /api/weeks/{id}
func (s *Server) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	s.writeWeek(w, r, chi.URLParam(r, "id"))
}

func (s *Server) writeWeek(w http.ResponseWriter, r *http.Request, weekID string) {
	week, err := s.archive.LoadProcessed(r.Context(), weekID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, week)
}

// handleArtifact handles GET /api/weeks/{id}/artifacts/{format}
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	s.writeArtifact(w, r, chi.URLParam(r, "format"))
}

// handlePage serves a stored HTML artifact as a page
func (s *Server) handlePage(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeArtifact(w, r, format)
	}
}

func (s *Server) writeArtifact(w http.ResponseWriter, r *http.Request, format string) {
	artifact, err := s.archive.LoadArtifact(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.respondError(w, err)
		return
	}

	contentType, ok := contentTypes[artifact.Extension]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Content); err != nil {
		s.log.Error("Failed to write artifact", "format", format, "error", err)
	}
}

// handleDecision handles POST /api/weeks/{id}/approve and /reject. The
// decision is stored before responding; its follow-up runs in the background.
func (s *Server) handleDecision(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weekID := chi.URLParam(r, "id")

		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		status := store.StatusApproved
		if !approve {
			status = store.StatusRejected
		}

		e, err := s.decider.RecordDecision(r.Context(), weekID, status, req.Note)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.log.Info("Decision recorded over HTTP", "week_id", weekID, "status", status)

		s.goBackground("announce "+weekID, func(ctx context.Context) error {
			return s.decider.Announce(ctx, e)
		})
		s.respondJSON(w, http.StatusAccepted, DecisionResponse{WeekID: weekID, Status: status})
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError maps store and pipeline errors onto HTTP statuses
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		s.log.Error("Request failed", "error", err)
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}
