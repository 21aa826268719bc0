package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/compare"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.newSession())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	state, res, ok := s.turn(r.Context(), r.PathValue("id"), text)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, TurnResponse{
		Kind:        res.Kind,
		Reply:       res.Reply,
		Progress:    res.Progress,
		Loaded:      res.Loaded,
		Unavailable: res.Unavailable,
		Session:     state,
	})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.sessions.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.reset(id))
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	state, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if state.Dataset == nil {
		writeError(w, http.StatusNotFound, "no comparison dataset yet")
		return
	}
	writeJSON(w, http.StatusOK, DatasetResponse{
		Locations: state.Dataset.Locations(),
		Stats:     compare.Describe(*state.Dataset),
		Rows:      state.Dataset.Rows,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	s.writeChart(w, r, r.PathValue("id"))
}

func (s *Server) writeChart(w http.ResponseWriter, r *http.Request, id string) {
	state, ok := s.sessions.Get(id)
	if !ok || state.Dataset == nil || len(state.Dataset.Rows) == 0 {
		http.NotFound(w, r)
		return
	}
	data, err := s.charts.Render(*state.Dataset)
	if err != nil {
		s.logger.Error("render chart", zap.String("session", id), zap.Error(err))
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}
