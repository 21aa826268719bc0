package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/models"
)

const sessionCookie = "groundwater_session"

// pageSession returns the browser's session, creating one when the cookie is missing or stale.
func (s *Server) pageSession(w http.ResponseWriter, r *http.Request) models.SessionState {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if state, ok := s.sessions.Get(c.Value); ok {
			return state
		}
	}
	state := s.newSession()
	setSessionCookie(w, state.ID)
	return state
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	state := s.pageSession(w, r)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", newIndexData(state)); err != nil {
		s.logger.Error("template error", zap.Error(err))
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.FormValue("message"))
	state := s.pageSession(w, r)
	if text != "" {
		if _, _, ok := s.turn(r.Context(), state.ID, text); !ok {
			// Swept between lookup and turn; start over.
			state = s.newSession()
			setSessionCookie(w, state.ID)
			s.turn(r.Context(), state.ID, text)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleResetPage(w http.ResponseWriter, r *http.Request) {
	state := s.pageSession(w, r)
	fresh := s.reset(state.ID)
	setSessionCookie(w, fresh.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePageChart(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.writeChart(w, r, c.Value)
}
