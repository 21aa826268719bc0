package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/agent"
	"github.com/lox/groundwater/internal/chart"
	"github.com/lox/groundwater/internal/models"
	"github.com/lox/groundwater/internal/session"
)

// Sessions idle longer than this are dropped by the sweeper.
const sessionIdle = 24 * time.Hour

// Agent runs conversation turns.
type Agent interface {
	NewSession() models.SessionState
	Reset(state models.SessionState) models.SessionState
	Turn(ctx context.Context, state models.SessionState, text string) (models.SessionState, agent.Result)
}

type Server struct {
	agent    Agent
	sessions *session.Store
	charts   *chart.Cache
	port     string
	tmpl     *template.Template
	logger   *zap.Logger
}

func NewServer(a Agent, sessions *session.Store, charts *chart.Cache, port string, logger *zap.Logger) *Server {
	return &Server{
		agent:    a,
		sessions: sessions,
		charts:   charts,
		port:     port,
		tmpl:     newTemplates(),
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleSubmit)
	mux.HandleFunc("POST /reset", s.handleResetPage)
	mux.HandleFunc("GET /chart.png", s.handlePageChart)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleResetSession)
	mux.HandleFunc("GET /api/sessions/{id}/dataset", s.handleDataset)
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", s.handleChart)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go s.sweep(ctx)

	s.logger.Info("starting server", zap.String("port", s.port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(sessionIdle); n > 0 {
				s.logger.Info("swept idle sessions", zap.Int("removed", n))
			}
		}
	}
}

// turn runs one message against a stored session, holding its turn lock.
func (s *Server) turn(ctx context.Context, id, text string) (models.SessionState, agent.Result, bool) {
	if _, ok := s.sessions.Get(id); !ok {
		return models.SessionState{}, agent.Result{}, false
	}
	unlock := s.sessions.Lock(id)
	defer unlock()

	state, ok := s.sessions.Get(id)
	if !ok {
		return models.SessionState{}, agent.Result{}, false
	}
	state, res := s.agent.Turn(ctx, state, text)
	s.sessions.Put(state)
	return state, res, true
}

// reset replaces a stored session with a fresh one and returns it.
func (s *Server) reset(id string) models.SessionState {
	unlock := s.sessions.Lock(id)
	defer unlock()

	old, _ := s.sessions.Get(id)
	fresh := s.agent.Reset(old)
	s.sessions.Delete(id)
	s.sessions.Put(fresh)
	return fresh
}

func (s *Server) newSession() models.SessionState {
	state := s.agent.NewSession()
	s.sessions.Put(state)
	return state
}

type HealthStatus struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{Status: "ok", Sessions: s.sessions.Len()})
}
