// Package server exposes the agent over HTTP: a single-shot case evaluation
// endpoint and the resumable chat endpoints backed by the session store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pakornv/refund-returns-agent/agent/chatflow"
	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	"github.com/pakornv/refund-returns-agent/agent/orchestrator"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker func(ctx context.Context) error

type Server struct {
	agent  *orchestrator.Orchestrator
	flow   *chatflow.Flow
	health HealthChecker
	router *chi.Mux
	logger zerolog.Logger
}

func New(cfg Config, agent *orchestrator.Orchestrator, flow *chatflow.Flow, health HealthChecker) (*Server, error) {
	if agent == nil {
		return nil, errors.New("orchestrator is required")
	}
	if flow == nil {
		return nil, errors.New("chat flow is required")
	}
	if health == nil {
		health = func(context.Context) error { return nil }
	}

	s := &Server{
		agent:  agent,
		flow:   flow,
		health: health,
		logger: logx.Component("server"),
	}
	s.setupRoutes(cfg)
	return s, nil
}

func (s *Server) setupRoutes(cfg Config) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Post("/agent/respond", s.handleRespond)

	r.Route("/chat", func(r chi.Router) {
		r.Post("/start", s.handleChatStart)
		r.Post("/message", s.handleChatMessage)
		r.Post("/resume", s.handleChatResume)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleRespond runs one complete, stateless case evaluation.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req contractx.CaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.agent.Run(r.Context(), req)
	if err != nil {
		s.writeFlowError(w, err, "case evaluation failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStart(w http.ResponseWriter, r *http.Request) {
	var req chatflow.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.flow.Start(r.Context(), req)
	if err != nil {
		s.writeFlowError(w, err, "failed to start session")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatflow.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.flow.Message(r.Context(), req)
	if err != nil {
		s.writeFlowError(w, err, "failed to process message")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatResume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.flow.Resume(r.Context(), req.SessionID)
	if err != nil {
		s.writeFlowError(w, err, "failed to resume session")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) writeFlowError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, contractx.ErrValidation),
		errors.Is(err, orchestrator.ErrInvalidCase),
		errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, chatflow.ErrInvalidSessionID):
		respondError(w, http.StatusBadRequest, msg, err)
	case errors.Is(err, contractx.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, msg, err)
	default:
		s.logger.Error().Err(err).Msg(msg)
		respondError(w, http.StatusInternalServerError, msg, nil)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	respondJSON(w, status, body)
}
