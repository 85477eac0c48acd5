// Package server provides the HTTP server for the mudra gesture pipeline.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Pipeline is the part of the running application the server exposes.
type Pipeline interface {
	Events() *events.Log
	Hands() *events.HandFeed
	Source() capture.Source
	Stats() app.Stats
	IsRunning() bool
	IsEnabled() bool
	SetEnabled(enabled bool)
	SessionID() string
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pipeline  Pipeline
	Logger    *slog.Logger
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store, s.logger)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if p := s.config.Pipeline; p != nil {
		s.mux.HandleFunc("/api/pipeline", s.handlePipeline)
		s.mux.HandleFunc("/api/events", s.handleEvents)
		s.mux.Handle("/api/events/ws", NewEventsSocket(p.Events(), s.logger))
		s.mux.Handle("/api/hands/ws", NewHandsSocket(p.Hands(), s.logger))
		s.mux.Handle("/api/stream", NewStreamHandler(p.Source(), s.logger))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type pipelineStatus struct {
	Running       bool      `json:"running"`
	Enabled       bool      `json:"enabled"`
	SessionID     string    `json:"session_id,omitempty"`
	LastSeq       uint64    `json:"last_seq"`
	Hands         int       `json:"hands"`
	HandsFrameSeq uint64    `json:"hands_frame_seq"`
	Stats         app.Stats `json:"stats"`
}

func (s *Server) status() pipelineStatus {
	p := s.config.Pipeline
	hands, _ := p.Hands().Latest()
	return pipelineStatus{
		Running:       p.IsRunning(),
		Enabled:       p.IsEnabled(),
		SessionID:     p.SessionID(),
		LastSeq:       p.Events().Len(),
		Hands:         hands.Count(),
		HandsFrameSeq: hands.FrameSeq,
		Stats:         p.Stats(),
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Pipeline != nil {
		response["pipeline"] = s.status()
	}

	api.WriteJSON(w, http.StatusOK, response)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handlePipeline reports the pipeline status on GET and toggles detection on PUT.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req setEnabledRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		s.config.Pipeline.SetEnabled(*req.Enabled)
		s.logger.Info("pipeline toggled", "enabled", *req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.WriteJSON(w, http.StatusOK, s.status())
}

type eventsResponse struct {
	Events  []gesture.Event `json:"events"`
	LastSeq uint64          `json:"last_seq"`
}

// handleEvents handles GET /api/events?since=N and returns the events after N
// from the live log.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	since, err := api.ParseUint(r, "since", api.MaxSince)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid since")
		return
	}

	log := s.config.Pipeline.Events()
	evs := log.Since(since)
	last := since
	if n := len(evs); n > 0 {
		last = evs[n-1].Seq
	}

	api.WriteJSON(w, http.StatusOK, eventsResponse{Events: evs, LastSeq: last})
}

// HTTPServer returns an *http.Server bound to addr so callers can shut it
// down gracefully.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
