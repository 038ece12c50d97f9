// Package server provides the HTTP control surface for the edgecam
// pipeline: lifecycle endpoints, detection results, MJPEG streams, run
// history and a WebSocket event feed.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/detect"
	"github.com/tonu1990/edgecam/internal/pipeline"
	"github.com/tonu1990/edgecam/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Controller *pipeline.Controller
	Board      *detect.Whiteboard

	// PreviewStream and DetectionStream serve the MJPEG branches.
	PreviewStream   http.Handler
	DetectionStream http.Handler

	// Store enables the run history endpoints when set.
	Store *store.Store

	// MetricsHandler is mounted at MetricsPath when both are set.
	MetricsHandler http.Handler
	MetricsPath    string

	Logger *logrus.Logger
}

// Server represents the HTTP server for the edgecam application.
type Server struct {
	config Config
	events *EventsHandler
	mux    *http.ServeMux
	log    *logrus.Entry
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		config: config,
		events: NewEventsHandler(log),
		mux:    http.NewServeMux(),
		log:    log.WithField("component", "server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// Events returns the WebSocket event hub. Wire it to the pipeline with
// Controller.Notify(s.Events().Broadcast).
func (s *Server) Events() *EventsHandler {
	return s.events
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/pipeline/start", s.handleStart)
	s.mux.HandleFunc("/api/pipeline/stop", s.handleStop)
	s.mux.HandleFunc("/api/detection", s.handleDetection)
	s.mux.HandleFunc("/api/detections", s.handleDetections)
	s.mux.Handle("/api/events", s.events)

	if s.config.Store != nil {
		s.mux.HandleFunc("/api/sessions", s.handleSessions)
	}

	if s.config.PreviewStream != nil {
		s.mux.Handle("/stream/preview", s.config.PreviewStream)
	}
	if s.config.DetectionStream != nil {
		s.mux.Handle("/stream/detection", s.config.DetectionStream)
	}

	if s.config.MetricsHandler != nil && s.config.MetricsPath != "" {
		s.mux.Handle(s.config.MetricsPath, s.config.MetricsHandler)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

// writeError maps pipeline error types to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch pipeline.TypeOf(err) {
	case pipeline.ErrorTypeState, pipeline.ErrorTypeConstruction:
		status = http.StatusConflict
	case pipeline.ErrorTypeStart:
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"type":  string(pipeline.TypeOf(err)),
	})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus reports the pipeline state and counters.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.config.Controller.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":          s.config.Controller.State(),
		"detection_mode": s.config.Controller.DetectionMode(),
		"stats": map[string]any{
			"frames_captured":  stats.FramesCaptured,
			"preview_frames":   stats.PreviewFrames,
			"display_frames":   stats.DisplayFrames,
			"inference_frames": stats.InferenceFrames,
			"inference_drops":  stats.InferenceDrops,
			"read_failures":    stats.ReadFailures,
			"gate_transitions": stats.GateTransitions,
		},
	})
}

// handleStart builds the pipeline if needed and starts it.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.config.Controller.State() == pipeline.StateIdle {
		if err := s.config.Controller.Build(); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.config.Controller.Start(); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.config.Controller.State()})
}

// handleStop stops the pipeline.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.config.Controller.Stop(); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.config.Controller.State()})
}

// handleDetection reads or toggles detection mode.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.config.Controller.DetectionMode()})

	case http.MethodPost, http.MethodPut:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.config.Controller.SetDetectionMode(req.Enabled); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleDetections returns the latest detection results.
func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"detections": s.config.Board.Latest(),
	})
}

// handleSessions lists recent pipeline runs.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := s.config.Store.Sessions().List(limit)
	if err != nil {
		s.log.WithError(err).Error("failed to list sessions")
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
