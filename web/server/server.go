package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/df07/go-schwarzschild-raytracer/pkg/metrics"
	"github.com/df07/go-schwarzschild-raytracer/pkg/orbit"
	"github.com/df07/go-schwarzschild-raytracer/pkg/scene"
)

// Config holds the server settings
type Config struct {
	Addr        string        // Listen address
	FrameRate   int           // Frames per second of every stream
	MaxSessions int           // Sessions held at the same time
	SessionTTL  time.Duration // Idle time after which a session is dropped
	StaticDir   string        // Directory served at /
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		FrameRate:   30,
		MaxSessions: 16,
		SessionTTL:  10 * time.Minute,
		StaticDir:   "static",
	}
}

// Server handles web requests for the black hole simulation
type Server struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates a new web server
func NewServer(config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Handler returns the routes wrapped in logging and metrics middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("GET /", http.FileServer(http.Dir(s.config.StaticDir)))

	// API endpoints
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/scenes", s.handleScenes)
	mux.HandleFunc("GET /api/stability", s.handleStability)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/input", s.handleInput)
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleStream)
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// Run serves until ctx is cancelled and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: frame streams stay open
		IdleTimeout: 120 * time.Second,
	}

	go s.reapLoop(ctx)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.config.Addr, "frame_rate", s.config.FrameRate)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)

	s.closeAllSessions()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// reapLoop drops idle sessions until ctx is cancelled
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.reapSessions(now)
		case <-ctx.Done():
			return
		}
	}
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": active})
}

// handleScenes lists built-in and model scenes
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	response, err := scene.ListScenes()
	if err != nil {
		s.logger.Error("failed to list scenes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scenes")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// StabilityResponse classifies an orbit
type StabilityResponse struct {
	Rotation  float64 `json:"rotation"`
	Radius    float64 `json:"r"`
	SchwarzR  float64 `json:"schwarzR"`
	Stability string  `json:"stability"`
	Color     string  `json:"color"`
}

// handleStability classifies the orbit with angular momentum rotation started at radius r
func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rotation, err := parseFloatParam(query, "rotation", 18, 0, 1e4)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := parseFloatParam(query, "r", 25, 0, 1e6)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	schwarzR, err := parseFloatParam(query, "schwarzR", 10, 0, 1e4)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stability := orbit.IsStable(rotation, schwarzR, radius)
	writeJSON(w, http.StatusOK, StabilityResponse{
		Rotation:  rotation,
		Radius:    radius,
		SchwarzR:  schwarzR,
		Stability: stability.String(),
		Color:     stability.Color().Hex(),
	})
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if !(parsed >= min && parsed <= max) {
			return 0, fmt.Errorf("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the recorder
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if r.URL.Path == "/api/health" {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
