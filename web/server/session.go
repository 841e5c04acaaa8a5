package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/metrics"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/pointcloud"
	"github.com/df07/go-schwarzschild-raytracer/pkg/renderer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/scene"
)

var (
	errBadInput     = errors.New("invalid input")
	errSessionLimit = errors.New("too many sessions")
)

// maxFrameStep caps the simulated time of one frame after stalls
const maxFrameStep = 100 * time.Millisecond

var keyNames = map[string]observer.Key{
	"forward":  observer.KeyForward,
	"backward": observer.KeyBackward,
	"left":     observer.KeyLeft,
	"right":    observer.KeyRight,
	"up":       observer.KeyUp,
	"down":     observer.KeyDown,
}

var modeNames = map[string]observer.Mode{
	"unmoving":     observer.ModeUnmoving,
	"frozen-fall":  observer.ModeFrozenFall,
	"central-fall": observer.ModeCentralFall,
	"orbit":        observer.ModeOrbit,
	"reset":        observer.ModeReset,
}

// SessionRequest represents the parameters of a new session
type SessionRequest struct {
	Scene  string `json:"scene"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	HUD    bool   `json:"hud"`
}

// SessionResponse is returned when a session is created
type SessionResponse struct {
	ID     string `json:"id"`
	Scene  string `json:"scene"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// InputRequest carries the user input since the last request
type InputRequest struct {
	Keys    map[string]bool `json:"keys"`    // Held or released movement keys
	MouseDX float64         `json:"mouseDx"` // Camera movement in pixels
	MouseDY float64         `json:"mouseDy"`
	Mode    string          `json:"mode"` // Mode name or mode key ("1".."4", "r")
}

// ObserverState describes the observer in a frame
type ObserverState struct {
	Position [3]float64 `json:"position"`
	Radius   float64    `json:"r"`
	State    string     `json:"state"`
	Camera   [2]float64 `json:"camera"`
	Psi      float64    `json:"psi"`
	Inside   bool       `json:"inside"`
}

// StabilityInfo classifies an orbit started at the observer position
type StabilityInfo struct {
	Rotation float64 `json:"rotation"`
	Class    string  `json:"class"`
	Color    string  `json:"color"`
}

// FrameStats represents frame statistics
type FrameStats struct {
	RenderMs    float64 `json:"renderMs"`
	FanSolves   int     `json:"fanSolves"`
	MissRatio   float64 `json:"missRatio"`
	Points      int     `json:"points"`
	PointsDrawn int     `json:"pointsDrawn"`
	Respawns    int     `json:"respawns"`
}

// FrameUpdate represents a single frame sent via SSE
type FrameUpdate struct {
	Frame        int                             `json:"frame"`
	ImageData    string                          `json:"imageData"`    // Base64 encoded PNG
	Pipeline     observer.TransformationPipeline `json:"pipeline"`     // Matrices for client side shading
	PipelineData string                          `json:"pipelineData"` // Base64 encoded uniform block
	Observer     ObserverState                   `json:"observer"`
	Stability    StabilityInfo                   `json:"stability"`
	Stats        FrameStats                      `json:"stats"`
}

// Session is one running simulation. All fields below mu are guarded by it.
type Session struct {
	ID      string
	SceneID string

	console chan ConsoleMessage

	mu         sync.Mutex
	scene      *scene.Scene
	observer   *observer.Observer
	controller *observer.Controller
	points     *pointcloud.PointCloud
	renderer   *renderer.SkyRenderer
	logger     core.Logger
	hud        bool
	frame      int
	outside    bool
	streaming  bool
	lastSeen   time.Time
	closed     bool
}

// newSession sets up scene, observer, point cloud and renderer
func newSession(req SessionRequest, slogger *slog.Logger) (*Session, error) {
	id := uuid.NewString()
	console := make(chan ConsoleMessage, 50)
	logger := NewWebLogger(id, console, slogger)

	s, err := scene.NewScene(req.Scene, logger)
	if err != nil {
		return nil, err
	}
	layers, err := s.Layers()
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", req.Scene, err)
	}

	o := s.NewObserver(req.Width, req.Height)
	points, err := s.NewPointCloud(o.Position())
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", req.Scene, err)
	}

	config := renderer.DefaultConfig()
	config.Width = req.Width
	config.Height = req.Height

	logger.Printf("Session %s: scene %s (R = %g)\n", id, s.Name, s.SchwarzR)
	return &Session{
		ID:         id,
		SceneID:    req.Scene,
		console:    console,
		scene:      s,
		observer:   o,
		controller: observer.NewController(observer.DefaultSpeed),
		points:     points,
		renderer:   renderer.NewSkyRenderer(config, layers, logger),
		logger:     logger,
		hud:        req.HUD,
		outside:    o.RadialPosition() > s.SchwarzR,
		lastSeen:   time.Now(),
	}, nil
}

// parseMode accepts mode names and the mode keys
func parseMode(name string) (observer.Mode, bool) {
	if mode, ok := modeNames[name]; ok {
		return mode, true
	}
	if runes := []rune(name); len(runes) == 1 {
		return observer.ParseMode(runes[0])
	}
	return 0, false
}

// applyInput validates and applies user input. A mode change that is not
// possible at the current position returns an error and leaves the state.
func (s *Session) applyInput(in InputRequest) error {
	keys := make(map[observer.Key]bool, len(in.Keys))
	for name, pressed := range in.Keys {
		key, ok := keyNames[name]
		if !ok {
			return fmt.Errorf("%w: unknown key %q", errBadInput, name)
		}
		keys[key] = pressed
	}
	var mode observer.Mode
	if in.Mode != "" {
		var ok bool
		if mode, ok = parseMode(in.Mode); !ok {
			return fmt.Errorf("%w: unknown mode %q", errBadInput, in.Mode)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	for key, pressed := range keys {
		s.controller.ProcessKey(key, pressed)
	}
	s.controller.ProcessMouse(in.MouseDX, in.MouseDY)

	if mode != 0 {
		if err := observer.ApplyMode(s.observer, mode); err != nil {
			return err
		}
		s.logger.Printf("Mode: %s\n", s.observer.State())
	}
	return nil
}

// step advances the simulation by dt and renders a frame
func (s *Session) step(dt time.Duration) (*FrameUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, renderer.ErrClosed
	}
	start := time.Now()
	s.lastSeen = start
	dt = min(dt, maxFrameStep)

	s.controller.Update(s.observer, dt)

	r := s.observer.RadialPosition()
	outside := r > s.scene.SchwarzR
	if s.outside && !outside {
		metrics.IncHorizonCrossings()
		s.logger.Printf("Crossed the event horizon at r = %.3f\n", r)
	}
	s.outside = outside

	frame := renderer.Frame{Pipeline: s.observer.CalcTransformationPipeline()}
	respawns := 0
	if s.points != nil {
		before := s.points.Respawns()
		s.points.Update(s.observer.Position(), dt)
		respawns = s.points.Respawns()
		metrics.AddParticleRespawns(respawns - before)

		frame.Points = s.points.Vertices()
		frame.FarsidePoints = s.points.FarsideVertices()
	}

	img, stats, err := s.renderer.Render(frame)
	if err != nil {
		return nil, err
	}
	stability := s.observer.OrbitStability(observer.OrbitRotation)
	if s.hud {
		renderer.DrawHUD(img, []string{
			fmt.Sprintf("r = %.2f", r),
			s.observer.State().String(),
			stability.String(),
		})
	}

	imageData, err := imageToBase64PNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	pipelineData, err := frame.Pipeline.MarshalBinary()
	if err != nil {
		return nil, err
	}

	s.frame++
	pos := s.observer.Position()
	camera := s.observer.Camera()
	update := &FrameUpdate{
		Frame:        s.frame,
		ImageData:    imageData,
		Pipeline:     frame.Pipeline,
		PipelineData: base64.StdEncoding.EncodeToString(pipelineData),
		Observer: ObserverState{
			Position: [3]float64{pos.X, pos.Y, pos.Z},
			Radius:   r,
			State:    s.observer.State().String(),
			Camera:   [2]float64{camera.X, camera.Y},
			Psi:      s.observer.Psi(),
			Inside:   !outside,
		},
		Stability: StabilityInfo{
			Rotation: observer.OrbitRotation,
			Class:    stability.String(),
			Color:    stability.Color().Hex(),
		},
		Stats: FrameStats{
			FanSolves:   stats.FanSolves,
			MissRatio:   stats.MissRatio(),
			PointsDrawn: stats.PointsDrawn,
			Respawns:    respawns,
		},
	}
	if s.points != nil {
		update.Stats.Points = s.points.Len()
	}

	elapsed := time.Since(start)
	update.Stats.RenderMs = float64(elapsed.Microseconds()) / 1000
	metrics.RecordFrame(elapsed, stats.FanSolves, stats.FanSolveTime)
	return update, nil
}

// acquireStream marks the session as streamed, false if it already is
func (s *Session) acquireStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming || s.closed {
		return false
	}
	s.streaming = true
	return true
}

func (s *Session) releaseStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.lastSeen = time.Now()
}

// idleSince reports whether the session is not streamed and unused since before t
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.streaming && s.lastSeen.Before(t)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.renderer.Close()
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// addSession stores a new session unless the limit is reached
func (s *Server) addSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.config.MaxSessions {
		return errSessionLimit
	}
	s.sessions[session.ID] = session
	metrics.SetSessionsActive(len(s.sessions))
	return nil
}

func (s *Server) getSession(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	metrics.SetSessionsActive(len(s.sessions))
	s.mu.Unlock()

	if ok {
		session.close()
	}
	return ok
}

// reapSessions drops sessions idle for longer than the TTL
func (s *Server) reapSessions(now time.Time) int {
	cutoff := now.Add(-s.config.SessionTTL)

	s.mu.Lock()
	var idle []*Session
	for id, session := range s.sessions {
		if session.idleSince(cutoff) {
			idle = append(idle, session)
			delete(s.sessions, id)
		}
	}
	metrics.SetSessionsActive(len(s.sessions))
	s.mu.Unlock()

	for _, session := range idle {
		session.close()
		s.logger.Info("session expired", "session", session.ID)
	}
	return len(idle)
}

func (s *Server) closeAllSessions() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	metrics.SetSessionsActive(0)
	s.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

// parseSessionRequest parses request parameters
func parseSessionRequest(r *http.Request) (SessionRequest, error) {
	query := r.URL.Query()
	req := SessionRequest{Scene: query.Get("scene")}
	if req.Scene == "" {
		req.Scene = "default"
	}

	var err error
	if req.Width, err = parseIntParam(query, "width", 480, 16, 1920); err != nil {
		return req, err
	}
	if req.Height, err = parseIntParam(query, "height", 270, 16, 1080); err != nil {
		return req, err
	}
	req.HUD = query.Get("hud") == "1" || query.Get("hud") == "true"
	return req, nil
}

// handleCreateSession creates a session for a scene
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	req, err := parseSessionRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	session, err := newSession(req, s.logger)
	switch {
	case errors.Is(err, scene.ErrUnknownScene):
		writeError(w, http.StatusBadRequest, "Unknown scene: "+req.Scene)
		return
	case err != nil:
		s.logger.Error("failed to create session", "scene", req.Scene, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.addSession(session); err != nil {
		session.close()
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.logger.Info("session created", "session", session.ID, "scene", req.Scene, "width", req.Width, "height", req.Height)
	writeJSON(w, http.StatusCreated, SessionResponse{
		ID:     session.ID,
		Scene:  req.Scene,
		Name:   session.scene.Name,
		Width:  req.Width,
		Height: req.Height,
	})
}

// handleDeleteSession ends a session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.removeSession(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInput applies keyboard, mouse and mode input to a session
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	session, ok := s.getSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var in InputRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch err := session.applyInput(in); {
	case errors.Is(err, errBadInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	session.mu.Lock()
	state := session.observer.State().String()
	radius := session.observer.RadialPosition()
	session.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "r": radius})
}
