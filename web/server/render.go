package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSEEvent represents a single SSE event
type SSEEvent struct {
	Type string `json:"type"` // "console", "frame", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// handleStream simulates a session at the configured frame rate and streams
// every frame and console message via SSE. The optional frames parameter
// ends the stream after that many frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session, ok := s.getSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	maxFrames, err := parseIntParam(r.URL.Query(), "frames", 0, 0, 1_000_000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if !session.acquireStream() {
		writeError(w, http.StatusConflict, "session is already streaming")
		return
	}
	defer session.releaseStream()

	s.setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Frame streams outlive any server write timeout
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not clear write deadline", "error", err)
	}

	s.logger.Info("stream connected", "session", session.ID, "remote_ip", r.RemoteAddr)
	startTime := time.Now()
	defer func() {
		s.logger.Info("stream disconnected", "session", session.ID, "duration_seconds", int(time.Since(startTime).Seconds()))
	}()

	ctx := r.Context()
	ticker := time.NewTicker(time.Second / time.Duration(max(s.config.FrameRate, 1)))
	defer ticker.Stop()

	last := time.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return

		case msg := <-session.console:
			if err := writeJSONEvent(w, "console", msg); err != nil {
				return
			}

		case now := <-ticker.C:
			update, err := session.step(now.Sub(last))
			last = now
			if err != nil {
				writeSSEEvent(w, SSEEvent{Type: "error", Data: err.Error()})
				return
			}
			if err := writeJSONEvent(w, "frame", update); err != nil {
				s.logger.Warn("stream send error", "session", session.ID, "error", err)
				return
			}

			frames++
			if maxFrames > 0 && frames >= maxFrames {
				s.drainConsole(w, session)
				writeSSEEvent(w, SSEEvent{Type: "complete", Data: fmt.Sprintf("%d frames", frames)})
				return
			}
		}
	}
}

// drainConsole sends the console messages still queued
func (s *Server) drainConsole(w http.ResponseWriter, session *Session) {
	for {
		select {
		case msg := <-session.console:
			if err := writeJSONEvent(w, "console", msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

func writeJSONEvent(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeSSEEvent(w, SSEEvent{Type: eventType, Data: string(data)})
}

// writeSSEEvent writes and flushes one event
func writeSSEEvent(w http.ResponseWriter, event SSEEvent) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
