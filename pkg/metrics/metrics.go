// Package metrics exposes Prometheus collectors for the simulation and the web server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackhole_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackhole_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blackhole_frames_total",
			Help: "Total number of rendered frames.",
		},
	)

	frameDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blackhole_frame_duration_seconds",
			Help:    "Time to simulate and render one frame.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	fanSolvesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blackhole_fan_solves_total",
			Help: "Total number of ray fan tables solved.",
		},
	)

	fanSolveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blackhole_fan_solve_duration_seconds",
			Help:    "Time to solve the ray fans of one frame.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	particleRespawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blackhole_particle_respawns_total",
			Help: "Total number of particles that fell in and respawned.",
		},
	)

	horizonCrossingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blackhole_horizon_crossings_total",
			Help: "Total number of observers crossing the event horizon.",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blackhole_sessions_active",
			Help: "Number of simulation sessions currently held by the server.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(frameDurationSeconds)
	prometheus.MustRegister(fanSolvesTotal)
	prometheus.MustRegister(fanSolveDurationSeconds)
	prometheus.MustRegister(particleRespawnsTotal)
	prometheus.MustRegister(horizonCrossingsTotal)
	prometheus.MustRegister(sessionsActive)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFrame counts a rendered frame and the ray fans solved for it.
func RecordFrame(duration time.Duration, fanSolves int, fanSolveTime time.Duration) {
	framesTotal.Inc()
	frameDurationSeconds.Observe(duration.Seconds())
	if fanSolves > 0 {
		fanSolvesTotal.Add(float64(fanSolves))
		fanSolveDurationSeconds.Observe(fanSolveTime.Seconds())
	}
}

// AddParticleRespawns counts particles that fell into the black hole.
func AddParticleRespawns(n int) {
	if n > 0 {
		particleRespawnsTotal.Add(float64(n))
	}
}

// IncHorizonCrossings counts an observer passing the event horizon.
func IncHorizonCrossings() {
	horizonCrossingsTotal.Inc()
}

// SetSessionsActive sets the number of live sessions.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// normalizeRoute collapses session ids so that the path label stays bounded.
func normalizeRoute(path string) string {
	switch path {
	case "/", "/metrics", "/api/health", "/api/scenes", "/api/sessions", "/api/stability":
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/sessions/")
	if !ok {
		return "other"
	}
	id, action, found := strings.Cut(rest, "/")
	if id == "" {
		return "other"
	}
	if !found {
		return "/api/sessions/{id}"
	}
	switch action {
	case "input", "stream":
		return "/api/sessions/{id}/" + action
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes flushes through so that event streams keep working.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
