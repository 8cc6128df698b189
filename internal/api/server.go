// Package api is the GUI boundary: a JSON HTTP surface plus a Server-Sent
// Events stream of pipeline events. The presentation layer subscribes;
// nothing in here knows how results are rendered.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fairway-data/launch.report/internal/config"
	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/store"
	"github.com/fairway-data/launch.report/internal/vision"
)

// ANSI escape codes for request log coloring.
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ComponentStater reports a pipeline component's current state for the
// status endpoint.
type ComponentStater interface {
	State() string
}

// Server serves the GUI API.
type Server struct {
	bus    *events.Bus
	store  *store.Store
	holder *vision.SnapshotHolder
	config *config.Config

	// statusFuncs are polled by /api/status; each contributes one named
	// field (trigger state, missed captures, exposure, ...).
	statusFuncs map[string]func() interface{}
}

// NewServer creates a Server.
func NewServer(bus *events.Bus, st *store.Store, holder *vision.SnapshotHolder, cfg *config.Config) *Server {
	return &Server{
		bus:         bus,
		store:       st,
		holder:      holder,
		config:      cfg,
		statusFuncs: make(map[string]func() interface{}),
	}
}

// AddStatusField registers a named status contributor.
func (s *Server) AddStatusField(name string, f func() interface{}) {
	s.statusFuncs[name] = f
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/shots", s.handleShots)
	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/api/profiles/", s.handleProfileByID)
	mux.HandleFunc("/api/settings/", s.handleSetting)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
