// Package api serves the measurement controller over HTTP.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/geomeasure/internal/db"
	"github.com/banshee-data/geomeasure/internal/mode"
	"github.com/banshee-data/geomeasure/internal/timeutil"
	"tailscale.com/tsweb"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Undulations answers geoid lookups for the /geoid endpoint. *geoid.Model
// implements it.
type Undulations interface {
	Interpolate(lat, lon float64) (float64, bool)
	Loaded() bool
}

// CalibrationStore persists calibration results. *db.DB implements it.
type CalibrationStore interface {
	RecordCalibration(c db.Calibration) error
	Calibrations(limit int) ([]db.Calibration, error)
}

type Server struct {
	ctrl  *mode.Controller
	geoid Undulations
	store CalibrationStore
	clock timeutil.Clock
}

// NewServer returns a Server. store may be nil, in which case calibrations are
// applied but not persisted.
func NewServer(ctrl *mode.Controller, geoid Undulations, store CalibrationStore, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{ctrl: ctrl, geoid: geoid, store: store, clock: clock}
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
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
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

// ServeMux returns the public routes. Debug pages are added separately by
// AttachAdminRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /points", s.listPoints)
	mux.HandleFunc("DELETE /points/{id}", s.deletePoint)
	mux.HandleFunc("POST /capture", s.capture)
	mux.HandleFunc("POST /mode/toggle", s.toggleMode)
	mux.HandleFunc("POST /inertial/reference", s.startReference)
	mux.HandleFunc("POST /inertial/calibrate", s.calibrate)
	mux.HandleFunc("GET /calibrations", s.listCalibrations)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /geoid", s.lookupGeoid)
	return mux
}

// AttachAdminRoutes registers the height profile chart at /debug/profile.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("profile", "height profile of captured points", s.heightProfile)
}
