// Package api serves the activity tracker's HTTP surface: live status,
// stored counts and transitions, tuning reads and updates, and a
// server-sent event stream of frame results.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/workfloor-data/activity.report/internal/activitydb"
	"github.com/workfloor-data/activity.report/internal/config"
	"github.com/workfloor-data/activity.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// heartbeatInterval is how often the event stream emits a comment ping to
// keep idle connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Feed      *StatusFeed
	DB        *activitydb.ActivityDB
	SessionID string

	// Tuning seeds the server's view of the active config. The server
	// keeps its own copy; updates reach the host only through
	// OnTuningChange, never by writing through this pointer.
	Tuning *config.TuningConfig

	// OnTuningChange is invoked after a validated tuning update. The host
	// decides when to hand the new values to the pipeline.
	OnTuningChange func(config.TuningConfig)

	// Clock drives the event-stream heartbeat. Nil uses the wall clock.
	Clock timeutil.Clock
}

type Server struct {
	feed           *StatusFeed
	db             *activitydb.ActivityDB
	sessionID      string
	tuningMu       sync.Mutex
	tuning         *config.TuningConfig
	onTuningChange func(config.TuningConfig)
	clock          timeutil.Clock
}

func NewServer(cfg ServerConfig) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	tuning := config.DefaultTuningConfig()
	if cfg.Tuning != nil {
		snapshot := *cfg.Tuning
		tuning = &snapshot
	}
	return &Server{
		feed:           cfg.Feed,
		db:             cfg.DB,
		sessionID:      cfg.SessionID,
		tuning:         tuning,
		onTuningChange: cfg.OnTuningChange,
		clock:          clock,
	}
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

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/counts", s.listCounts)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/events", s.streamEvents)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// queryLimit parses the 'limit' parameter with a default and upper bound.
func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "activity-report", "timestamp": "%s"}`,
		time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := StatusAPI{
		Service:   "activity-report",
		SessionID: s.sessionID,
	}

	if result, ok := s.feed.LatestResult(); ok {
		status.LastTimestamp = result.TimestampSec
		status.LastSeq = result.Seq
		status.Counts = countsToAPI(result.Counts)
		status.TracksLive = result.TracksLive
	}
	_, stats := s.feed.RegistrySnapshot()
	status.Stats = statsToAPI(stats)

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tracks, _ := s.feed.RegistrySnapshot()
	apiTracks := make([]TrackAPI, len(tracks))
	for i, t := range tracks {
		apiTracks[i] = trackToAPI(t)
	}

	if err := json.NewEncoder(w).Encode(apiTracks); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write tracks")
		return
	}
}

func (s *Server) listCounts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	since := 0.0
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'since' parameter")
			return
		}
		since = parsed
	}
	limit := queryLimit(r, 500, 5000)

	samples, err := s.db.CountSamplesSince(s.sessionID, since, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve count samples: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(samples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write count samples")
		return
	}
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := queryLimit(r, 100, 2000)

	transitions, err := s.db.RecentTransitions(s.sessionID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve transitions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(transitions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write transitions")
		return
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := queryLimit(r, 20, 200)

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.tuningMu.Lock()
		snapshot := *s.tuning
		s.tuningMu.Unlock()
		if err := json.NewEncoder(w).Encode(&snapshot); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		}

	case http.MethodPut:
		var patch config.TuningConfig
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid config payload: %v", err))
			return
		}

		s.tuningMu.Lock()
		merged := s.tuning.Merge(&patch)
		if err := merged.Validate(); err != nil {
			s.tuningMu.Unlock()
			s.writeJSONError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("Invalid tuning values: %v", err))
			return
		}
		s.tuning = merged
		snapshot := *merged
		s.tuningMu.Unlock()

		if s.onTuningChange != nil {
			s.onTuningChange(snapshot)
		}

		if err := json.NewEncoder(w).Encode(&snapshot); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		}

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// streamEvents issues Server-Sent Events for every processed frame, with a
// periodic comment heartbeat so proxies do not drop idle connections.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.feed.Subscribe()
	defer s.feed.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	w.(http.Flusher).Flush()

	heartbeat := s.clock.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				// Channel closed, exit gracefully
				return
			}
			if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
				return
			}
			w.(http.Flusher).Flush()

		case <-heartbeat.C():
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			w.(http.Flusher).Flush()

		case <-r.Context().Done():
			return
		}
	}
}
