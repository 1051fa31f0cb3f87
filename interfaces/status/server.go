// Package status serves the optional JSON status endpoint for a running
// scan: health, database stats, and per-job progress driven by the scan
// event bus.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"sptrace/database"
	domevents "sptrace/domain/events"
	"sptrace/logging"
	"sptrace/platform/events"
)

// jobState is the last observed state of one job.
type jobState struct {
	Index     int       `json:"index"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Server exposes /health and /status over chi.
type Server struct {
	db     *database.Database
	logger *logging.Logger
	server *http.Server

	mu        sync.RWMutex
	runID     string
	jobStates map[int]*jobState
	finished  bool
}

// New creates a status server and subscribes it to the scan event bus.
func New(addr string, db *database.Database, bus *events.ScanEventBus) *Server {
	s := &Server{
		db:        db,
		logger:    logging.Default().WithComponent("status_server"),
		jobStates: make(map[int]*jobState),
	}

	bus.OnJobStarted(func(e domevents.JobStartedEvent) {
		s.update(e.RunID, &jobState{
			Index: e.Job.Index, URL: e.Job.URL, Status: "running", UpdatedAt: e.Timestamp,
		})
	})
	bus.OnJobCompleted(func(e domevents.JobCompletedEvent) {
		s.update(e.RunID, &jobState{
			Index: e.Job.Index, URL: e.Job.URL, Status: "completed", UpdatedAt: e.Timestamp,
		})
	})
	bus.OnJobSkipped(func(e domevents.JobSkippedEvent) {
		s.update(e.RunID, &jobState{
			Index: e.Job.Index, URL: e.Job.URL, Status: "skipped", Reason: e.Reason, UpdatedAt: e.Timestamp,
		})
	})
	bus.OnRunCompleted(func(e domevents.RunCompletedEvent) {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
	})

	httpLogger := httplog.NewLogger("sptrace", httplog.Options{JSON: true})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(httpLogger))
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	s.server = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves until Stop is called. Intended to run in its own goroutine.
func (s *Server) Start() {
	s.logger.Info("Status server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Status server failed", "error", err.Error())
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) update(runID string, st *jobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.jobStates[st.Index] = st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Health()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"status":   "ok",
		"database": stats,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	states := make([]*jobState, 0, len(s.jobStates))
	for _, st := range s.jobStates {
		states = append(states, st)
	}
	response := map[string]interface{}{
		"run_id":   s.runID,
		"finished": s.finished,
		"jobs":     states,
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
