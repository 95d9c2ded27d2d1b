// ABOUTME: HTTP API server for the dashboard
// ABOUTME: Serves cached projects with budget metrics plus sync and lookup endpoints
package web

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/sync"
)

type Server struct {
	db       *sql.DB
	orch     *sync.Orchestrator
	ondemand *sync.OnDemand
}

func NewServer(database *sql.DB, orch *sync.Orchestrator, ondemand *sync.OnDemand) *Server {
	return &Server{
		db:       database,
		orch:     orch,
		ondemand: ondemand,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleSaveProject)
		r.Post("/projects/sync", s.handleSyncProjects)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Get("/invoices", s.handleInvoices)
		r.Get("/employees", s.handleEmployees)
		r.Get("/absencerequests", s.handleAbsenceRequests)
	})

	// Legacy shape for older dashboard builds.
	r.Get("/api/projects", s.handleLegacyProjects)

	return r
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting API server at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "ok",
		"database": "ok",
	}

	if err := s.db.Ping(); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
	}

	if state, err := db.GetSyncState(s.db, "projects"); err == nil && state != nil {
		health["sync_status"] = state.Status
		if state.LastSyncTime != nil {
			health["last_sync"] = state.LastSyncTime
		}
	}

	respondOK(w, health, nil)
}

// lastSyncTime returns the last successful project sync, or nil.
func (s *Server) lastSyncTime() *Meta {
	meta := &Meta{}
	if state, err := s.syncState(); err == nil && state != nil {
		meta.LastSync = state.LastSyncTime
	}
	return meta
}

func (s *Server) syncState() (*db.SyncState, error) {
	return db.GetSyncState(s.db, "projects")
}
