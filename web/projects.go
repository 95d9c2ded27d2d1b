// ABOUTME: Project endpoints: listing with budget metrics, upserts, sync, and cache clearing
// ABOUTME: Serves cached data and marks stale payloads after failed refreshes
package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/flipmoo/begripp-sub005/budget"
	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/gripp"
	"github.com/flipmoo/begripp-sub005/models"
)

// ProjectView is a cached project with its derived budget metrics attached.
type ProjectView struct {
	models.Project
	Budget models.ProjectBudget `json:"budget"`
}

func buildProjectViews(projects []models.Project, includeArchived bool) []ProjectView {
	views := make([]ProjectView, 0, len(projects))
	for i := range projects {
		if projects[i].Archived && !includeArchived {
			continue
		}
		views = append(views, ProjectView{
			Project: projects[i],
			Budget:  budget.Calculate(&projects[i]),
		})
	}
	return views
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	refresh := r.URL.Query().Get("refresh") == "true"

	stale := false
	if refresh {
		// Best effort: a failed refresh still serves the cached data below.
		if _, err := s.orch.Run(r.Context(), false); err != nil {
			stale = true
		}
	}

	projects, err := db.GetAllProjects(s.db)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cache_read_failed", err.Error())
		return
	}

	views := buildProjectViews(projects, includeArchived)

	meta := s.lastSyncTime()
	meta.Count = len(views)
	meta.Stale = stale
	respondOK(w, views, meta)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	// Accept raw Gripp-shaped records; normalization happens at the boundary.
	project, err := gripp.NormalizeProject(json.RawMessage(body))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_project", err.Error())
		return
	}

	if err := db.SaveProject(s.db, project); err != nil {
		respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}

	respondOK(w, ProjectView{Project: *project, Budget: budget.Calculate(project)}, nil)
}

func (s *Server) handleSyncProjects(w http.ResponseWriter, r *http.Request) {
	clearFirst := r.URL.Query().Get("clear") == "true"

	result, err := s.orch.Run(r.Context(), clearFirst)
	if err != nil {
		if result == nil {
			respondError(w, http.StatusConflict, "sync_busy", err.Error())
			return
		}
		// The run failed but cached data survived; report both.
		writeJSON(w, http.StatusBadGateway, envelope{
			Success: false,
			Data:    result,
			Meta:    &Meta{Count: result.Count, Stale: true, RunID: result.RunID},
			Error:   &apiError{Code: "sync_failed", Message: result.Error},
		})
		return
	}

	respondOK(w, result, &Meta{Count: result.Count, RunID: result.RunID})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := db.ClearProjects(s.db); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	if err := db.ClearCache(s.db); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}

	respondOK(w, map[string]string{"status": "cleared"}, nil)
}

// handleLegacyProjects serves the old {response, error} shape.
func (s *Server) handleLegacyProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := db.GetAllProjects(s.db)
	if err != nil {
		respondLegacy(w, nil, err)
		return
	}
	respondLegacy(w, buildProjectViews(projects, true), nil)
}
