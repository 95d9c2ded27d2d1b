// ABOUTME: Gripp-backed project source for sync runs
// ABOUTME: Fetches all project rows and normalizes them, skipping rows that cannot be parsed
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/flipmoo/begripp-sub005/gripp"
	"github.com/flipmoo/begripp-sub005/models"
)

// API is the subset of the Gripp client this package uses.
type API interface {
	Execute(ctx context.Context, method string, filters []gripp.Filter, options map[string]interface{}) (*gripp.Result, error)
	GetAll(ctx context.Context, method string, filters []gripp.Filter) ([]json.RawMessage, error)
	GetAllFresh(ctx context.Context, method string, filters []gripp.Filter) ([]json.RawMessage, error)
}

// GrippSource implements Source against the Gripp API.
type GrippSource struct {
	client API
}

func NewGrippSource(client API) *GrippSource {
	return &GrippSource{client: client}
}

// TriggerSync issues a minimal request so the remote side refreshes its
// data and connectivity problems surface before the full fetch.
func (s *GrippSource) TriggerSync(ctx context.Context) error {
	options := map[string]interface{}{
		"paging": map[string]int{"firstresult": 0, "maxresults": 1},
	}
	if _, err := s.client.Execute(ctx, "project.get", nil, options); err != nil {
		return fmt.Errorf("gripp refresh failed: %w", err)
	}
	return nil
}

// FetchProjects pulls every project row and normalizes it. Rows that fail
// normalization are logged and skipped rather than failing the run.
func (s *GrippSource) FetchProjects(ctx context.Context, fresh bool) ([]models.Project, error) {
	var rows []json.RawMessage
	var err error
	if fresh {
		rows, err = s.client.GetAllFresh(ctx, "project.get", nil)
	} else {
		rows, err = s.client.GetAll(ctx, "project.get", nil)
	}
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(rows))
	for _, row := range rows {
		project, err := gripp.NormalizeProject(row)
		if err != nil {
			log.Printf("Warning: skipping unparseable project row: %v", err)
			continue
		}
		projects = append(projects, *project)
	}

	return projects, nil
}
