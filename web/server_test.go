// ABOUTME: Tests for the HTTP API endpoints
// ABOUTME: Covers envelopes, budget enrichment, sync endpoint outcomes, and the legacy shape
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/gripp"
	"github.com/flipmoo/begripp-sub005/models"
	"github.com/flipmoo/begripp-sub005/sync"
)

type fakeSource struct {
	triggerErr error
	projects   []models.Project
}

func (f *fakeSource) TriggerSync(ctx context.Context) error {
	return f.triggerErr
}

func (f *fakeSource) FetchProjects(ctx context.Context, fresh bool) ([]models.Project, error) {
	return f.projects, nil
}

type fakeAPI struct {
	rows map[string][]json.RawMessage
	err  error
}

func (f *fakeAPI) Execute(ctx context.Context, method string, filters []gripp.Filter, options map[string]interface{}) (*gripp.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, _ := json.Marshal(f.rows[method])
	return &gripp.Result{Rows: rows}, nil
}

func (f *fakeAPI) GetAll(ctx context.Context, method string, filters []gripp.Filter) ([]json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[method], nil
}

func (f *fakeAPI) GetAllFresh(ctx context.Context, method string, filters []gripp.Filter) ([]json.RawMessage, error) {
	return f.GetAll(ctx, method, filters)
}

func newTestServer(t *testing.T, source sync.Source, api sync.API) (*Server, *sql.DB) {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })

	orch := sync.NewOrchestrator(database, source, time.Millisecond)
	ondemand := sync.NewOnDemand(database, api, time.Minute)

	return NewServer(database, orch, ondemand), database
}

func doRequest(t *testing.T, server *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func seedProject(t *testing.T, database *sql.DB, id int64, name string, archived bool) {
	t.Helper()
	p := models.Project{
		ID:           id,
		Name:         name,
		Archived:     archived,
		Tags:         []models.Tag{},
		TotalExclVAT: 10000,
		Lines: []models.ProjectLine{
			{ID: id * 10, Amount: 100, AmountWritten: 150},
		},
	}
	require.NoError(t, db.SaveProject(database, &p))
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{}, &fakeAPI{})

	rec, body := doRequest(t, server, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "ok", data["database"])
}

func TestListProjectsWithBudget(t *testing.T) {
	server, database := newTestServer(t, &fakeSource{}, &fakeAPI{})
	seedProject(t, database, 1, "Active project", false)

	rec, body := doRequest(t, server, http.MethodGet, "/api/v1/projects", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].([]interface{})
	require.Len(t, data, 1)

	project := data[0].(map[string]interface{})
	budget := project["budget"].(map[string]interface{})
	assert.Equal(t, 150.0, budget["progress"])
	assert.Equal(t, 100.0, budget["start_hourly_rate"])
	assert.Equal(t, 5000.0, budget["overspend"])

	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, 1.0, meta["count"])
}

func TestListProjectsArchivedFilter(t *testing.T) {
	server, database := newTestServer(t, &fakeSource{}, &fakeAPI{})
	seedProject(t, database, 1, "Active", false)
	seedProject(t, database, 2, "Archived", true)

	_, body := doRequest(t, server, http.MethodGet, "/api/v1/projects", "")
	assert.Len(t, body["data"].([]interface{}), 1)

	_, body = doRequest(t, server, http.MethodGet, "/api/v1/projects?includeArchived=true", "")
	assert.Len(t, body["data"].([]interface{}), 2)
}

func TestSaveProjectNormalizesRawRecord(t *testing.T) {
	server, database := newTestServer(t, &fakeSource{}, &fakeAPI{})

	raw := `{
		"id": 42,
		"name": "Posted project",
		"tags": "[{\"id\": 1, \"searchname\": \"design\"}]",
		"totalexclvat": "2500.00"
	}`
	rec, body := doRequest(t, server, http.MethodPost, "/api/v1/projects", raw)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	saved, err := db.GetProject(database, 42)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Posted project", saved.Name)
	require.Len(t, saved.Tags, 1)
	assert.Equal(t, "design", saved.Tags[0].Name)
	assert.Equal(t, 2500.0, saved.TotalExclVAT)
}

func TestSaveProjectRejectsGarbage(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{}, &fakeAPI{})

	rec, body := doRequest(t, server, http.MethodPost, "/api/v1/projects", `"nope"`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestSyncEndpointReplacesCache(t *testing.T) {
	source := &fakeSource{projects: []models.Project{
		{ID: 7, Name: "Synced", Tags: []models.Tag{}},
	}}
	server, database := newTestServer(t, source, &fakeAPI{})
	seedProject(t, database, 1, "Old", false)

	rec, body := doRequest(t, server, http.MethodPost, "/api/v1/projects/sync", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "complete", data["state"])

	projects, err := db.GetAllProjects(database)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(7), projects[0].ID)
}

func TestSyncEndpointFailureKeepsCache(t *testing.T) {
	source := &fakeSource{triggerErr: errors.New("gripp down")}
	server, database := newTestServer(t, source, &fakeAPI{})
	seedProject(t, database, 1, "Cached", false)

	rec, body := doRequest(t, server, http.MethodPost, "/api/v1/projects/sync", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])

	apiErr := body["error"].(map[string]interface{})
	assert.Equal(t, "sync_failed", apiErr["code"])

	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["stale"])

	projects, err := db.GetAllProjects(database)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Cached", projects[0].Name)
}

func TestCacheClearEndpoint(t *testing.T) {
	server, database := newTestServer(t, &fakeSource{}, &fakeAPI{})
	seedProject(t, database, 1, "Doomed", false)
	require.NoError(t, db.SetCacheItem(database, "employees", []byte("[]")))

	rec, _ := doRequest(t, server, http.MethodPost, "/api/v1/cache/clear", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	count, err := db.CountProjects(database)
	require.NoError(t, err)
	assert.Zero(t, count)

	entry, err := db.GetCacheItem(database, "employees")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestEmployeesEndpoint(t *testing.T) {
	api := &fakeAPI{rows: map[string][]json.RawMessage{
		"employee.get": {json.RawMessage(`{"id": 5, "searchname": "Anna Jansen", "active": true}`)},
	}}
	server, _ := newTestServer(t, &fakeSource{}, api)

	rec, body := doRequest(t, server, http.MethodGet, "/api/v1/employees", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	employee := data[0].(map[string]interface{})
	assert.Equal(t, "Anna Jansen", employee["searchname"])
}

func TestInvoicesEndpointUnavailable(t *testing.T) {
	api := &fakeAPI{err: errors.New("gripp down")}
	server, _ := newTestServer(t, &fakeSource{}, api)

	rec, body := doRequest(t, server, http.MethodGet, "/api/v1/invoices", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestLegacyProjectsShape(t *testing.T) {
	server, database := newTestServer(t, &fakeSource{}, &fakeAPI{})
	seedProject(t, database, 1, "Legacy", false)

	rec, body := doRequest(t, server, http.MethodGet, "/api/projects", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	response, ok := body["response"].([]interface{})
	require.True(t, ok, "legacy shape must use the response key")
	assert.Len(t, response, 1)
	assert.Nil(t, body["error"])
}
