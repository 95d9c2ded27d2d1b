// ABOUTME: Tests for sync run orchestration
// ABOUTME: Covers the state machine, cache replacement, wait-step failure, and fallback behavior
package sync

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(database))
	return database
}

type fakeSource struct {
	triggerErr     error
	fetchErr       error
	projects       []models.Project
	triggered      int
	fetched        int
	triggerEntered chan struct{}
	triggerBlock   chan struct{}
}

func (f *fakeSource) TriggerSync(ctx context.Context) error {
	f.triggered++
	if f.triggerEntered != nil {
		close(f.triggerEntered)
		f.triggerEntered = nil
	}
	if f.triggerBlock != nil {
		<-f.triggerBlock
	}
	return f.triggerErr
}

func (f *fakeSource) FetchProjects(ctx context.Context, fresh bool) ([]models.Project, error) {
	f.fetched++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.projects, nil
}

func cachedProject(id int64, name string) models.Project {
	return models.Project{ID: id, Name: name, Tags: []models.Tag{}}
}

func TestRunCompletes(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	require.NoError(t, db.SaveAllProjects(database, []models.Project{cachedProject(1, "Old")}))

	source := &fakeSource{projects: []models.Project{
		cachedProject(10, "New A"),
		cachedProject(11, "New B"),
	}}
	orch := NewOrchestrator(database, source, time.Millisecond)

	events, cancel := orch.Broker().Subscribe()
	defer cancel()

	result, err := orch.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, models.SyncComplete, result.State)
	assert.Equal(t, 2, result.Count)
	assert.False(t, result.Stale)
	assert.Equal(t, 1, source.triggered)
	assert.Equal(t, 1, source.fetched)

	projects, err := db.GetAllProjects(database)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	state, err := db.GetSyncState(database, "projects")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.SyncComplete, state.Status)
	assert.NotNil(t, state.LastSyncTime)

	var states []string
	for i := 0; i < 3; i++ {
		select {
		case e := <-events:
			states = append(states, e.State)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for sync events")
		}
	}
	assert.Equal(t, []string{models.SyncLoading, models.SyncSyncing, models.SyncComplete}, states)
}

func TestRunFailureAtWaitLeavesCacheUntouched(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	require.NoError(t, db.SaveAllProjects(database, []models.Project{cachedProject(1, "Cached")}))

	// The context expires during the processing wait (step 2), before any
	// fetch happens.
	source := &fakeSource{projects: []models.Project{cachedProject(99, "Never stored")}}
	orch := NewOrchestrator(database, source, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := orch.Run(ctx, false)
	require.Error(t, err)

	assert.Equal(t, models.SyncError, result.State)
	assert.Equal(t, models.SyncError, orch.State())
	assert.Equal(t, 0, source.fetched, "fetch must not run after a failed wait")

	// Cache unchanged, and the result falls back to it.
	projects, dbErr := db.GetAllProjects(database)
	require.NoError(t, dbErr)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(1), projects[0].ID)

	assert.True(t, result.Stale)
	require.Len(t, result.Projects, 1)
	assert.Equal(t, "Cached", result.Projects[0].Name)

	state, dbErr := db.GetSyncState(database, "projects")
	require.NoError(t, dbErr)
	assert.Equal(t, models.SyncError, state.Status)
	require.NotNil(t, state.ErrorMessage)
}

func TestRunTriggerFailureFallsBack(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	require.NoError(t, db.SaveAllProjects(database, []models.Project{cachedProject(2, "Cached")}))

	source := &fakeSource{triggerErr: errors.New("gripp unreachable")}
	orch := NewOrchestrator(database, source, time.Millisecond)

	result, err := orch.Run(context.Background(), false)
	require.Error(t, err)

	assert.Equal(t, models.SyncError, result.State)
	assert.True(t, result.Stale)
	require.Len(t, result.Projects, 1)
	assert.Contains(t, result.Error, "gripp unreachable")
}

func TestRunFetchFailurePreservesCache(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	require.NoError(t, db.SaveAllProjects(database, []models.Project{cachedProject(3, "Cached")}))

	source := &fakeSource{fetchErr: errors.New("timeout")}
	orch := NewOrchestrator(database, source, time.Millisecond)

	_, err := orch.Run(context.Background(), false)
	require.Error(t, err)

	projects, dbErr := db.GetAllProjects(database)
	require.NoError(t, dbErr)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(3), projects[0].ID)
}

func TestRunClearFirst(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	require.NoError(t, db.SaveAllProjects(database, []models.Project{cachedProject(1, "Old")}))
	require.NoError(t, db.SetCacheItem(database, "employees", []byte("[]")))

	source := &fakeSource{projects: []models.Project{cachedProject(5, "Fresh")}}
	orch := NewOrchestrator(database, source, time.Millisecond)

	result, err := orch.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	entry, dbErr := db.GetCacheItem(database, "employees")
	require.NoError(t, dbErr)
	assert.Nil(t, entry, "cache entries cleared when clearFirst is set")
}

func TestConcurrentRunsAreRejected(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	block := make(chan struct{})
	entered := make(chan struct{})
	source := &fakeSource{triggerBlock: block, triggerEntered: entered}
	orch := NewOrchestrator(database, source, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.Run(context.Background(), false)
	}()

	// Wait until the first run is inside TriggerSync.
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first run never reached TriggerSync")
	}

	_, err := orch.Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")

	close(block)
	<-done
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	broker := NewBroker()

	a, cancelA := broker.Subscribe()
	b, cancelB := broker.Subscribe()
	defer cancelA()

	broker.Publish(Event{RunID: "r1", State: models.SyncLoading})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, "r1", e.RunID)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	// After cancel, no further delivery and no panic on publish.
	cancelB()
	broker.Publish(Event{RunID: "r2", State: models.SyncComplete})

	select {
	case e := <-a:
		assert.Equal(t, "r2", e.RunID)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive event")
	}
}
