// ABOUTME: Sync run orchestration with an explicit state machine
// ABOUTME: Runs trigger, wait, clear, fetch, and cache-replace steps with fallback to cached data
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/models"
)

const endpointProjects = "projects"

// Source provides the project records a sync run needs. The Gripp-backed
// implementation lives in this package; tests substitute their own.
type Source interface {
	// TriggerSync asks the remote side to refresh its data.
	TriggerSync(ctx context.Context) error
	// FetchProjects returns all normalized projects. With fresh set, any
	// intermediate HTTP caches are bypassed.
	FetchProjects(ctx context.Context, fresh bool) ([]models.Project, error)
}

// RunResult is the outcome of one sync run. After a failed run, Projects
// holds whatever was already cached so callers are never left empty-handed,
// and Stale marks it as such.
type RunResult struct {
	RunID    string           `json:"run_id"`
	State    string           `json:"state"`
	Count    int              `json:"count"`
	Stale    bool             `json:"stale"`
	Error    string           `json:"error,omitempty"`
	Projects []models.Project `json:"-"`
}

// Orchestrator drives full sync runs through the
// idle -> loading -> syncing -> complete | error state machine.
type Orchestrator struct {
	db     *sql.DB
	source Source
	wait   time.Duration
	broker *Broker

	mu    sync.Mutex
	runMu sync.Mutex
	state string
	runID string
}

func NewOrchestrator(database *sql.DB, source Source, wait time.Duration) *Orchestrator {
	return &Orchestrator{
		db:     database,
		source: source,
		wait:   wait,
		broker: NewBroker(),
		state:  models.SyncIdle,
	}
}

// Broker exposes the event stream for this orchestrator.
func (o *Orchestrator) Broker() *Broker {
	return o.broker
}

// State returns the current run state.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run performs a full sync. Steps: trigger the remote refresh, wait for
// server-side processing, optionally clear the local cache, fetch all
// records fresh, and replace the cache in one transaction. Any failure
// moves the run to the error state and falls back to cached data.
func (o *Orchestrator) Run(ctx context.Context, clearFirst bool) (*RunResult, error) {
	if !o.runMu.TryLock() {
		return nil, fmt.Errorf("a sync run is already in progress")
	}
	defer o.runMu.Unlock()

	runID := newRunID()
	o.transition(runID, models.SyncLoading, "start", "sync run started")

	if err := db.UpdateSyncStatus(o.db, endpointProjects, models.SyncSyncing, nil); err != nil {
		return o.fail(runID, fmt.Errorf("failed to record sync start: %w", err))
	}

	// Step 1: trigger the remote refresh.
	if err := o.source.TriggerSync(ctx); err != nil {
		return o.fail(runID, fmt.Errorf("failed to trigger remote sync: %w", err))
	}

	// Step 2: give the server time to process before re-fetching.
	if err := o.waitForProcessing(ctx); err != nil {
		return o.fail(runID, fmt.Errorf("sync wait interrupted: %w", err))
	}

	o.transition(runID, models.SyncSyncing, "fetch", "fetching projects")

	// Step 3: optional cache clear.
	if clearFirst {
		if err := db.ClearProjects(o.db); err != nil {
			return o.fail(runID, fmt.Errorf("failed to clear project cache: %w", err))
		}
		if err := db.ClearCache(o.db); err != nil {
			return o.fail(runID, fmt.Errorf("failed to clear cache entries: %w", err))
		}
	}

	// Step 4: fetch everything fresh, bypassing intermediate caches.
	projects, err := o.source.FetchProjects(ctx, true)
	if err != nil {
		return o.fail(runID, fmt.Errorf("failed to fetch projects: %w", err))
	}

	// Step 5: replace the local cache wholesale.
	if err := db.SaveAllProjects(o.db, projects); err != nil {
		return o.fail(runID, fmt.Errorf("failed to replace project cache: %w", err))
	}

	if err := db.UpdateSyncTime(o.db, endpointProjects); err != nil {
		log.Printf("Warning: failed to record sync time: %v", err)
	}

	o.transition(runID, models.SyncComplete, "complete", fmt.Sprintf("synced %d projects", len(projects)))

	return &RunResult{
		RunID:    runID,
		State:    models.SyncComplete,
		Count:    len(projects),
		Projects: projects,
	}, nil
}

func (o *Orchestrator) waitForProcessing(ctx context.Context) error {
	if o.wait <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(o.wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records the error, transitions to the error state, and loads
// whatever is already cached as a best-effort fallback. The cache itself is
// left untouched.
func (o *Orchestrator) fail(runID string, err error) (*RunResult, error) {
	msg := err.Error()
	if dbErr := db.UpdateSyncStatus(o.db, endpointProjects, models.SyncError, &msg); dbErr != nil {
		log.Printf("Warning: failed to record sync error: %v", dbErr)
	}
	o.transition(runID, models.SyncError, "error", msg)

	result := &RunResult{
		RunID: runID,
		State: models.SyncError,
		Error: msg,
		Stale: true,
	}
	if cached, cacheErr := db.GetAllProjects(o.db); cacheErr == nil {
		result.Projects = cached
		result.Count = len(cached)
	} else {
		log.Printf("Warning: fallback load of cached projects failed: %v", cacheErr)
	}

	return result, err
}

func (o *Orchestrator) transition(runID, state, step, message string) {
	o.mu.Lock()
	o.state = state
	o.runID = runID
	o.mu.Unlock()

	o.broker.Publish(Event{
		RunID:   runID,
		State:   state,
		Step:    step,
		Message: message,
	})
}

func newRunID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
