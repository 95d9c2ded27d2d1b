// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks per-endpoint sync status, timestamps, and error messages
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState represents the sync state for a Gripp endpoint.
type SyncState struct {
	Endpoint     string
	LastSyncTime *time.Time
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetSyncState retrieves the sync state for an endpoint.
func GetSyncState(db *sql.DB, endpoint string) (*SyncState, error) {
	var state SyncState
	var lastSyncTime sql.NullTime
	var errorMessage sql.NullString

	err := db.QueryRow(`
		SELECT endpoint, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE endpoint = ?
	`, endpoint).Scan(
		&state.Endpoint,
		&lastSyncTime,
		&state.Status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	if errorMessage.Valid {
		state.ErrorMessage = &errorMessage.String
	}

	return &state, nil
}

// UpdateSyncStatus updates the sync status for an endpoint.
func UpdateSyncStatus(db *sql.DB, endpoint, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_state (endpoint, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(endpoint) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, endpoint, status, errorMsgVal)

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// UpdateSyncTime marks an endpoint as successfully synced now, clearing any
// previous error.
func UpdateSyncTime(db *sql.DB, endpoint string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (endpoint, last_sync_time, status, created_at, updated_at)
		VALUES (?, CURRENT_TIMESTAMP, 'complete', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(endpoint) DO UPDATE SET
			last_sync_time = CURRENT_TIMESTAMP,
			status = 'complete',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, endpoint)

	if err != nil {
		return fmt.Errorf("failed to update sync time: %w", err)
	}

	return nil
}

// ListSyncStates returns the sync state for every known endpoint.
func ListSyncStates(db *sql.DB) ([]SyncState, error) {
	rows, err := db.Query(`
		SELECT endpoint, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		ORDER BY endpoint
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []SyncState
	for rows.Next() {
		var state SyncState
		var lastSyncTime sql.NullTime
		var errorMessage sql.NullString

		if err := rows.Scan(&state.Endpoint, &lastSyncTime, &state.Status, &errorMessage, &state.CreatedAt, &state.UpdatedAt); err != nil {
			return nil, err
		}
		if lastSyncTime.Valid {
			state.LastSyncTime = &lastSyncTime.Time
		}
		if errorMessage.Valid {
			state.ErrorMessage = &errorMessage.String
		}
		states = append(states, state)
	}

	return states, rows.Err()
}
