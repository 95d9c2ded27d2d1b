// ABOUTME: Project cache database operations
// ABOUTME: Handles whole-collection replacement on sync plus single-record upserts
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flipmoo/begripp-sub005/models"
)

// GetAllProjects returns every cached project, ordered by project number.
func GetAllProjects(db *sql.DB) ([]models.Project, error) {
	rows, err := db.Query(`
		SELECT data FROM projects
		ORDER BY number DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []models.Project
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var project models.Project
		if err := json.Unmarshal([]byte(data), &project); err != nil {
			return nil, fmt.Errorf("failed to decode cached project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

// GetProject returns one cached project by id, or nil when absent.
func GetProject(db *sql.DB, id int64) (*models.Project, error) {
	var data string
	err := db.QueryRow(`SELECT data FROM projects WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var project models.Project
	if err := json.Unmarshal([]byte(data), &project); err != nil {
		return nil, fmt.Errorf("failed to decode cached project: %w", err)
	}
	return &project, nil
}

// SaveAllProjects replaces the entire project collection: clear, then insert
// each record, all inside one transaction. Any failure rolls the whole
// replacement back, leaving the previous cache intact.
func SaveAllProjects(db *sql.DB, projects []models.Project) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}

	now := time.Now()
	stmt, err := tx.Prepare(`
		INSERT INTO projects (id, name, number, archived, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range projects {
		projects[i].UpdatedAt = now
		data, err := json.Marshal(projects[i])
		if err != nil {
			return fmt.Errorf("failed to encode project %d: %w", projects[i].ID, err)
		}
		if _, err := stmt.Exec(projects[i].ID, projects[i].Name, projects[i].Number, projects[i].Archived, string(data), now); err != nil {
			return fmt.Errorf("failed to insert project %d: %w", projects[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project replacement: %w", err)
	}
	return nil
}

// SaveProject upserts a single project by id.
func SaveProject(db *sql.DB, project *models.Project) error {
	project.UpdatedAt = time.Now()
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to encode project %d: %w", project.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO projects (id, name, number, archived, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			number = excluded.number,
			archived = excluded.archived,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, project.ID, project.Name, project.Number, project.Archived, string(data), project.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save project %d: %w", project.ID, err)
	}
	return nil
}

// ClearProjects empties the project cache.
func ClearProjects(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM projects`); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}
	return nil
}

// CountProjects returns the number of cached projects.
func CountProjects(db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
