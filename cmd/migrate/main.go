// ABOUTME: Migration utility for transitioning legacy dashboard databases to the document cache schema.
// ABOUTME: Provides dry-run and backup capabilities for safe schema migration.

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/flipmoo/begripp-sub005/db"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "", "Path to database file (required)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	force := flag.Bool("force", false, "Force migration even if data loss may occur")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}

	if err := migrate(*dbPath, *dryRun, *backup, *force); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dbPath string, dryRun, createBackup, force bool) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	if createBackup && !dryRun {
		backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
		log.Printf("Creating backup: %s", backupPath)

		input, err := os.ReadFile(dbPath)
		if err != nil {
			return fmt.Errorf("failed to read database: %w", err)
		}

		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		log.Printf("Backup created successfully")
	}

	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	tables, err := getCurrentTables(database)
	if err != nil {
		return fmt.Errorf("failed to get current tables: %w", err)
	}

	log.Printf("Current tables: %v", tables)

	hasLegacyTables := false
	for _, table := range tables {
		if isLegacyTable(table) {
			hasLegacyTables = true
			break
		}
	}

	hasNewTables := false
	for _, table := range tables {
		if table == "projects" || table == "cache" {
			hasNewTables = true
			break
		}
	}

	if hasLegacyTables {
		log.Printf("Found legacy tables (active_projects, project_lines, etc.)")

		if !force {
			log.Printf("WARNING: Migration will drop legacy tables")
			log.Printf("Use -force flag to proceed with migration")
			log.Printf("Dropped data is re-fetched from Gripp on the next sync")
			return fmt.Errorf("migration requires -force flag")
		}
	}

	if dryRun {
		log.Printf("[DRY RUN] Would perform the following actions:")
		if hasLegacyTables {
			log.Printf("[DRY RUN] - Drop legacy tables: active_projects, project_lines, employees_cache, invoices_cache, sync_log")
		}
		if !hasNewTables {
			log.Printf("[DRY RUN] - Create document cache tables: projects, cache, sync_state")
			log.Printf("[DRY RUN] - Create indexes for performance")
		} else {
			log.Printf("[DRY RUN] - Document cache tables already exist")
		}
		return nil
	}

	if hasLegacyTables {
		log.Printf("Dropping legacy tables...")
		if err := dropLegacyTables(database); err != nil {
			return fmt.Errorf("failed to drop legacy tables: %w", err)
		}
		log.Printf("Legacy tables dropped")
	}

	if !hasNewTables {
		log.Printf("Creating document cache schema...")
		if err := db.InitSchema(database); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		log.Printf("Document cache schema created successfully")
	} else {
		log.Printf("Document cache tables already exist, skipping creation")
	}

	return nil
}

func getCurrentTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func isLegacyTable(name string) bool {
	legacyTables := []string{
		"active_projects", "project_lines", "project_tags",
		"employees_cache", "invoices_cache", "absence_cache",
		"sync_log",
	}

	for _, legacy := range legacyTables {
		if name == legacy {
			return true
		}
	}

	return false
}

func dropLegacyTables(db *sql.DB) error {
	legacyTables := []string{
		"project_tags", "project_lines", "active_projects",
		"absence_cache", "invoices_cache", "employees_cache",
		"sync_log",
	}

	for _, table := range legacyTables {
		_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		if err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Printf("Dropped table: %s", table)
	}

	return nil
}
