// ABOUTME: Entry point for the begripp dashboard service and CLI
// ABOUTME: Routes to the API server, one-shot sync, and cache maintenance commands
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/flipmoo/begripp-sub005/config"
	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/gripp"
	"github.com/flipmoo/begripp-sub005/sync"
	"github.com/flipmoo/begripp-sub005/web"
)

const version = "0.2.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/begripp/begripp.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("begripp version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *initOnly {
		log.Printf("Database initialized at %s", cfg.DBPath)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		if err := serveCommand(cfg, database); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	case "sync":
		if err := syncCommand(cfg, database, commandArgs); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}

	case "cache":
		if len(commandArgs) == 0 || commandArgs[0] != "clear" {
			fmt.Println("Error: cache requires the 'clear' subcommand")
			printUsage()
			os.Exit(1)
		}
		if err := cacheClearCommand(database); err != nil {
			log.Fatalf("Cache clear failed: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func serveCommand(cfg *config.Config, database *sql.DB) error {
	if err := cfg.RequireGripp(); err != nil {
		return err
	}

	client := gripp.NewClient(cfg.GrippAPIURL, cfg.GrippAPIKey,
		gripp.WithMinDelay(cfg.RequestDelay))
	defer client.Close()

	source := sync.NewGrippSource(client)
	orch := sync.NewOrchestrator(database, source, cfg.SyncWait)
	ondemand := sync.NewOnDemand(database, client, cfg.CacheTTL)

	server := web.NewServer(database, orch, ondemand)
	return server.Start(cfg.Port)
}

func syncCommand(cfg *config.Config, database *sql.DB, args []string) error {
	syncFlags := flag.NewFlagSet("sync", flag.ExitOnError)
	clearFirst := syncFlags.Bool("clear", false, "Clear the project cache before syncing")
	if err := syncFlags.Parse(args); err != nil {
		return err
	}

	if err := cfg.RequireGripp(); err != nil {
		return err
	}

	client := gripp.NewClient(cfg.GrippAPIURL, cfg.GrippAPIKey,
		gripp.WithMinDelay(cfg.RequestDelay))
	defer client.Close()

	source := sync.NewGrippSource(client)
	orch := sync.NewOrchestrator(database, source, cfg.SyncWait)

	events, cancel := orch.Broker().Subscribe()
	defer cancel()
	go func() {
		for event := range events {
			if event.Message != "" {
				log.Printf("[%s] %s: %s", event.State, event.Step, event.Message)
			} else {
				log.Printf("[%s] %s", event.State, event.Step)
			}
		}
	}()

	result, err := orch.Run(context.Background(), *clearFirst)
	if err != nil {
		return err
	}

	fmt.Printf("Sync %s: %d projects cached (run %s)\n", result.State, result.Count, result.RunID)
	return nil
}

func cacheClearCommand(database *sql.DB) error {
	if err := db.ClearProjects(database); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}
	if err := db.ClearCache(database); err != nil {
		return fmt.Errorf("failed to clear lookup cache: %w", err)
	}
	fmt.Println("Cache cleared")
	return nil
}

func printUsage() {
	fmt.Println(`begripp - Gripp project dashboard sync service

Usage:
  begripp [flags] <command>

Commands:
  serve          Start the dashboard API server
  sync [-clear]  Run a full project sync once
  cache clear    Empty the local project and lookup caches

Flags:
  -version       Show version and exit
  -db-path PATH  Override the database location
  -init          Initialize the database and exit

Environment:
  GRIPP_API_URL, GRIPP_API_KEY   Gripp API endpoint and token (required for serve/sync)
  PORT                           API server port (default 3000)
  DB_PATH                        Database path override
  SYNC_WAIT_SECONDS              Wait between sync trigger and re-fetch (default 3)
  GRIPP_REQUEST_DELAY_MS         Minimum delay between Gripp requests (default 600)
  CACHE_TTL_MINUTES              TTL for on-demand lookups (default 15)`)
}
