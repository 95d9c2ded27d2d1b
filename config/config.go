// ABOUTME: Environment-based configuration loading
// ABOUTME: Reads .env plus process env for Gripp credentials, ports, and sync tuning
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	defaultPort         = 3000
	defaultSyncWait     = 3 * time.Second
	defaultRequestDelay = 600 * time.Millisecond
	defaultCacheTTL     = 15 * time.Minute
)

type Config struct {
	GrippAPIURL  string
	GrippAPIKey  string
	Port         int
	DBPath       string
	SyncWait     time.Duration
	RequestDelay time.Duration
	CacheTTL     time.Duration
}

// Load reads configuration from an optional .env file and the process
// environment. Environment variables win over .env values.
func Load() (*Config, error) {
	// Missing .env is fine; env vars alone are a valid setup.
	_ = godotenv.Load()

	cfg := &Config{
		GrippAPIURL:  os.Getenv("GRIPP_API_URL"),
		GrippAPIKey:  os.Getenv("GRIPP_API_KEY"),
		Port:         defaultPort,
		DBPath:       DefaultDatabasePath(),
		SyncWait:     defaultSyncWait,
		RequestDelay: defaultRequestDelay,
		CacheTTL:     defaultCacheTTL,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Port = p
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.DBPath = path
	}

	if wait := os.Getenv("SYNC_WAIT_SECONDS"); wait != "" {
		seconds, err := strconv.Atoi(wait)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_WAIT_SECONDS %q: %w", wait, err)
		}
		cfg.SyncWait = time.Duration(seconds) * time.Second
	}

	if delay := os.Getenv("GRIPP_REQUEST_DELAY_MS"); delay != "" {
		ms, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid GRIPP_REQUEST_DELAY_MS %q: %w", delay, err)
		}
		cfg.RequestDelay = time.Duration(ms) * time.Millisecond
	}

	if ttl := os.Getenv("CACHE_TTL_MINUTES"); ttl != "" {
		minutes, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL_MINUTES %q: %w", ttl, err)
		}
		cfg.CacheTTL = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

// RequireGripp validates that the Gripp credentials are present. Commands
// that only read the local cache don't need them.
func (c *Config) RequireGripp() error {
	if c.GrippAPIURL == "" {
		return fmt.Errorf("GRIPP_API_URL is not set")
	}
	if c.GrippAPIKey == "" {
		return fmt.Errorf("GRIPP_API_KEY is not set")
	}
	return nil
}

// DefaultDatabasePath returns the XDG data location for the cache database.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "begripp", "begripp.db")
}
