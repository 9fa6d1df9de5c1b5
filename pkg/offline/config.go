package offline

import (
	"fmt"
	"strings"
)

// Defaults matching the CivicSense web client.
const (
	// SyncTagReports is the replay signal for queued report submissions.
	SyncTagReports = "background-sync-reports"

	DefaultStaticCache = "civicsense-static-v1"
	DefaultAPICache    = "civicsense-api-v1"
	DefaultAPIPrefix   = "/api/"
	DefaultReportsPath = "/api/v1/reports"

	// DefaultMaxEntryBytes caps the body size of a cached response.
	DefaultMaxEntryBytes = 10 << 20

	DefaultOfflineMessage = "You are offline. Reports will sync when connection is restored."
	DefaultQueuedMessage  = "You are offline. Your report was saved and will be submitted when connection is restored."
)

// Config holds the controller configuration.
type Config struct {
	// StaticCache and APICache are the current generation tags. Any other
	// cache found on activation is deleted.
	StaticCache string `yaml:"static_cache"`
	APICache    string `yaml:"api_cache"`

	// ShellAssets are precached at install, in order.
	ShellAssets []string `yaml:"shell_assets"`

	// Scope is the base URL shell assets are fetched from
	// (e.g. "http://localhost:8080").
	Scope string `yaml:"scope"`

	// APIPrefix routes requests to the network-first API policy.
	APIPrefix string `yaml:"api_prefix"`

	// ReportsPath identifies the reports endpoint, for the synthetic offline
	// listing and for selecting pending submissions.
	ReportsPath string `yaml:"reports_path"`

	// SyncTag is the replay signal name.
	SyncTag string `yaml:"sync_tag"`

	// OfflineMessage is returned in the synthetic reports listing.
	OfflineMessage string `yaml:"offline_message"`

	// QueueOfflineReports stores report submissions that fail at the
	// network layer for later replay.
	QueueOfflineReports bool `yaml:"queue_offline_reports"`

	// MaxEntryBytes is the largest response body written to a cache.
	// Larger responses are streamed through uncached. 0 disables the limit.
	MaxEntryBytes int64 `yaml:"max_entry_bytes"`
}

// DefaultConfig returns the configuration of the CivicSense web client.
func DefaultConfig() Config {
	return Config{
		StaticCache:         DefaultStaticCache,
		APICache:            DefaultAPICache,
		ShellAssets:         []string{"/", "/index.html", "/manifest.json", "/favicon.ico"},
		Scope:               "http://localhost:8080",
		APIPrefix:           DefaultAPIPrefix,
		ReportsPath:         DefaultReportsPath,
		SyncTag:             SyncTagReports,
		OfflineMessage:      DefaultOfflineMessage,
		QueueOfflineReports: true,
		MaxEntryBytes:       DefaultMaxEntryBytes,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.StaticCache == "" || c.APICache == "" {
		return fmt.Errorf("static_cache and api_cache are required")
	}
	if c.StaticCache == c.APICache {
		return fmt.Errorf("static_cache and api_cache must differ (both %q)", c.StaticCache)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("api_prefix must start with / (got %q)", c.APIPrefix)
	}
	if c.ReportsPath == "" {
		return fmt.Errorf("reports_path is required")
	}
	if c.SyncTag == "" {
		return fmt.Errorf("sync_tag is required")
	}
	for i, p := range c.ShellAssets {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("shell_assets[%d] must start with / (got %q)", i, p)
		}
	}
	if c.MaxEntryBytes < 0 {
		return fmt.Errorf("max_entry_bytes cannot be negative (got %d)", c.MaxEntryBytes)
	}
	if len(c.ShellAssets) > 0 && c.Scope == "" {
		return fmt.Errorf("scope is required to precache shell assets")
	}
	return nil
}
