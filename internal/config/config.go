// Package config loads the gateway configuration: defaults, then an optional
// YAML file, then CIVICSENSE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/logging"
	"github.com/Sternrassler/civicsense-gateway/pkg/offline"
	"github.com/Sternrassler/civicsense-gateway/pkg/precache"
	"github.com/Sternrassler/civicsense-gateway/pkg/upstream"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendLevelDB = "leveldb"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Origin   OriginConfig   `yaml:"origin"`
	Storage  StorageConfig  `yaml:"storage"`
	Precache PrecacheConfig `yaml:"precache"`
	Offline  offline.Config `yaml:"offline"`
	Log      logging.Config `yaml:"log"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type OriginConfig struct {
	URL       string               `yaml:"url"`
	UserAgent string               `yaml:"user_agent"`
	Timeout   time.Duration        `yaml:"timeout"`
	Retry     upstream.RetryConfig `yaml:"retry"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	LevelDB struct {
		Path string `yaml:"path"`
	} `yaml:"leveldb"`
}

type PrecacheConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Origin: OriginConfig{
			URL:       "http://localhost:3000",
			UserAgent: upstream.DefaultConfig("").UserAgent,
			Retry:     upstream.DefaultRetryConfig(),
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Offline: offline.DefaultConfig(),
		Log:     logging.DefaultConfig(),
	}
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.LevelDB.Path = "civicsense-cache"

	pc := precache.DefaultConfig()
	cfg.Precache = PrecacheConfig{MaxConcurrency: pc.MaxConcurrency, Timeout: pc.Timeout}
	return cfg
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Listen = getEnv("CIVICSENSE_LISTEN", c.Server.Listen)
	c.Origin.URL = getEnv("CIVICSENSE_ORIGIN", c.Origin.URL)
	c.Origin.UserAgent = getEnv("CIVICSENSE_USER_AGENT", c.Origin.UserAgent)
	c.Storage.Backend = getEnv("CIVICSENSE_STORAGE", c.Storage.Backend)
	c.Storage.Redis.Addr = getEnv("CIVICSENSE_REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("CIVICSENSE_REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.LevelDB.Path = getEnv("CIVICSENSE_LEVELDB_PATH", c.Storage.LevelDB.Path)
	c.Offline.Scope = getEnv("CIVICSENSE_SCOPE", c.Offline.Scope)
	c.Log.Level = logging.LogLevel(getEnv("CIVICSENSE_LOG_LEVEL", string(c.Log.Level)))

	if v := os.Getenv("CIVICSENSE_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CIVICSENSE_REDIS_DB: %w", err)
		}
		c.Storage.Redis.DB = db
	}
	if v := os.Getenv("CIVICSENSE_ORIGIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CIVICSENSE_ORIGIN_TIMEOUT: %w", err)
		}
		c.Origin.Timeout = d
	}
	if v := os.Getenv("CIVICSENSE_MAX_ENTRY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CIVICSENSE_MAX_ENTRY_BYTES: %w", err)
		}
		c.Offline.MaxEntryBytes = n
	}
	if v := os.Getenv("CIVICSENSE_LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CIVICSENSE_LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = pretty
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	return nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Origin.URL == "" {
		return fmt.Errorf("origin.url is required")
	}
	if c.Origin.Timeout < 0 {
		return fmt.Errorf("origin.timeout must be >= 0")
	}
	if c.Origin.Retry.MaxAttempts < 0 {
		return fmt.Errorf("origin.retry.max_attempts must be >= 0")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	case BackendLevelDB:
		if c.Storage.LevelDB.Path == "" {
			return fmt.Errorf("storage.leveldb.path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want memory, redis or leveldb)", c.Storage.Backend)
	}

	if err := c.Offline.Validate(); err != nil {
		return fmt.Errorf("offline: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// UpstreamConfig returns the origin client configuration.
func (c Config) UpstreamConfig() upstream.Config {
	cfg := upstream.DefaultConfig(c.Origin.URL)
	if c.Origin.UserAgent != "" {
		cfg.UserAgent = c.Origin.UserAgent
	}
	cfg.Timeout = c.Origin.Timeout
	cfg.Retry = c.Origin.Retry
	return cfg
}

// PrecacheFetcherConfig returns the install fetcher configuration.
func (c Config) PrecacheFetcherConfig() precache.Config {
	return precache.Config{
		MaxConcurrency: c.Precache.MaxConcurrency,
		Timeout:        c.Precache.Timeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
