package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/stagehand/pkg/api"
)

type (
	// Config holds configuration settings for the control plane
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Packs & Overrides
		PacksRoot     string
		OverridesPath string

		// Seed defaults applied to incoming scopes
		DefaultTenant string
		DefaultTeam   string

		// Stores
		SessionStore StoreConfig
		EventStore   StoreConfig

		// Runner event log
		EventLogLimit int

		ShutdownTimeout time.Duration
	}

	// Backend names a session/event store backend implementation
	Backend string

	// StoreConfig selects and configures a store backend
	StoreConfig struct {
		Backend       Backend
		Path          string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
	}
)

const (
	BackendMemory = Backend("memory")
	BackendFile   = Backend("file")
	BackendRedis  = Backend("redis")

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultPacksRoot     = "packs"
	DefaultOverridesPath = "config/overrides.json"

	DefaultSessionPath = ".data/sessions.json"
	DefaultEventPath   = ".data/events.json"

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisDB     = 0
	DefaultRedisPrefix = "stagehand"

	DefaultEventLogLimit = 1000
	MaxEventLogLimit     = 1_000_000

	DefaultShutdownTimeout = 10 * time.Second
)

var (
	ErrInvalidAPIPort = errors.New("invalid API port")
	ErrInvalidLogCap  = errors.New("event log limit must be positive")

	// ErrUnsupportedBackend is returned when a configured store backend has
	// no implementation. Startup fails rather than downgrading silently
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// API server, stores, and pack discovery
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:       DefaultAPIHost,
		APIPort:       DefaultAPIPort,
		LogLevel:      "info",
		PacksRoot:     DefaultPacksRoot,
		OverridesPath: DefaultOverridesPath,
		SessionStore: StoreConfig{
			Backend:     BackendFile,
			Path:        DefaultSessionPath,
			RedisAddr:   DefaultRedisAddr,
			RedisDB:     DefaultRedisDB,
			RedisPrefix: DefaultRedisPrefix,
		},
		EventStore: StoreConfig{
			Backend:     BackendMemory,
			Path:        DefaultEventPath,
			RedisAddr:   DefaultRedisAddr,
			RedisDB:     DefaultRedisDB,
			RedisPrefix: DefaultRedisPrefix,
		},
		EventLogLimit:   DefaultEventLogLimit,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.SessionStore, "SESSION")
	LoadStoreConfigFromEnv(&c.EventStore, "EVENT")

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if root := os.Getenv("PACKS_ROOT"); root != "" {
		c.PacksRoot = root
	}
	if path := os.Getenv("OVERRIDES_PATH"); path != "" {
		c.OverridesPath = path
	}
	if tenant := os.Getenv("DEFAULT_TENANT"); tenant != "" {
		c.DefaultTenant = tenant
	}
	if team := os.Getenv("DEFAULT_TEAM"); team != "" {
		c.DefaultTeam = team
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}

	return loadEnvInt(
		"EVENT_LOG_LIMIT", &c.EventLogLimit, 0, MaxEventLogLimit,
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.EventLogLimit <= 0 {
		return ErrInvalidLogCap
	}

	if err := c.SessionStore.Validate(); err != nil {
		return err
	}
	return c.EventStore.Validate()
}

// SeedScope fills an incoming scope's tenant and team from the process-wide
// defaults. The user field is never seeded
func (c *Config) SeedScope(s api.Scope) api.Scope {
	if s.Tenant == "" {
		s.Tenant = c.DefaultTenant
	}
	if s.Team == "" {
		s.Team = c.DefaultTeam
	}
	return s
}

// Validate checks that the store backend is one of the implemented names
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendFile, BackendRedis:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, s.Backend)
	}
}

// LoadStoreConfigFromEnv loads store configuration from environment
// variables with the given prefix (e.g., "SESSION" or "EVENT")
func LoadStoreConfigFromEnv(s *StoreConfig, prefix string) {
	if backend := os.Getenv(prefix + "_STORE_BACKEND"); backend != "" {
		s.Backend = Backend(backend)
	}
	if path := os.Getenv(prefix + "_STORE_PATH"); path != "" {
		s.Path = path
	}
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.RedisAddr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.RedisPassword = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			s.RedisDB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.RedisPrefix = envPrefix
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
