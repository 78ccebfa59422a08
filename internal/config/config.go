// Package config loads questd's YAML configuration and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/database"
	"github.com/fitnessquest/server/internal/namefilter"
)

// Config holds everything questd reads at startup.
type Config struct {
	ListenAddr  string            `yaml:"listen_addr" env:"QUEST_LISTEN_ADDR"`
	Store       string            `yaml:"store" env:"QUEST_STORE"`
	Rules       combat.Rules      `yaml:"rules"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Database    database.Config   `yaml:"database"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Names       namefilter.Config `yaml:"names"`
}

// Store backends
const (
	StoreMemory   = "memory"
	StoreDatabase = "database"
)

// RateLimitConfig bounds how many rejected commands a client may send
// before it is locked out.
type RateLimitConfig struct {
	// MaxRejections is the number of rejected commands before lockout.
	MaxRejections int `yaml:"max_rejections"`

	// LockoutSeconds is the initial lockout duration in seconds.
	LockoutSeconds int `yaml:"lockout_seconds"`

	// MaxLockoutSeconds is the maximum lockout duration (for exponential backoff).
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`

	// CommandsPerWindow caps the commands one connection may send within
	// WindowSeconds. 0 disables the cap.
	CommandsPerWindow int `yaml:"commands_per_window"`
	WindowSeconds     int `yaml:"window_seconds"`
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent connections allowed from a single IP address.
	// 0 means unlimited (not recommended).
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent connections to the server.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// WriteTimeout bounds each event write to a subscriber.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// SendBuffer is the number of events queued per subscriber before
	// further events are dropped.
	SendBuffer int `yaml:"send_buffer"`
}

// SimulationConfig holds balance simulator defaults.
type SimulationConfig struct {
	Days    int   `yaml:"days" env:"QUEST_SIM_DAYS"`
	Runs    int   `yaml:"runs" env:"QUEST_SIM_RUNS"`
	Workers int   `yaml:"workers" env:"QUEST_SIM_WORKERS"`
	Seed    int64 `yaml:"seed" env:"QUEST_SIM_SEED"`
}

// CatalogConfig names the data files loaded at startup. Empty paths fall
// back to the built-in tables.
type CatalogConfig struct {
	Monsters   string `yaml:"monsters" env:"QUEST_MONSTERS_FILE"`
	Archetypes string `yaml:"archetypes" env:"QUEST_ARCHETYPES_FILE"`
	Parties    string `yaml:"parties" env:"QUEST_PARTIES_FILE"`
}

// DefaultConfig returns a Config with secure defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8080",
		Store:      StoreDatabase,
		Rules:      combat.DefaultRules(),
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 4096,
			WriteTimeout:   5 * time.Second,
			SendBuffer:     32,
		},
		Connections: ConnectionsConfig{
			MaxPerIP: 5,
			MaxTotal: 500,
		},
		RateLimit: RateLimitConfig{
			MaxRejections:     20,
			LockoutSeconds:    30,
			MaxLockoutSeconds: 300,
			CommandsPerWindow: 30,
			WindowSeconds:     10,
		},
		Database: database.DefaultConfig("data/quest.db"),
		Simulation: SimulationConfig{
			Days:    90,
			Runs:    20,
			Workers: 4,
			Seed:    1,
		},
		Names: namefilter.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(config); err != nil {
		return config, fmt.Errorf("config env overrides: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate rejects configurations questd cannot start with.
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	switch c.Store {
	case StoreMemory, StoreDatabase:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreMemory, StoreDatabase, c.Store)
	}
	switch database.DialectType(c.Database.Driver) {
	case database.DialectSQLite, database.DialectPostgres:
	default:
		return fmt.Errorf("database driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == string(database.DialectSQLite) && c.Store == StoreDatabase && c.Database.SQLitePath == "" {
		return errors.New("database sqlite_path is required")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max_message_size must be positive, got %d", c.WebSocket.MaxMessageSize)
	}
	if c.Simulation.Days < 1 || c.Simulation.Runs < 1 || c.Simulation.Workers < 1 {
		return fmt.Errorf("simulation days, runs and workers must be positive")
	}
	return nil
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
