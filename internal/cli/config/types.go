// Package config provides configuration management for the leaptable CLI.
package config

import "time"

// UIConfig holds configuration for the HTTP server.
type UIConfig struct {
	Port          int           `koanf:"port" validate:"min=1,max=65535"`
	SessionSecret string        `koanf:"session_secret" validate:"required,min=16"`
	SessionTTL    time.Duration `koanf:"session_ttl" validate:"min=0"`
	MaxSessions   int           `koanf:"max_sessions" validate:"min=0"`
	Watch         bool          `koanf:"watch"`
}

// Config holds all CLI configuration options.
type Config struct {
	DataDir        string   `koanf:"data_dir" validate:"required"`
	StatePath      string   `koanf:"state_path" validate:"required"`
	IdentityColumn string   `koanf:"identity_column" validate:"required"`
	PageSize       int      `koanf:"page_size" validate:"min=1,max=1000"`
	Verbose        bool     `koanf:"verbose"`
	OutputFormat   string   `koanf:"output" validate:"oneof=auto table json csv markdown"`
	ServerURL      string   `koanf:"server_url" validate:"omitempty,url"`
	Session        string   `koanf:"session"`
	UI             UIConfig `koanf:"ui"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultDataDir        = "data"
	DefaultStateFile      = ".leaptable/state.db"
	DefaultIdentityColumn = "number()"
	DefaultPageSize       = 10
	DefaultOutput         = "auto" // TTY=table, otherwise markdown
	DefaultPort           = 8765
	DefaultSessionTTL     = 30 * time.Minute
	DefaultMaxSessions    = 1000
	// DefaultSessionSecret is for local development only.
	DefaultSessionSecret = "leaptable-dev-secret-change-me" //nolint:gosec
)
