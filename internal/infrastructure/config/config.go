package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge configuration
type Config struct {
	Sandbox   SandboxConfig
	Session   SessionConfig
	Transport TransportConfig
	Blobs     BlobConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// SandboxConfig locates the two module images and bounds bring-up
type SandboxConfig struct {
	PrimaryModule   string        `envconfig:"MIXFETCH_PRIMARY_MODULE"`
	SecondaryModule string        `envconfig:"MIXFETCH_SECONDARY_MODULE"`
	LoadTimeout     time.Duration `envconfig:"MIXFETCH_LOAD_TIMEOUT" default:"30s"`
	BridgeTimeout   time.Duration `envconfig:"MIXFETCH_BRIDGE_TIMEOUT" default:"5s"`
	ConsoleEnabled  bool          `envconfig:"MIXFETCH_CONSOLE" default:"true"`
}

// SessionConfig holds defaults for setupMixFetch
type SessionConfig struct {
	PreferredGateway string        `envconfig:"MIXFETCH_GATEWAY"`
	ForceTLS         bool          `envconfig:"MIXFETCH_FORCE_TLS" default:"false"`
	RequestTimeout   time.Duration `envconfig:"MIXFETCH_REQUEST_TIMEOUT" default:"60s"`
	RulesFile        string        `envconfig:"MIXFETCH_RULES_FILE"`
}

// TransportConfig selects where the sandbox runs. An empty Remote means an
// in-process sandbox; otherwise Remote is the websocket URL of a sandbox host.
type TransportConfig struct {
	Remote       string `envconfig:"MIXFETCH_REMOTE"`
	ListenAddr   string `envconfig:"MIXFETCH_LISTEN" default:"127.0.0.1:8686"`
	AllowOrigins string `envconfig:"MIXFETCH_ALLOW_ORIGINS" default:"*"`
}

// BlobConfig bounds how long staged blobs wait to be dereferenced
type BlobConfig struct {
	TTL           time.Duration `envconfig:"MIXFETCH_BLOB_TTL" default:"2m"`
	SweepInterval time.Duration `envconfig:"MIXFETCH_BLOB_SWEEP" default:"30s"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig limits mixFetch calls issued by one client; zero means unlimited
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"MIXFETCH_RATE_LIMIT_RPS" default:"0"`
	Burst             int     `envconfig:"MIXFETCH_RATE_LIMIT_BURST" default:"1"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			LoadTimeout:    30 * time.Second,
			BridgeTimeout:  5 * time.Second,
			ConsoleEnabled: true,
		},
		Session: SessionConfig{
			RequestTimeout: 60 * time.Second,
		},
		Transport: TransportConfig{
			ListenAddr:   "127.0.0.1:8686",
			AllowOrigins: "*",
		},
		Blobs: BlobConfig{
			TTL:           2 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             1,
		},
	}
}

// Validate reports configuration that cannot bring up a sandbox
func (c *Config) Validate() error {
	if c.Transport.Remote != "" {
		return nil
	}
	if c.Sandbox.PrimaryModule == "" {
		return fmt.Errorf("primary module source is required (MIXFETCH_PRIMARY_MODULE)")
	}
	if c.Sandbox.SecondaryModule == "" {
		return fmt.Errorf("secondary module source is required (MIXFETCH_SECONDARY_MODULE)")
	}
	return nil
}
