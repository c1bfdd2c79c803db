package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.Sandbox.LoadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.BridgeTimeout)
	assert.True(t, cfg.Sandbox.ConsoleEnabled)
	assert.Equal(t, 60*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, "127.0.0.1:8686", cfg.Transport.ListenAddr)
	assert.Empty(t, cfg.Transport.Remote)
	assert.Equal(t, 2*time.Minute, cfg.Blobs.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.LoadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.BridgeTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"MIXFETCH_PRIMARY_MODULE":   "/opt/mixfetch/primary.js",
		"MIXFETCH_SECONDARY_MODULE": "https://cdn.example/secondary.js",
		"MIXFETCH_LOAD_TIMEOUT":     "5s",
		"MIXFETCH_BRIDGE_TIMEOUT":   "750ms",
		"MIXFETCH_GATEWAY":          "gw-1",
		"MIXFETCH_REQUEST_TIMEOUT":  "90s",
		"MIXFETCH_REMOTE":           "ws://127.0.0.1:8686/rpc",
		"MIXFETCH_BLOB_TTL":         "10s",
		"MIXFETCH_RATE_LIMIT_RPS":   "2.5",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/mixfetch/primary.js", cfg.Sandbox.PrimaryModule)
	assert.Equal(t, "https://cdn.example/secondary.js", cfg.Sandbox.SecondaryModule)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.LoadTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Sandbox.BridgeTimeout)
	assert.Equal(t, "gw-1", cfg.Session.PreferredGateway)
	assert.Equal(t, 90*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, "ws://127.0.0.1:8686/rpc", cfg.Transport.Remote)
	assert.Equal(t, 10*time.Second, cfg.Blobs.TTL)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("MIXFETCH_LOAD_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 30*time.Second, cfg.Sandbox.LoadTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "missing modules",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "missing secondary",
			mutate: func(c *Config) {
				c.Sandbox.PrimaryModule = "primary.js"
			},
			wantErr: true,
		},
		{
			name: "both modules",
			mutate: func(c *Config) {
				c.Sandbox.PrimaryModule = "primary.js"
				c.Sandbox.SecondaryModule = "secondary.js"
			},
		},
		{
			name: "remote sandbox needs no modules",
			mutate: func(c *Config) {
				c.Transport.Remote = "ws://localhost:8686/rpc"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
