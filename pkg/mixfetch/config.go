package mixfetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/config"
	"github.com/nymtech/nym-sub006/internal/mime"
	"github.com/nymtech/nym-sub006/internal/modules"
	"github.com/nymtech/nym-sub006/internal/reconstruct"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

type (
	SetupOptions  = types.SetupOptions
	RequestArgs   = types.RequestArgs
	Headers       = types.Headers
	HeaderField   = types.HeaderField
	BodyConfigMap = types.BodyConfigMap
	FormField     = types.FormField
	Response      = reconstruct.Response

	// Source supplies a module image
	Source = modules.Source
)

// Bytes returns a Source serving an in-memory module image
func Bytes(label string, data []byte) Source {
	return modules.BytesSource{Label: label, Data: data}
}

// Config configures a Client
type Config struct {
	// PrimaryModule and SecondaryModule locate the module images as a
	// path, file:// URL or http(s) URL. Primary and Secondary take
	// precedence when set. Unused by Dial.
	PrimaryModule   string
	SecondaryModule string
	Primary         Source
	Secondary       Source

	LoadTimeout   time.Duration
	BridgeTimeout time.Duration
	EnableConsole bool
	BlobTTL       time.Duration

	// BlobBaseURL is the HTTP base of a remote sandbox host. Dial derives
	// it from the websocket URL when empty.
	BlobBaseURL string

	// RequestsPerSecond limits fetches; zero means unlimited
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures consecutive session failures open the circuit for
	// BreakerTimeout
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// FromConfig builds a client configuration from environment configuration
func FromConfig(cfg *config.Config) Config {
	return Config{
		PrimaryModule:     cfg.Sandbox.PrimaryModule,
		SecondaryModule:   cfg.Sandbox.SecondaryModule,
		LoadTimeout:       cfg.Sandbox.LoadTimeout,
		BridgeTimeout:     cfg.Sandbox.BridgeTimeout,
		EnableConsole:     cfg.Sandbox.ConsoleEnabled,
		BlobTTL:           cfg.Blobs.TTL,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
}

// SetupFromConfig returns the session options configured in cfg,
// including the decode rule file when one is named
func SetupFromConfig(cfg *config.Config) (SetupOptions, error) {
	opts := SetupOptions{
		PreferredGateway: cfg.Session.PreferredGateway,
		ForceTLS:         cfg.Session.ForceTLS,
		RequestTimeout:   cfg.Session.RequestTimeout,
	}
	if cfg.Session.RulesFile != "" {
		rules, err := mime.LoadConfigFile(cfg.Session.RulesFile)
		if err != nil {
			return SetupOptions{}, err
		}
		opts.ResponseBodyConfigMap = &rules
	}
	return opts, nil
}
