package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/blob"
	"github.com/nymtech/nym-sub006/internal/host"
	"github.com/nymtech/nym-sub006/internal/httpclient"
	"github.com/nymtech/nym-sub006/internal/infrastructure/config"
	"github.com/nymtech/nym-sub006/internal/infrastructure/logging"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/server"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
	"github.com/nymtech/nym-sub006/internal/mime"
	"github.com/nymtech/nym-sub006/internal/modules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override environment
	addr := flag.String("addr", cfg.Transport.ListenAddr, "Listen address")
	primary := flag.String("primary", cfg.Sandbox.PrimaryModule, "Primary module source (path or URL)")
	secondary := flag.String("secondary", cfg.Sandbox.SecondaryModule, "Secondary module source (path or URL)")
	rules := flag.String("rules", cfg.Session.RulesFile, "Decode rule file (yaml, toml or json)")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	cfg.Transport.ListenAddr = *addr
	cfg.Sandbox.PrimaryModule = *primary
	cfg.Sandbox.SecondaryModule = *secondary
	cfg.Session.RulesFile = *rules
	cfg.Logging.Development = *dev

	logger, err := logging.New(logging.FromEnv(cfg.Logging))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sandbox host failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	logger := log.Logger
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ruleSet *mime.RuleSet
	if cfg.Session.RulesFile != "" {
		rs, err := mime.LoadRuleSet(cfg.Session.RulesFile)
		if err != nil {
			return err
		}
		ruleSet = &rs
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	tracer := tracing.New("sandbox-host", logger)
	defer tracer.Close()

	fetcher := httpclient.New(httpclient.DefaultConfig())
	h, err := host.New(ctx, host.Config{
		Modules: modules.Config{
			Primary:           modules.ParseSource(cfg.Sandbox.PrimaryModule, fetcher),
			Secondary:         modules.ParseSource(cfg.Sandbox.SecondaryModule, fetcher),
			EnableConsole:     cfg.Sandbox.ConsoleEnabled,
			LoadTimeout:       cfg.Sandbox.LoadTimeout,
			BridgeCallTimeout: cfg.Sandbox.BridgeTimeout,
		},
		Blobs: blob.Config{
			TTL:           cfg.Blobs.TTL,
			SweepInterval: cfg.Blobs.SweepInterval,
		},
		Rules: ruleSet,
	},
		host.WithLogger(logger.Named("host")),
		host.WithMetrics(metrics),
		host.WithTracer(tracer),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("close host", zap.Error(err))
		}
	}()

	srv := host.NewHTTPServer(h, host.HTTPConfig{
		Server: server.Config{
			Addr:            cfg.Transport.ListenAddr,
			AllowOrigins:    splitOrigins(cfg.Transport.AllowOrigins),
			Development:     cfg.Logging.Development,
			ShutdownTimeout: 10 * time.Second,
		},
	})

	logger = log.ForSandbox(h.ID().String(), h.Origin())
	logger.Info("sandbox host ready", zap.String("addr", cfg.Transport.ListenAddr))

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("shut down gracefully")
	return nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
