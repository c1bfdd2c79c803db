package modules

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/bridge"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/sandbox"
)

// Runtime names
const (
	PrimaryName   = "primary"
	SecondaryName = "secondary"
)

// DefaultBridgeCallTimeout bounds a bridge call when Config leaves it unset.
// Synchronous bridge functions block the primary loop for at most this long.
const DefaultBridgeCallTimeout = 5 * time.Second

// Config describes where the module images come from and how their
// runtimes are set up
type Config struct {
	Primary   Source
	Secondary Source

	Origin            string
	EnableConsole     bool
	LoadTimeout       time.Duration
	BridgeCallTimeout time.Duration
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger handed to runtimes and the bridge
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records module faults
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(l *Loader) { l.metrics = metrics }
}

// WithConnector publishes c instead of the secondary module's primitives.
// The secondary image becomes optional.
func WithConnector(c bridge.Connector) Option {
	return func(l *Loader) { l.connector = c }
}

type step int

const (
	stepNone step = iota
	stepPrimary
	stepSecondary
	stepBridge
)

// Loader performs module bring-up
type Loader struct {
	cfg       Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	connector bridge.Connector
	diag      *Diagnostics

	mu        sync.Mutex
	step      step
	failed    error
	closed    bool
	primary   *Primary
	secondary *Secondary
	bridge    *bridge.Bridge
}

// Modules is the result of a completed bring-up
type Modules struct {
	Primary     *Primary
	Secondary   *Secondary // nil when a connector was injected without an image
	Bridge      *bridge.Bridge
	Diagnostics *Diagnostics

	loader *Loader
}

// Close tears down the bridge and both runtimes
func (m *Modules) Close() error {
	return m.loader.Close()
}

// NewLoader creates a loader for cfg
func NewLoader(cfg Config, opts ...Option) *Loader {
	if cfg.BridgeCallTimeout <= 0 {
		cfg.BridgeCallTimeout = DefaultBridgeCallTimeout
	}
	l := &Loader{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.diag = NewDiagnostics(0, l.metrics)
	return l
}

// Diagnostics returns the fault log shared by both runtimes
func (l *Loader) Diagnostics() *Diagnostics {
	return l.diag
}

// Load runs every bring-up step in order. On failure every runtime created
// so far is closed.
func (l *Loader) Load(ctx context.Context) (*Modules, error) {
	if l.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	for _, run := range []func(context.Context) error{l.LoadPrimary, l.LoadSecondary, l.InstallBridge} {
		if err := run(ctx); err != nil {
			l.logger.Error("module bring-up failed", zap.Error(err))
			_ = l.Close()
			return nil, err
		}
	}
	l.logger.Info("modules loaded", zap.Duration("took", time.Since(start)))

	l.mu.Lock()
	defer l.mu.Unlock()
	return &Modules{
		Primary:     l.primary,
		Secondary:   l.secondary,
		Bridge:      l.bridge,
		Diagnostics: l.diag,
		loader:      l,
	}, nil
}

// advance checks that want is the next step
func (l *Loader) advance(want step) error {
	if l.closed {
		return ErrNotLoaded
	}
	if l.failed != nil {
		return l.failed
	}
	switch {
	case l.step >= want:
		return ErrAlreadyLoaded
	case l.step != want-1:
		return ErrBridgeOrder
	}
	return nil
}

func (l *Loader) newRuntime(name string) (*sandbox.Runtime, error) {
	cfg := sandbox.DefaultConfig(name)
	if l.cfg.Origin != "" {
		cfg.Origin = l.cfg.Origin
	}
	cfg.EnableConsole = l.cfg.EnableConsole

	rt, err := sandbox.New(cfg, l.logger)
	if err != nil {
		return nil, err
	}
	rt.SetFaultHandler(l.diag.Record)
	return rt, nil
}

// LoadPrimary instantiates the primary module
func (l *Loader) LoadPrimary(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.advance(stepPrimary); err != nil {
		return err
	}

	p, err := l.loadPrimary(ctx)
	if err != nil {
		l.failed = err
		return err
	}
	l.primary = p
	l.step = stepPrimary
	return nil
}

func (l *Loader) loadPrimary(ctx context.Context) (*Primary, error) {
	image, err := fetchImage(ctx, l.cfg.Primary)
	if err != nil {
		return nil, err
	}

	rt, err := l.newRuntime(PrimaryName)
	if err != nil {
		return nil, err
	}
	if err := rt.InstallPanicHook(PrimaryName); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := instantiate(ctx, rt, l.cfg.Primary.Name(), image, primaryExports); err != nil {
		_ = rt.Close()
		return nil, err
	}

	l.logger.Info("primary module instantiated", zap.String("source", l.cfg.Primary.Name()), zap.Int("size", len(image)))
	return &Primary{rt: rt}, nil
}

// LoadSecondary instantiates the secondary module and starts its main
// routine. With an injected connector and no image it only advances.
func (l *Loader) LoadSecondary(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.advance(stepSecondary); err != nil {
		return err
	}

	if l.cfg.Secondary == nil && l.connector != nil {
		l.step = stepSecondary
		return nil
	}

	s, err := l.loadSecondary(ctx)
	if err != nil {
		l.failed = err
		return err
	}
	l.secondary = s
	l.step = stepSecondary
	return nil
}

func (l *Loader) loadSecondary(ctx context.Context) (*Secondary, error) {
	image, err := fetchImage(ctx, l.cfg.Secondary)
	if err != nil {
		return nil, err
	}

	rt, err := l.newRuntime(SecondaryName)
	if err != nil {
		return nil, err
	}
	if err := rt.InstallPanicHook(SecondaryName); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := instantiate(ctx, rt, l.cfg.Secondary.Name(), image, secondaryExports); err != nil {
		_ = rt.Close()
		return nil, err
	}

	s := &Secondary{rt: rt}
	if err := s.start(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	l.logger.Info("secondary module instantiated", zap.String("source", l.cfg.Secondary.Name()), zap.Int("size", len(image)))
	return s, nil
}

// InstallBridge publishes the connection primitives into the primary runtime
func (l *Loader) InstallBridge(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.advance(stepBridge); err != nil {
		return err
	}

	var connector bridge.Connector = l.secondary
	if l.connector != nil {
		connector = l.connector
	}

	b, err := bridge.Install(ctx, l.primary.rt, connector, bridge.Options{
		CallTimeout: l.cfg.BridgeCallTimeout,
		Logger:      l.logger,
	})
	if err != nil {
		l.failed = err
		return err
	}
	l.bridge = b
	l.step = stepBridge
	return nil
}

// Loaded reports whether bring-up completed
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step == stepBridge && !l.closed
}

// Close releases the bridge and every runtime. It is safe to call more
// than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	if l.bridge != nil {
		l.bridge.Close()
	}

	var errs []error
	if l.primary != nil {
		errs = append(errs, l.primary.rt.Close())
	}
	if l.secondary != nil {
		errs = append(errs, l.secondary.rt.Close())
	}
	return errors.Join(errs...)
}
