package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/blob"
	"github.com/nymtech/nym-sub006/internal/bridge"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
	"github.com/nymtech/nym-sub006/internal/mime"
	"github.com/nymtech/nym-sub006/internal/modules"
	"github.com/nymtech/nym-sub006/internal/rpc"
	"github.com/nymtech/nym-sub006/internal/sandbox"
	"github.com/nymtech/nym-sub006/internal/shared/id"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// Config describes a sandbox host
type Config struct {
	Modules modules.Config
	Blobs   blob.Config

	// Rules is the decode rule set used when setup carries no override.
	// Nil means mime.DefaultRuleSet().
	Rules *mime.RuleSet
}

// Option configures a Host
type Option func(*Host)

// WithLogger sets the host logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records lifecycle, RPC, decode and blob metrics
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(h *Host) { h.metrics = metrics }
}

// WithTracer traces RPC calls served by the host
func WithTracer(tracer *tracing.Tracer) Option {
	return func(h *Host) { h.tracer = tracer }
}

// WithConnector publishes c into the primary module instead of the
// secondary module's connection primitives
func WithConnector(c bridge.Connector) Option {
	return func(h *Host) { h.connector = c }
}

// Host is one sandbox with its mixnet session
type Host struct {
	id        id.SandboxID
	cfg       Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	connector bridge.Connector

	mods       *modules.Modules
	blobs      *blob.Store
	rules      mime.RuleSet
	stopSweeps context.CancelFunc

	// lifecycle serialises setup, disconnect and close
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	decoder *mime.Decoder
	closed  bool
}

// New loads both modules, installs the bridge and starts the blob
// sweeper. Any failure tears everything down and no host is returned.
func New(ctx context.Context, cfg Config, opts ...Option) (*Host, error) {
	h := &Host{
		id:     id.NewSandboxID(),
		cfg:    cfg,
		logger: zap.NewNop(),
		state:  StateCreated,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("sandbox_id", h.id.String()))

	h.rules = mime.DefaultRuleSet()
	if cfg.Rules != nil {
		h.rules = *cfg.Rules
	}

	origin := cfg.Modules.Origin
	if origin == "" {
		origin = "mixfetch-" + uuid.NewString()
	}
	h.cfg.Modules.Origin = origin
	h.cfg.Blobs.Origin = origin

	h.blobs = blob.NewStore(h.cfg.Blobs, blob.WithLogger(h.logger), blob.WithMetrics(h.metrics))

	loaderOpts := []modules.Option{modules.WithLogger(h.logger), modules.WithMetrics(h.metrics)}
	if h.connector != nil {
		loaderOpts = append(loaderOpts, modules.WithConnector(h.connector))
	}

	start := time.Now()
	mods, err := modules.NewLoader(h.cfg.Modules, loaderOpts...).Load(ctx)
	if err != nil {
		h.setState(StateFailed)
		h.logger.Error("sandbox bring-up failed", zap.Error(err))
		return nil, fmt.Errorf("host: bring-up: %w", err)
	}
	h.mods = mods

	sweepCtx, cancel := context.WithCancel(context.Background())
	h.stopSweeps = cancel
	go h.blobs.Run(sweepCtx)

	h.setState(StateLoaded)
	h.logger.Info("sandbox loaded",
		zap.String("origin", origin),
		zap.Duration("took", time.Since(start)),
	)
	return h, nil
}

// ID returns the sandbox id
func (h *Host) ID() id.SandboxID {
	return h.id
}

// Origin returns the origin embedded in blob handles
func (h *Host) Origin() string {
	return h.blobs.Origin()
}

// State returns the current lifecycle state
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Blobs returns the blob store backing blob-strategy bodies
func (h *Host) Blobs() *blob.Store {
	return h.blobs
}

// Diagnostics returns faults recorded in either module runtime
func (h *Host) Diagnostics() *modules.Diagnostics {
	return h.mods.Diagnostics
}

// setState moves to "to" and records the transition. Callers hold no lock.
func (h *Host) setState(to State) {
	h.mu.Lock()
	from := h.state
	h.state = to
	h.mu.Unlock()

	if from == to {
		return
	}
	if err := checkTransition(from, to); err != nil {
		h.logger.Warn("forced state transition", zap.Error(err))
	}
	h.metrics.RecordTransition(from.String(), to.String())
	h.logger.Debug("session state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// compareAndSet moves from → to only if the state is still from
func (h *Host) compareAndSet(from, to State) bool {
	h.mu.Lock()
	if h.state != from {
		h.mu.Unlock()
		return false
	}
	h.state = to
	h.mu.Unlock()

	h.metrics.RecordTransition(from.String(), to.String())
	h.logger.Debug("session state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	return true
}

// SetupMixFetch establishes the mixnet session. It is a no-op while
// Ready. On failure the host returns to Loaded and setup may be retried.
// A rule set override in opts applies from this call on.
func (h *Host) SetupMixFetch(ctx context.Context, opts types.SetupOptions) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	switch state := h.State(); state {
	case StateReady:
		h.logger.Debug("setup called while ready, reusing session")
		return nil
	case StateDisconnecting, StateDisconnected:
		if h.isClosed() {
			return ErrClosed
		}
		return ErrDisconnected
	case StateLoaded:
	default:
		return fmt.Errorf("%w: setup in state %s", ErrNotReady, state)
	}

	rules := h.rules
	if opts.ResponseBodyConfigMap != nil {
		custom, err := mime.FromConfig(*opts.ResponseBodyConfigMap)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		rules = custom
	}

	h.setState(StateSessionEstablishing)
	start := time.Now()

	if err := h.mods.Primary.Setup(ctx, opts.ModuleArgs()); err != nil {
		h.setState(StateLoaded)
		err = classify(err, ErrSessionFailed)
		h.logger.Warn("mixnet session setup failed", zap.Error(err))
		return err
	}

	decoder := mime.NewDecoder(rules, h.blobs,
		mime.WithLogger(h.logger),
		mime.WithMetrics(h.metrics),
	)

	h.mu.Lock()
	h.decoder = decoder
	h.mu.Unlock()
	h.setState(StateReady)

	h.logger.Info("mixnet session established",
		zap.String("gateway", opts.PreferredGateway),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// MixFetch performs one fetch through the mixnet. It is rejected with
// ErrNotReady outside Ready without reaching the module. A nil
// descriptor with a nil error means the module produced no response.
func (h *Host) MixFetch(ctx context.Context, url string, args types.RequestArgs) (*types.ResponseDescriptor, error) {
	h.mu.RLock()
	state, decoder := h.state, h.decoder
	h.mu.RUnlock()

	if state != StateReady {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, state)
	}

	resp, err := h.mods.Primary.Fetch(ctx, url, args)
	if err != nil {
		if sandbox.IsJSError(err, "SessionError") {
			if h.compareAndSet(StateReady, StateLoaded) {
				h.logger.Warn("mixnet session lost", zap.Error(err))
			}
			return nil, fmt.Errorf("%w: %w", ErrSessionFailed, err)
		}
		return nil, classify(err, ErrModuleFault)
	}
	if resp == nil {
		return nil, nil
	}

	desc, err := decoder.Describe(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return desc, nil
}

// DisconnectMixFetch tears down the mixnet session. From Loaded it moves
// straight to Disconnected. Once Disconnected it is a no-op.
func (h *Host) DisconnectMixFetch(ctx context.Context) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	switch state := h.State(); state {
	case StateDisconnected:
		return nil
	case StateLoaded:
		h.setState(StateDisconnected)
		return nil
	case StateReady:
	default:
		return fmt.Errorf("%w: disconnect in state %s", ErrNotReady, state)
	}

	h.setState(StateDisconnecting)
	err := h.mods.Primary.Disconnect(ctx)
	h.setState(StateDisconnected)

	if err != nil {
		err = classify(err, ErrSessionFailed)
		h.logger.Warn("mixnet session teardown failed", zap.Error(err))
		return err
	}
	h.logger.Info("mixnet session disconnected")
	return nil
}

// Serve answers RPC calls on t until ctx ends or t closes. Each call to
// Serve emits its own Loaded event.
func (h *Host) Serve(ctx context.Context, t rpc.Transport) error {
	if h.isClosed() {
		return ErrClosed
	}
	return rpc.NewServer(h,
		rpc.WithLogger(h.logger),
		rpc.WithMetrics(h.metrics),
		rpc.WithTracer(h.tracer),
	).Serve(ctx, t)
}

func (h *Host) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close stops the blob sweeper and both runtimes. Pending calls fail.
func (h *Host) Close() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.stopSweeps()
	err := h.mods.Close()
	h.setState(StateDisconnected)
	h.logger.Info("sandbox closed")
	return err
}

// classify maps a module call failure onto a host error. Context errors
// pass through unchanged.
func classify(err error, fallback error) error {
	var fault *sandbox.FaultError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sandbox.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.As(err, &fault):
		return fmt.Errorf("%w: %w", ErrModuleFault, err)
	default:
		return fmt.Errorf("%w: %w", fallback, err)
	}
}
