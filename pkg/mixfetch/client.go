package mixfetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"

	"github.com/nymtech/nym-sub006/internal/blob"
	"github.com/nymtech/nym-sub006/internal/host"
	"github.com/nymtech/nym-sub006/internal/httpclient"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/resilience"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
	"github.com/nymtech/nym-sub006/internal/modules"
	"github.com/nymtech/nym-sub006/internal/reconstruct"
	"github.com/nymtech/nym-sub006/internal/rpc"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// Client fetches URLs through a sandbox
type Client struct {
	rpc           *rpc.Client
	reconstructor *reconstruct.Reconstructor
	limiter       *rate.Limiter
	breaker       *resilience.Breaker
	logger        *zap.Logger
	tracer        *tracing.Tracer

	// in-process mode only
	host      *host.Host
	stopServe context.CancelFunc
	served    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New starts an in-process sandbox and waits for it to load
func New(ctx context.Context, cfg Config) (*Client, error) {
	c := newClient(cfg)

	primary, secondary := cfg.Primary, cfg.Secondary
	if primary == nil || secondary == nil {
		fetcher := httpclient.New(httpclient.DefaultConfig())
		if primary == nil {
			primary = modules.ParseSource(cfg.PrimaryModule, fetcher)
		}
		if secondary == nil {
			secondary = modules.ParseSource(cfg.SecondaryModule, fetcher)
		}
	}
	if primary == nil || secondary == nil {
		c.tracer.Close()
		return nil, errors.New("mixfetch: primary and secondary module sources are required")
	}

	metrics := c.metrics(cfg)
	h, err := host.New(ctx, host.Config{
		Modules: modules.Config{
			Primary:           primary,
			Secondary:         secondary,
			EnableConsole:     cfg.EnableConsole,
			LoadTimeout:       cfg.LoadTimeout,
			BridgeCallTimeout: cfg.BridgeTimeout,
		},
		Blobs: blob.Config{TTL: cfg.BlobTTL},
	},
		host.WithLogger(c.logger.Named("sandbox")),
		host.WithMetrics(metrics),
		host.WithTracer(c.tracer),
	)
	if err != nil {
		c.tracer.Close()
		return nil, err
	}
	c.host = h

	serverEnd, clientEnd := rpc.NewPipe()
	serveCtx, cancel := context.WithCancel(context.Background())
	c.stopServe = cancel
	c.served = make(chan struct{})
	go func() {
		defer close(c.served)
		if err := h.Serve(serveCtx, serverEnd); err != nil {
			c.logger.Warn("sandbox rpc server stopped", zap.Error(err))
		}
	}()

	c.rpc = rpc.NewClient(clientEnd, c.rpcOptions(metrics)...)
	c.reconstructor = reconstruct.New(h.Blobs(), reconstruct.WithLogger(c.logger))

	if err := c.rpc.WaitReady(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mixfetch: wait for sandbox: %w", err)
	}
	return c, nil
}

// Dial connects to a sandbox host's websocket RPC endpoint and waits for
// it to report loaded
func Dial(ctx context.Context, wsURL string, cfg Config) (*Client, error) {
	c := newClient(cfg)

	baseURL := cfg.BlobBaseURL
	if baseURL == "" {
		derived, err := blobBaseURL(wsURL)
		if err != nil {
			c.tracer.Close()
			return nil, err
		}
		baseURL = derived
	}

	t, err := rpc.DialWebSocket(ctx, wsURL, nil, c.logger)
	if err != nil {
		c.tracer.Close()
		return nil, fmt.Errorf("mixfetch: %w", err)
	}

	c.rpc = rpc.NewClient(t, c.rpcOptions(c.metrics(cfg))...)
	c.reconstructor = reconstruct.New(
		blob.NewHTTPResolver(baseURL, httpclient.New(httpclient.DefaultConfig())),
		reconstruct.WithLogger(c.logger),
	)

	if err := c.rpc.WaitReady(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mixfetch: wait for sandbox: %w", err)
	}
	c.logger.Info("connected to sandbox host", zap.String("url", wsURL))
	return c, nil
}

func newClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	return &Client{
		limiter: limiter,
		logger:  logger,
		tracer:  tracing.New("mixfetch", logger),
		breaker: resilience.New("mixfetch", resilience.Settings{
			Threshold: failures,
			Cooldown:  timeout,
			IsFailure: func(err error) bool { return errors.Is(err, rpc.ErrSession) },
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("session breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (c *Client) metrics(cfg Config) *monitoring.Metrics {
	if cfg.Registerer == nil {
		return nil
	}
	return monitoring.NewMetrics(cfg.Registerer)
}

func (c *Client) rpcOptions(metrics *monitoring.Metrics) []rpc.Option {
	return []rpc.Option{
		rpc.WithLogger(c.logger),
		rpc.WithMetrics(metrics),
		rpc.WithTracer(c.tracer),
	}
}

// blobBaseURL maps ws(s)://host/rpc to http(s)://host
func blobBaseURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("%w: %s is not a websocket url", ErrInvalidURL, wsURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/rpc")
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

// Ready is closed once the sandbox has loaded
func (c *Client) Ready() <-chan struct{} {
	return c.rpc.Ready()
}

// Setup establishes the mixnet session. Calling it again while the session
// is up reuses it.
func (c *Client) Setup(ctx context.Context, opts SetupOptions) error {
	if err := c.rpc.SetupMixFetch(ctx, opts); err != nil {
		return err
	}
	c.breaker.Reset()
	return nil
}

// Fetch requests url through the mixnet and returns the reconstructed
// response
func (c *Client) Fetch(ctx context.Context, rawURL string, args RequestArgs) (*Response, error) {
	if err := validateRequest(rawURL, args); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	desc, err := resilience.Do(c.breaker, func() (*types.ResponseDescriptor, error) {
		return c.rpc.MixFetch(ctx, rawURL, args)
	})
	if err != nil {
		return nil, err
	}
	return c.reconstructor.Build(ctx, desc)
}

// Disconnect tears down the mixnet session
func (c *Client) Disconnect(ctx context.Context) error {
	return c.rpc.DisconnectMixFetch(ctx)
}

// Close releases the transport and, in-process, the sandbox
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.rpc != nil {
			if err := c.rpc.Close(); err != nil && !errors.Is(err, rpc.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if c.host != nil {
			c.stopServe()
			<-c.served
			errs = append(errs, c.host.Close())
		}
		c.tracer.Close()
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func validateRequest(rawURL string, args RequestArgs) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if args.Method != "" && !httpguts.ValidHeaderFieldName(args.Method) {
		return fmt.Errorf("%w: method %q", ErrBadRequest, args.Method)
	}
	for _, h := range args.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("%w: value of %s", ErrInvalidHeader, h.Name)
		}
	}
	return nil
}
