package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
	"github.com/nymtech/nym-sub006/internal/shared/id"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// Client calls the boundary methods on a remote sandbox
type Client struct {
	t    Transport
	opts options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan Frame

	ready     chan struct{}
	readyOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts reading from t
func NewClient(t Transport, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		t:       t,
		opts:    buildOptions(opts),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan Frame),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Ready is closed when the sandbox reports it has loaded
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// IsReady reports whether the Loaded event has arrived
func (c *Client) IsReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the Loaded event, the transport closing, or ctx
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the transport is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SetupMixFetch establishes the mixnet session
func (c *Client) SetupMixFetch(ctx context.Context, opts types.SetupOptions) error {
	return c.call(ctx, MethodSetup, opts, nil)
}

// MixFetch fetches url through the mixnet. A nil descriptor with a nil
// error means the sandbox produced no response.
func (c *Client) MixFetch(ctx context.Context, url string, args types.RequestArgs) (*types.ResponseDescriptor, error) {
	var result FetchResult
	if err := c.call(ctx, MethodFetch, FetchParams{URL: url, Args: args}, &result); err != nil {
		return nil, err
	}
	return result.Response, nil
}

// DisconnectMixFetch tears the session down
func (c *Client) DisconnectMixFetch(ctx context.Context) error {
	return c.call(ctx, MethodDisconnect, nil, nil)
}

// Close closes the transport and fails pending calls
func (c *Client) Close() error {
	c.cancel()
	err := c.t.Close()
	<-c.done
	return err
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	if !c.IsReady() {
		return ErrNotReady
	}

	timer := monitoring.NewTimer(c.opts.metrics, "client", method)
	err := c.opts.tracer.Trace(ctx, "rpc.client."+method, func(ctx context.Context, span *tracing.Span) error {
		callID := id.NewCallID().String()
		span.SetTag("call_id", callID)
		return c.roundTrip(ctx, callID, method, params, result)
	})

	if err != nil {
		timer.Stop(string(CodeOf(err)))
		return err
	}
	timer.Stop("ok")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, callID, method string, params, result interface{}) error {
	raw, err := marshalPayload(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	trace := make(map[string]string, 2)
	tracing.InjectTraceContext(ctx, trace)

	ch, err := c.register(callID)
	if err != nil {
		return err
	}

	if err := c.t.Send(ctx, Frame{ID: callID, Method: method, Params: raw, Trace: trace}); err != nil {
		c.unregister(callID)
		return err
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if f.Error != nil {
			return fromWire(f.Error)
		}
		if result != nil {
			if err := unmarshalPayload(f.Result, result); err != nil {
				return fmt.Errorf("%w: decode %s result: %v", ErrInternal, method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.unregister(callID)
		return ctx.Err()
	}
}

func (c *Client) register(callID string) (chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil, ErrClosed
	}
	ch := make(chan Frame, 1)
	c.pending[callID] = ch
	return ch, nil
}

func (c *Client) unregister(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, callID)
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		f, err := c.t.Receive(c.ctx)
		if errors.Is(err, ErrBadFrame) {
			c.opts.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if err != nil {
			c.opts.logger.Debug("client read loop ended", zap.Error(err))
			return
		}

		switch {
		case f.IsEvent():
			if f.Event == EventLoaded {
				c.readyOnce.Do(func() { close(c.ready) })
				c.opts.logger.Info("sandbox loaded")
			}
		case f.IsResponse():
			c.deliver(f)
		default:
			c.opts.logger.Debug("ignoring unexpected frame", zap.String("method", f.Method))
		}
	}
}

func (c *Client) deliver(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()

	if !ok {
		c.opts.logger.Debug("response for unknown call", zap.String("call_id", f.ID))
		return
	}
	ch <- f
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for callID, ch := range c.pending {
			close(ch)
			delete(c.pending, callID)
		}
		c.pending = nil
		c.mu.Unlock()
		close(c.done)
	})
}
