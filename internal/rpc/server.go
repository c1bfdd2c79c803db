package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// Handler implements the boundary methods on the sandbox side
type Handler interface {
	SetupMixFetch(ctx context.Context, opts types.SetupOptions) error
	MixFetch(ctx context.Context, url string, args types.RequestArgs) (*types.ResponseDescriptor, error)
	DisconnectMixFetch(ctx context.Context) error
}

// Server answers requests arriving on a transport
type Server struct {
	handler Handler
	opts    options
}

// NewServer creates a server for h
func NewServer(h Handler, opts ...Option) *Server {
	return &Server{handler: h, opts: buildOptions(opts)}
}

// Serve sends the Loaded event once, then answers requests until ctx ends
// or the transport closes. In-flight calls are canceled on return.
func (s *Server) Serve(ctx context.Context, t Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var sendMu sync.Mutex
	send := func(ctx context.Context, f Frame) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return t.Send(ctx, f)
	}

	if err := send(ctx, Frame{Event: EventLoaded}); err != nil {
		return fmt.Errorf("signal loaded: %w", err)
	}
	s.opts.logger.Info("sandbox loaded signal sent")

	for {
		f, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !f.IsRequest() {
			s.opts.logger.Debug("ignoring non-request frame", zap.String("id", f.ID), zap.String("event", f.Event))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.dispatch(ctx, f)
			if err := send(ctx, resp); err != nil {
				s.opts.logger.Warn("failed to send response",
					zap.String("call_id", f.ID),
					zap.String("method", f.Method),
					zap.Error(err),
				)
			}
		}()
	}
}

func (s *Server) dispatch(ctx context.Context, f Frame) Frame {
	ctx = tracing.ExtractTraceContext(ctx, f.Trace)
	timer := monitoring.NewTimer(s.opts.metrics, "server", f.Method)

	var result interface{}
	err := s.opts.tracer.Trace(ctx, "rpc.server."+f.Method, func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("call_id", f.ID)
		var err error
		result, err = s.call(ctx, f)
		return err
	})

	resp := Frame{ID: f.ID}
	if err == nil {
		resp.Result, err = marshalPayload(result)
	}
	if err != nil {
		resp.Result = nil
		resp.Error = toWire(err)
		timer.Stop(string(resp.Error.Code))
		s.opts.logger.Debug("call failed",
			zap.String("call_id", f.ID),
			zap.String("method", f.Method),
			zap.Error(err),
		)
		return resp
	}

	timer.Stop("ok")
	return resp
}

func (s *Server) call(ctx context.Context, f Frame) (interface{}, error) {
	switch f.Method {
	case MethodSetup:
		var opts types.SetupOptions
		if err := unmarshalPayload(f.Params, &opts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil, s.handler.SetupMixFetch(ctx, opts)

	case MethodFetch:
		var params FetchParams
		if err := unmarshalPayload(f.Params, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if params.URL == "" {
			return nil, fmt.Errorf("%w: url is required", ErrBadRequest)
		}
		desc, err := s.handler.MixFetch(ctx, params.URL, params.Args)
		if err != nil {
			return nil, err
		}
		return FetchResult{Response: desc}, nil

	case MethodDisconnect:
		return nil, s.handler.DisconnectMixFetch(ctx)
	}

	return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, f.Method)
}
