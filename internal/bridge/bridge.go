package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/sandbox"
)

// Global is the well-known location the primary module's bindings call
const Global = "__go_rs_bridge__"

// Function names published under Global
const (
	FnSendClientData   = "send_client_data"
	FnStartConnection  = "start_new_mixnet_connection"
	FnInitialised      = "mix_fetch_initialised"
	FnFinishConnection = "finish_mixnet_connection"
)

var (
	ErrAlreadyInstalled = errors.New("bridge: already installed")
	ErrDuplicateConn    = errors.New("bridge: duplicate connection id")
	ErrUnknownConn      = errors.New("bridge: unknown connection id")
	ErrBridgeClosed     = errors.New("bridge: closed")
	ErrInvalidArgument  = errors.New("bridge: invalid argument")
)

// ConnID identifies a mixnet-backed connection
type ConnID int64

// Connector is the set of connection primitives the primary module drives
type Connector interface {
	StartConnection(ctx context.Context, addr string) (ConnID, error)
	SendData(ctx context.Context, id ConnID, data []byte) error
	Initialised(ctx context.Context) bool
	FinishConnection(ctx context.Context, id ConnID) error
}

// Options tune an installed bridge
type Options struct {
	// CallTimeout bounds each Connector call; zero means no bound
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Bridge is a Connector published into a runtime
type Bridge struct {
	rt        *sandbox.Runtime
	connector Connector
	opts      Options
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[ConnID]string
}

// Install publishes c into rt under Global. It fails if a bridge is
// already present.
func Install(ctx context.Context, rt *sandbox.Runtime, c Connector, opts Options) (*Bridge, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil connector", ErrInvalidArgument)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		rt:        rt,
		connector: c,
		opts:      opts,
		logger:    logger.With(zap.String("component", "bridge")),
		ctx:       bctx,
		cancel:    cancel,
		active:    make(map[ConnID]string),
	}

	err := rt.Do(ctx, func(vm *goja.Runtime) error {
		if existing := vm.Get(Global); existing != nil && !goja.IsUndefined(existing) {
			return ErrAlreadyInstalled
		}

		obj := vm.NewObject()
		for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
			FnStartConnection:  b.jsStartConnection(vm),
			FnSendClientData:   b.jsSendData(vm),
			FnInitialised:      b.jsInitialised(vm),
			FnFinishConnection: b.jsFinishConnection(vm),
		} {
			if err := obj.Set(name, fn); err != nil {
				return err
			}
		}
		return vm.Set(Global, obj)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return b, nil
}

// Active returns the open connection ids in ascending order
func (b *Bridge) Active() []ConnID {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]ConnID, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close cancels in-flight connector calls and rejects new ones
func (b *Bridge) Close() {
	b.cancel()
}

func (b *Bridge) callContext() (context.Context, context.CancelFunc) {
	if b.opts.CallTimeout > 0 {
		return context.WithTimeout(b.ctx, b.opts.CallTimeout)
	}
	return context.WithCancel(b.ctx)
}

// async runs work off the loop and settles the returned promise on it
func (b *Bridge) async(vm *goja.Runtime, op string, work func(ctx context.Context) (interface{}, error)) goja.Value {
	if b.ctx.Err() != nil {
		return sandbox.Rejected(vm, ErrBridgeClosed)
	}

	promise, resolve, reject, err := sandbox.NewPromise(vm)
	if err != nil {
		return sandbox.Rejected(vm, err)
	}

	go func() {
		ctx, cancel := b.callContext()
		defer cancel()

		result, err := work(ctx)
		if err != nil {
			b.logger.Debug("bridge call failed", zap.String("op", op), zap.Error(err))
		}

		postErr := b.rt.Post(func(vm *goja.Runtime) {
			if err != nil {
				reject(sandbox.ErrorValue(vm, err))
				return
			}
			resolve(vm.ToValue(result))
		})
		if postErr != nil {
			b.logger.Debug("dropping bridge result", zap.String("op", op), zap.Error(postErr))
		}
	}()

	return promise
}

func (b *Bridge) jsStartConnection(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		addr := call.Argument(0).String()
		return b.async(vm, FnStartConnection, func(ctx context.Context) (interface{}, error) {
			id, err := b.StartConnection(ctx, addr)
			return int64(id), err
		})
	}
}

func (b *Bridge) jsSendData(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := ConnID(call.Argument(0).ToInteger())
		data, ok := sandbox.BytesFromValue(vm, call.Argument(1))
		if !ok {
			return sandbox.Rejected(vm, fmt.Errorf("%w: data must be bytes", ErrInvalidArgument))
		}
		return b.async(vm, FnSendClientData, func(ctx context.Context) (interface{}, error) {
			return nil, b.SendData(ctx, id, data)
		})
	}
}

func (b *Bridge) jsInitialised(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		ctx, cancel := b.callContext()
		defer cancel()
		return vm.ToValue(b.Initialised(ctx))
	}
}

func (b *Bridge) jsFinishConnection(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := ConnID(call.Argument(0).ToInteger())
		return b.async(vm, FnFinishConnection, func(ctx context.Context) (interface{}, error) {
			return nil, b.FinishConnection(ctx, id)
		})
	}
}

// StartConnection opens a connection through the Connector and records it
func (b *Bridge) StartConnection(ctx context.Context, addr string) (ConnID, error) {
	id, err := b.connector.StartConnection(ctx, addr)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.active[id]; exists {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateConn, id)
	}
	b.active[id] = addr

	b.logger.Debug("connection opened", zap.Int64("conn_id", int64(id)), zap.String("addr", addr))
	return id, nil
}

// SendData forwards data on an open connection
func (b *Bridge) SendData(ctx context.Context, id ConnID, data []byte) error {
	if !b.isActive(id) {
		return fmt.Errorf("%w: %d", ErrUnknownConn, id)
	}
	return b.connector.SendData(ctx, id, data)
}

// Initialised reports whether the Connector is ready
func (b *Bridge) Initialised(ctx context.Context) bool {
	return b.connector.Initialised(ctx)
}

// FinishConnection closes an open connection and forgets it
func (b *Bridge) FinishConnection(ctx context.Context, id ConnID) error {
	b.mu.Lock()
	_, ok := b.active[id]
	delete(b.active, id)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, id)
	}

	b.logger.Debug("connection finished", zap.Int64("conn_id", int64(id)))
	return b.connector.FinishConnection(ctx, id)
}

func (b *Bridge) isActive(id ConnID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[id]
	return ok
}

var _ Connector = (*Bridge)(nil)
