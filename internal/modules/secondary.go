package modules

import (
	"context"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/bridge"
	"github.com/nymtech/nym-sub006/internal/sandbox"
)

// Exports of the secondary module
const (
	ExportSendData    = "send_client_data"
	ExportStartConn   = "start_new_mixnet_connection"
	ExportInitialised = "mix_fetch_initialised"
	ExportFinishConn  = "finish_mixnet_connection"
	ExportMain        = "main"
)

var secondaryExports = []string{ExportSendData, ExportStartConn, ExportInitialised, ExportFinishConn}

// Secondary is the instantiated connection emulation core. It implements
// bridge.Connector by calling into its own runtime.
type Secondary struct {
	rt *sandbox.Runtime
}

var _ bridge.Connector = (*Secondary)(nil)

// Runtime returns the runtime hosting the module
func (s *Secondary) Runtime() *sandbox.Runtime {
	return s.rt
}

// start runs main() if exported. The module's run loop is long-lived, so
// its result is only observed for logging.
func (s *Secondary) start() error {
	return s.rt.Post(func(vm *goja.Runtime) {
		main, ok := goja.AssertFunction(vm.Get(ExportMain))
		if !ok {
			return
		}
		logger := s.rt.Logger()

		v, err := main(goja.Undefined())
		if err != nil {
			logger.Error("secondary main failed", zap.Error(sandbox.ErrorFromException(vm, err)))
			return
		}
		if _, isPromise := sandbox.AsPromise(v); isPromise {
			_ = sandbox.Then(vm, v,
				func(goja.Value) { logger.Info("secondary main returned") },
				func(reason goja.Value) {
					logger.Error("secondary main rejected", zap.Error(sandbox.ErrorFromValue(vm, reason)))
				},
			)
		}
	})
}

// StartConnection opens a mixnet-backed connection to addr
func (s *Secondary) StartConnection(ctx context.Context, addr string) (bridge.ConnID, error) {
	return callExport(ctx, s.rt, ExportStartConn,
		func(vm *goja.Runtime) ([]goja.Value, error) {
			return []goja.Value{vm.ToValue(addr)}, nil
		},
		func(vm *goja.Runtime, v goja.Value) (bridge.ConnID, error) {
			return bridge.ConnID(v.ToInteger()), nil
		},
	)
}

// SendData writes data to connection id
func (s *Secondary) SendData(ctx context.Context, id bridge.ConnID, data []byte) error {
	_, err := callExport(ctx, s.rt, ExportSendData,
		func(vm *goja.Runtime) ([]goja.Value, error) {
			buf := vm.NewArrayBuffer(append([]byte(nil), data...))
			view, err := vm.New(vm.Get("Uint8Array"), vm.ToValue(buf))
			if err != nil {
				return nil, err
			}
			return []goja.Value{vm.ToValue(int64(id)), view}, nil
		},
		ignoreResult,
	)
	return err
}

// Initialised reports whether the connection core finished starting
func (s *Secondary) Initialised(ctx context.Context) bool {
	ready, err := callExport(ctx, s.rt, ExportInitialised, nil,
		func(vm *goja.Runtime, v goja.Value) (bool, error) {
			return v.ToBoolean(), nil
		},
	)
	return err == nil && ready
}

// FinishConnection closes connection id
func (s *Secondary) FinishConnection(ctx context.Context, id bridge.ConnID) error {
	_, err := callExport(ctx, s.rt, ExportFinishConn,
		func(vm *goja.Runtime) ([]goja.Value, error) {
			return []goja.Value{vm.ToValue(int64(id))}, nil
		},
		ignoreResult,
	)
	return err
}
