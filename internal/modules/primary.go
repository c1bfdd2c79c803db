package modules

import (
	"context"

	"github.com/dop251/goja"

	"github.com/nymtech/nym-sub006/internal/sandbox"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// Exports of the primary module
const (
	ExportSetup      = "setupMixFetch"
	ExportFetch      = "mixFetch"
	ExportDisconnect = "disconnectMixFetch"
)

var primaryExports = []string{ExportSetup, ExportFetch, ExportDisconnect}

// Primary is the instantiated mixnet protocol core
type Primary struct {
	rt *sandbox.Runtime
}

// Runtime returns the sandbox runtime hosting the module
func (p *Primary) Runtime() *sandbox.Runtime {
	return p.rt
}

// Setup calls setupMixFetch(args) and waits for the session handshake
func (p *Primary) Setup(ctx context.Context, args map[string]interface{}) error {
	_, err := callExport(ctx, p.rt, ExportSetup,
		func(vm *goja.Runtime) ([]goja.Value, error) {
			if args == nil {
				return []goja.Value{goja.Undefined()}, nil
			}
			return []goja.Value{vm.ToValue(args)}, nil
		},
		ignoreResult,
	)
	return err
}

// Fetch calls mixFetch(url, args) and waits for the opaque response. A nil
// response with a nil error means the module produced no response at all.
func (p *Primary) Fetch(ctx context.Context, url string, req types.RequestArgs) (*sandbox.Response, error) {
	return callExport(ctx, p.rt, ExportFetch,
		func(vm *goja.Runtime) ([]goja.Value, error) {
			return []goja.Value{vm.ToValue(url), requestValue(vm, req)}, nil
		},
		func(vm *goja.Runtime, v goja.Value) (*sandbox.Response, error) {
			if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
				return nil, nil
			}
			return p.rt.ResponseFromValue(v)
		},
	)
}

// Disconnect calls disconnectMixFetch() and waits for teardown
func (p *Primary) Disconnect(ctx context.Context) error {
	_, err := callExport(ctx, p.rt, ExportDisconnect, nil, ignoreResult)
	return err
}

// requestValue renders fetch arguments as the init object fetch expects
func requestValue(vm *goja.Runtime, req types.RequestArgs) goja.Value {
	obj := vm.NewObject()

	method := req.Method
	if method == "" {
		method = "GET"
	}
	_ = obj.Set("method", method)

	pairs := make([]interface{}, len(req.Headers))
	for i, h := range req.Headers {
		pairs[i] = vm.NewArray(h.Name, h.Value)
	}
	_ = obj.Set("headers", vm.NewArray(pairs...))

	if req.Body != nil {
		_ = obj.Set("body", vm.NewArrayBuffer(append([]byte(nil), req.Body...)))
	}
	if req.Redirect != "" {
		_ = obj.Set("redirect", req.Redirect)
	}
	return obj
}
