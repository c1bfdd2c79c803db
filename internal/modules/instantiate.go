package modules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/nymtech/nym-sub006/internal/sandbox"
)

// instantiate parses image and runs it in rt, then checks that every name
// in exports is a callable global
func instantiate(ctx context.Context, rt *sandbox.Runtime, name string, image []byte, exports []string) error {
	program, err := goja.Compile(name, string(image), false)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModuleParse, name, err)
	}

	err = rt.Do(ctx, func(vm *goja.Runtime) error {
		if _, err := vm.RunProgram(program); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrModuleInstantiate, name, sandbox.ErrorFromException(vm, err))
		}

		var missing []string
		for _, export := range exports {
			if _, ok := goja.AssertFunction(vm.Get(export)); !ok {
				missing = append(missing, export)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s: %s", ErrMissingExport, name, strings.Join(missing, ", "))
		}
		return nil
	})

	var fault *sandbox.FaultError
	if errors.As(err, &fault) {
		return fmt.Errorf("%w: %s: %v", ErrModuleInstantiate, name, err)
	}
	return err
}

// callExport invokes a global function and awaits its result
func callExport[T any](
	ctx context.Context,
	rt *sandbox.Runtime,
	name string,
	args func(vm *goja.Runtime) ([]goja.Value, error),
	convert func(vm *goja.Runtime, v goja.Value) (T, error),
) (T, error) {
	return sandbox.Await(ctx, rt,
		func(vm *goja.Runtime) (goja.Value, error) {
			fn, ok := goja.AssertFunction(vm.Get(name))
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
			}
			var values []goja.Value
			if args != nil {
				var err error
				if values, err = args(vm); err != nil {
					return nil, err
				}
			}
			return fn(goja.Undefined(), values...)
		},
		convert,
	)
}

func ignoreResult(*goja.Runtime, goja.Value) (struct{}, error) {
	return struct{}{}, nil
}
