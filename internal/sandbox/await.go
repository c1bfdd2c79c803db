package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Await runs start on the loop. When start returns a promise, Await waits
// for it to settle while the loop keeps serving other jobs. convert runs on
// the loop with the fulfilled value; rejections become *JSError.
func Await[T any](
	ctx context.Context,
	r *Runtime,
	start func(vm *goja.Runtime) (goja.Value, error),
	convert func(vm *goja.Runtime, v goja.Value) (T, error),
) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	var zero T
	settled := make(chan outcome, 1)

	settle := func(vm *goja.Runtime, v goja.Value, rejected bool) {
		if rejected {
			settled <- outcome{err: ErrorFromValue(vm, v)}
			return
		}
		var out outcome
		out.err = r.protect(func() error {
			var err error
			out.value, err = convert(vm, v)
			return err
		})
		settled <- out
	}

	err := r.Do(ctx, func(vm *goja.Runtime) error {
		v, err := start(vm)
		if err != nil {
			return ErrorFromException(vm, err)
		}

		promise, ok := AsPromise(v)
		if !ok {
			settle(vm, v, false)
			return nil
		}

		switch promise.State() {
		case goja.PromiseStateFulfilled:
			settle(vm, promise.Result(), false)
			return nil
		case goja.PromiseStateRejected:
			settle(vm, promise.Result(), true)
			return nil
		}

		return Then(vm, v,
			func(result goja.Value) { settle(vm, result, false) },
			func(reason goja.Value) { settle(vm, reason, true) },
		)
	})
	if err != nil {
		return zero, err
	}

	select {
	case out := <-settled:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		return zero, ErrClosed
	}
}

// AsPromise reports whether v is a promise object
func AsPromise(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := obj.Export().(*goja.Promise)
	return p, ok
}

// Then attaches Go callbacks to a promise or thenable. Must run on the loop.
func Then(vm *goja.Runtime, v goja.Value, onFulfilled, onRejected func(goja.Value)) error {
	obj := v.ToObject(vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		return fmt.Errorf("%w: then is not callable", ErrNotResponse)
	}

	_, err := then(obj,
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			onFulfilled(call.Argument(0))
			return goja.Undefined()
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			onRejected(call.Argument(0))
			return goja.Undefined()
		}),
	)
	return err
}

// NewPromise creates a pending promise through the global Promise
// constructor and returns its settle functions. Must run on the loop.
func NewPromise(vm *goja.Runtime) (*goja.Object, func(goja.Value), func(goja.Value), error) {
	var resolve, reject goja.Callable

	executor := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		resolve, _ = goja.AssertFunction(call.Argument(0))
		reject, _ = goja.AssertFunction(call.Argument(1))
		return goja.Undefined()
	})

	promise, err := vm.New(vm.Get("Promise"), executor)
	if err != nil {
		return nil, nil, nil, err
	}
	if resolve == nil || reject == nil {
		return nil, nil, nil, errors.New("promise executor not invoked")
	}

	return promise,
		func(v goja.Value) { _, _ = resolve(goja.Undefined(), v) },
		func(v goja.Value) { _, _ = reject(goja.Undefined(), v) },
		nil
}

// Resolved returns Promise.resolve(v). Must run on the loop.
func Resolved(vm *goja.Runtime, v goja.Value) goja.Value {
	ctor := vm.Get("Promise").ToObject(vm)
	resolve, _ := goja.AssertFunction(ctor.Get("resolve"))
	p, err := resolve(ctor, v)
	if err != nil {
		panic(err)
	}
	return p
}

// Rejected returns Promise.reject(err) with err wrapped as a JS Error.
// Must run on the loop.
func Rejected(vm *goja.Runtime, err error) goja.Value {
	ctor := vm.Get("Promise").ToObject(vm)
	reject, _ := goja.AssertFunction(ctor.Get("reject"))
	p, callErr := reject(ctor, ErrorValue(vm, err))
	if callErr != nil {
		panic(callErr)
	}
	return p
}

var goErrorSym = goja.NewSymbol("mixfetch.goError")

// ErrorValue converts err into a JS Error object carrying the Go error's
// message. A *JSError keeps its name.
func ErrorValue(vm *goja.Runtime, err error) goja.Value {
	obj := vm.NewGoError(err)
	_ = obj.SetSymbol(goErrorSym, err)
	var jsErr *JSError
	if errors.As(err, &jsErr) && jsErr.Name != "" {
		_ = obj.Set("name", jsErr.Name)
		_ = obj.Set("message", jsErr.Message)
	}
	return obj
}

// ErrorFromException unwraps a goja exception into a *JSError. Other errors,
// interrupts included, are returned unchanged.
func ErrorFromException(vm *goja.Runtime, err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		jsErr := ErrorFromValue(vm, ex.Value())
		if e, ok := jsErr.(*JSError); ok && e.Stack == "" {
			e.Stack = ex.String()
		}
		return jsErr
	}
	return err
}

// ErrorFromValue converts a thrown or rejected JS value into an error
func ErrorFromValue(vm *goja.Runtime, v goja.Value) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return &JSError{Name: "Error", Message: "undefined rejection"}
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return &JSError{Message: v.String()}
	}

	// Go errors thrown through ErrorValue keep their identity
	if bound := obj.GetSymbol(goErrorSym); bound != nil {
		if goErr, ok := bound.Export().(error); ok {
			if _, isJS := goErr.(*JSError); !isJS {
				return goErr
			}
		}
	}
	if inner := obj.Get("value"); inner != nil {
		if goErr, ok := inner.Export().(error); ok {
			if _, isJS := goErr.(*JSError); !isJS {
				return goErr
			}
		}
	}

	return &JSError{
		Name:    optionalString(obj.Get("name")),
		Message: optionalString(obj.Get("message")),
		Stack:   optionalString(obj.Get("stack")),
	}
}
