package sandbox

import (
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type timer struct {
	t      *time.Timer
	fn     goja.Callable
	args   []goja.Value
	delay  time.Duration
	repeat bool
}

func (r *Runtime) installTimers() error {
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":     func(call goja.FunctionCall) goja.Value { return r.schedule(call, false) },
		"setInterval":    func(call goja.FunctionCall) goja.Value { return r.schedule(call, true) },
		"clearTimeout":   r.clearTimer,
		"clearInterval":  r.clearTimer,
		"queueMicrotask": r.queueMicrotask,
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// schedule runs on the loop; the timer fires by posting back onto it
func (r *Runtime) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("callback must be a function"))
	}

	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay == 0 {
		delay = time.Millisecond
	}

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	r.nextTimer++
	id := r.nextTimer
	tm := &timer{fn: fn, args: args, delay: delay, repeat: repeat}
	r.timers[id] = tm
	tm.t = time.AfterFunc(delay, func() { r.fire(id) })

	return r.vm.ToValue(id)
}

func (r *Runtime) fire(id int64) {
	_ = r.Post(func(vm *goja.Runtime) {
		tm, ok := r.timers[id]
		if !ok {
			return
		}
		if tm.repeat {
			tm.t.Reset(tm.delay)
		} else {
			delete(r.timers, id)
		}

		if _, err := tm.fn(goja.Undefined(), tm.args...); err != nil {
			r.logger.Warn("timer callback failed", zap.Error(ErrorFromException(vm, err)))
		}
	})
}

func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if tm, ok := r.timers[id]; ok {
		tm.t.Stop()
		delete(r.timers, id)
	}
	return goja.Undefined()
}

func (r *Runtime) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("callback must be a function"))
	}
	p := Resolved(r.vm, goja.Undefined())
	_ = Then(r.vm, p,
		func(goja.Value) {
			if _, err := fn(goja.Undefined()); err != nil {
				r.logger.Warn("microtask failed", zap.Error(ErrorFromException(r.vm, err)))
			}
		},
		func(goja.Value) {},
	)
	return goja.Undefined()
}

// PendingTimers returns the number of armed timers. Must run on the loop.
func (r *Runtime) PendingTimers() int {
	return len(r.timers)
}

func (r *Runtime) stopTimers() {
	for id, tm := range r.timers {
		tm.t.Stop()
		delete(r.timers, id)
	}
}
