package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Runtime wraps a goja VM driven by a single event-loop goroutine
type Runtime struct {
	vm     *goja.Runtime
	config Config
	logger *zap.Logger

	jobs      chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Interrupt bookkeeping: only the job that a canceled caller owns
	// may be interrupted
	runMu   sync.Mutex
	running uint64
	nextJob uint64

	// Loop-owned state
	timers      map[int64]*timer
	nextTimer   int64
	responseSym *goja.Symbol

	console   []LogEntry
	consoleMu sync.Mutex

	faultMu sync.RWMutex
	onFault func(Diagnostic)
}

// New creates a runtime and starts its loop
func New(config Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}

	r := &Runtime{
		vm:          goja.New(),
		config:      config,
		logger:      logger.With(zap.String("runtime", config.Name)),
		jobs:        make(chan func(), config.QueueSize),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
		timers:      make(map[int64]*timer),
		responseSym: goja.NewSymbol("mixfetch.response"),
	}

	if config.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	if err := r.setupGlobals(); err != nil {
		return nil, fmt.Errorf("setup globals: %w", err)
	}

	go r.loop()

	return r, nil
}

// Name returns the runtime name
func (r *Runtime) Name() string {
	return r.config.Name
}

// Origin returns the origin used for blob handles
func (r *Runtime) Origin() string {
	return r.config.Origin
}

// Logger returns the runtime's logger
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// SetFaultHandler registers fn to receive fault diagnostics
func (r *Runtime) SetFaultHandler(fn func(Diagnostic)) {
	r.faultMu.Lock()
	defer r.faultMu.Unlock()
	r.onFault = fn
}

// ReportFault logs d and forwards it to the fault handler
func (r *Runtime) ReportFault(d Diagnostic) {
	if d.Module == "" {
		d.Module = r.config.Name
	}
	if d.Time.IsZero() {
		d.Time = time.Now()
	}

	r.logger.Error("module fault",
		zap.String("module", d.Module),
		zap.String("message", d.Message),
		zap.String("stack", d.Stack),
	)

	r.faultMu.RLock()
	fn := r.onFault
	r.faultMu.RUnlock()
	if fn != nil {
		fn(d)
	}
}

func (r *Runtime) loop() {
	defer close(r.done)
	defer r.stopTimers()

	for {
		select {
		case <-r.closing:
			return
		default:
		}

		select {
		case job := <-r.jobs:
			job()
		case <-r.closing:
			return
		}
	}
}

// Post enqueues fn on the loop without waiting for it to run
func (r *Runtime) Post(fn func(vm *goja.Runtime)) error {
	return r.post(context.Background(), func() {
		_ = r.protect(func() error {
			fn(r.vm)
			return nil
		})
	})
}

func (r *Runtime) post(ctx context.Context, job func()) error {
	select {
	case <-r.closing:
		return ErrClosed
	default:
	}

	select {
	case r.jobs <- job:
		return nil
	case <-r.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it. If ctx ends while fn is
// running, the VM is interrupted and Do returns ctx.Err().
func (r *Runtime) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	errc := make(chan error, 1)
	jobID := r.newJobID()

	err := r.post(ctx, func() {
		if ctx.Err() != nil {
			errc <- ctx.Err()
			return
		}
		r.beginJob(jobID)
		defer r.endJob()
		errc <- r.protect(func() error { return fn(r.vm) })
	})
	if err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		r.interruptJob(jobID, ctx.Err())
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func (r *Runtime) newJobID() uint64 {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	r.nextJob++
	return r.nextJob
}

func (r *Runtime) beginJob(id uint64) {
	r.runMu.Lock()
	r.running = id
	r.runMu.Unlock()
}

func (r *Runtime) endJob() {
	r.runMu.Lock()
	r.running = 0
	r.vm.ClearInterrupt()
	r.runMu.Unlock()
}

func (r *Runtime) interruptJob(id uint64, reason interface{}) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running == id {
		r.vm.Interrupt(reason)
	}
}

// protect runs fn converting Go panics into fault errors
func (r *Runtime) protect(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d := Diagnostic{
				Module:  r.config.Name,
				Message: fmt.Sprint(p),
				Stack:   string(debug.Stack()),
				Time:    time.Now(),
			}
			r.ReportFault(d)
			err = &FaultError{Diagnostic: d}
		}
	}()
	return fn()
}

// Close stops the loop, interrupting any running job
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		close(r.closing)
		r.vm.Interrupt(ErrClosed)
		<-r.done
	})
	return nil
}

// Done is closed once the loop has exited
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Console returns a copy of the recent console history
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "debug", "warn", "error"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}

	if err := r.installTimers(); err != nil {
		return err
	}

	return r.installResponse()
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !r.config.EnableConsole {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := joinArgs(parts)

		switch level {
		case "debug":
			r.logger.Debug(msg, zap.String("source", "console"))
		case "warn":
			r.logger.Warn(msg, zap.String("source", "console"))
		case "error":
			r.logger.Error(msg, zap.String("source", "console"))
		default:
			r.logger.Info(msg, zap.String("source", "console"))
		}

		if r.config.ConsoleHistory > 0 {
			r.consoleMu.Lock()
			r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
			if over := len(r.console) - r.config.ConsoleHistory; over > 0 {
				r.console = append(r.console[:0:0], r.console[over:]...)
			}
			r.consoleMu.Unlock()
		}

		return goja.Undefined()
	}
}

// InstallPanicHook defines the global __mixfetch_panic_hook(message, stack)
// that module bindings call when they fault internally
func (r *Runtime) InstallPanicHook(module string) error {
	return r.Do(context.Background(), func(vm *goja.Runtime) error {
		return vm.Set(PanicHookGlobal, func(call goja.FunctionCall) goja.Value {
			r.ReportFault(Diagnostic{
				Module:  module,
				Message: call.Argument(0).String(),
				Stack:   optionalString(call.Argument(1)),
			})
			return goja.Undefined()
		})
	})
}

// PanicHookGlobal is the global that receives module fault reports
const PanicHookGlobal = "__mixfetch_panic_hook"

func optionalString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
