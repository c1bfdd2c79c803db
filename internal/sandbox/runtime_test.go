package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(DefaultConfig("test"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func eval(t *testing.T, rt *Runtime, src string) interface{} {
	t.Helper()
	var out interface{}
	err := rt.Do(context.Background(), func(vm *goja.Runtime) error {
		v, err := vm.RunString(src)
		if err != nil {
			return err
		}
		out = v.Export()
		return nil
	})
	require.NoError(t, err)
	return out
}

func awaitString(ctx context.Context, rt *Runtime, src string) (string, error) {
	return Await(ctx, rt,
		func(vm *goja.Runtime) (goja.Value, error) { return vm.RunString(src) },
		func(vm *goja.Runtime, v goja.Value) (string, error) { return v.String(), nil },
	)
}

func TestRuntimeDo(t *testing.T) {
	rt := newTestRuntime(t)

	tests := []struct {
		name   string
		script string
		want   interface{}
	}{
		{"simple return", "42", int64(42)},
		{"array length", "[1, 2, 3].length", int64(3)},
		{"string operations", "'hello'.toUpperCase()", "HELLO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, rt, tt.script))
		})
	}
}

func TestRuntimeGlobalsRemoved(t *testing.T) {
	rt := newTestRuntime(t)

	for _, name := range []string{"require", "process", "module", "exports"} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "undefined", eval(t, rt, "typeof "+name))
		})
	}
}

func TestRuntimeConsoleRoutedToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rt, err := New(DefaultConfig("primary"), zap.New(core))
	require.NoError(t, err)
	defer rt.Close()

	eval(t, rt, `
		console.log('info message', 1);
		console.warn('warning message');
		console.error('error message');
	`)

	entries := rt.Console()
	require.Len(t, entries, 3)
	assert.Equal(t, "info message 1", entries[0].Message)

	levels := []string{"log", "warn", "error"}
	for i, entry := range entries {
		assert.Equal(t, levels[i], entry.Level)
	}

	warn := logs.FilterMessage("warning message").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zap.WarnLevel, warn[0].Level)
	assert.Equal(t, "primary", warn[0].ContextMap()["runtime"])
}

func TestRuntimeConsoleHistoryBounded(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ConsoleHistory = 2
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	eval(t, rt, `for (let i = 0; i < 5; i++) console.log('n' + i)`)

	entries := rt.Console()
	require.Len(t, entries, 2)
	assert.Equal(t, "n3", entries[0].Message)
	assert.Equal(t, "n4", entries[1].Message)
}

func TestRuntimeDoInterruptsOnCancel(t *testing.T) {
	rt := newTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rt.Do(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunString(`while (true) {}`)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the loop recovers and keeps serving jobs
	assert.Equal(t, int64(2), eval(t, rt, "1 + 1"))
}

func TestRuntimeFaultRecovered(t *testing.T) {
	rt := newTestRuntime(t)

	var got []Diagnostic
	var mu sync.Mutex
	rt.SetFaultHandler(func(d Diagnostic) {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
	})

	err := rt.Do(context.Background(), func(vm *goja.Runtime) error {
		panic("index out of range")
	})

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "test", fault.Diagnostic.Module)
	assert.Equal(t, "index out of range", fault.Diagnostic.Message)
	assert.NotEmpty(t, fault.Diagnostic.Stack)

	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()

	assert.Equal(t, int64(3), eval(t, rt, "1 + 2"))
}

func TestRuntimePanicHook(t *testing.T) {
	rt := newTestRuntime(t)

	diags := make(chan Diagnostic, 1)
	rt.SetFaultHandler(func(d Diagnostic) { diags <- d })
	require.NoError(t, rt.InstallPanicHook("primary"))

	eval(t, rt, `__mixfetch_panic_hook('unreachable executed', 'at wasm-function[12]')`)

	select {
	case d := <-diags:
		assert.Equal(t, "primary", d.Module)
		assert.Equal(t, "unreachable executed", d.Message)
		assert.Equal(t, "at wasm-function[12]", d.Stack)
	case <-time.After(time.Second):
		t.Fatal("panic hook did not report")
	}
}

func TestAwaitResolvesPromise(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := awaitString(context.Background(), rt,
		`new Promise(resolve => setTimeout(() => resolve('later'), 10))`)
	require.NoError(t, err)
	assert.Equal(t, "later", got)

	got, err = awaitString(context.Background(), rt, `'plain'`)
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestAwaitRejection(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := awaitString(context.Background(), rt, `
		(async () => {
			const e = new Error('gateway went away');
			e.name = 'SessionError';
			throw e;
		})()
	`)

	var jsErr *JSError
	require.ErrorAs(t, err, &jsErr)
	assert.Equal(t, "SessionError", jsErr.Name)
	assert.Equal(t, "gateway went away", jsErr.Message)
	assert.True(t, IsJSError(err, "SessionError"))
}

func TestAwaitSyncThrow(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := awaitString(context.Background(), rt, `throw new TypeError('bad')`)
	assert.True(t, IsJSError(err, "TypeError"))
}

func TestAwaitInterleaves(t *testing.T) {
	rt := newTestRuntime(t)
	eval(t, rt, `function delayed(v, ms) { return new Promise(r => setTimeout(() => r(v), ms)); }`)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	run := func(src string) {
		defer wg.Done()
		v, err := awaitString(context.Background(), rt, src)
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
	}

	wg.Add(2)
	go run(`delayed('slow', 150)`)
	time.Sleep(20 * time.Millisecond)
	go run(`delayed('fast', 10)`)
	wg.Wait()

	assert.Equal(t, []string{"fast", "slow"}, order)
}

func TestAwaitContextCanceled(t *testing.T) {
	rt := newTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := awaitString(ctx, rt, `new Promise(() => {})`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimersClear(t *testing.T) {
	rt := newTestRuntime(t)

	eval(t, rt, `
		globalThis.hits = 0;
		const id = setTimeout(() => { hits++; }, 10);
		clearTimeout(id);
		const iv = setInterval(() => { hits += 10; if (hits >= 30) clearInterval(iv); }, 5);
	`)

	assert.Eventually(t, func() bool {
		return eval(t, rt, "hits") == int64(30)
	}, time.Second, 10*time.Millisecond)

	var pending int
	require.NoError(t, rt.Do(context.Background(), func(vm *goja.Runtime) error {
		pending = rt.PendingTimers()
		return nil
	}))
	assert.Zero(t, pending)
}

func TestQueueMicrotask(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := awaitString(context.Background(), rt, `
		new Promise(resolve => { queueMicrotask(() => resolve('micro')); })
	`)
	require.NoError(t, err)
	assert.Equal(t, "micro", got)
}

func TestRuntimeClosed(t *testing.T) {
	rt, err := New(DefaultConfig("test"), nil)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())

	err = rt.Do(context.Background(), func(vm *goja.Runtime) error { return nil })
	assert.True(t, errors.Is(err, ErrClosed))
	assert.ErrorIs(t, rt.Post(func(vm *goja.Runtime) {}), ErrClosed)

	select {
	case <-rt.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestPromiseHelpers(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := Await(context.Background(), rt,
		func(vm *goja.Runtime) (goja.Value, error) {
			p, resolve, _, err := NewPromise(vm)
			if err != nil {
				return nil, err
			}
			_ = rt.Post(func(vm *goja.Runtime) { resolve(vm.ToValue(7)) })
			return p, nil
		},
		func(vm *goja.Runtime, v goja.Value) (int64, error) { return v.ToInteger(), nil },
	)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	sentinel := errors.New("connection refused")
	_, err = Await(context.Background(), rt,
		func(vm *goja.Runtime) (goja.Value, error) { return Rejected(vm, sentinel), nil },
		func(vm *goja.Runtime, v goja.Value) (int64, error) { return 0, nil },
	)
	assert.ErrorIs(t, err, sentinel)
}
