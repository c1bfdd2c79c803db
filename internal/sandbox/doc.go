/*
Package sandbox hosts binary modules inside an isolated JavaScript runtime.

# Overview

A Runtime is one goja VM owned by exactly one goroutine, its event loop.
Every interaction with the VM is a job posted onto that loop, so module code
never runs concurrently with itself. Asynchronous work inside a module
(promises, timers, bridge calls) suspends without holding the loop, which
lets many in-flight fetches interleave their continuations.

# Globals

Each runtime starts with a reduced global scope:

  - require, process, module and exports are removed
  - console.* is routed to zap and kept in a short in-memory history
  - setTimeout / setInterval and their clear counterparts re-enter via the loop
  - Response constructs a Go-backed response object that host code can read

# Usage

	rt, err := sandbox.New(sandbox.DefaultConfig("primary"), logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	status, err := sandbox.Await(ctx, rt,
		func(vm *goja.Runtime) (goja.Value, error) {
			fn, _ := goja.AssertFunction(vm.Get("work"))
			return fn(goja.Undefined())
		},
		func(vm *goja.Runtime, v goja.Value) (int64, error) {
			return v.ToInteger(), nil
		},
	)

Values of type goja.Value must not escape the loop; Await converts them with
a callback that runs on the loop before handing a Go value back.

# Faults

A Go panic raised while a job runs is recovered, reported as a Diagnostic to
the fault handler, and returned to the caller as a *FaultError. The process
keeps running and the loop stays usable.
*/
package sandbox
