// Package lua hosts plugin scripts in a sandboxed gopher-lua state. Each
// plugin gets its own Runtime; the host API reaches the script only
// through the tl module bound by the plugin host.
package lua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds one top-level script entry. A plugin stuck in
// a loop fails its call instead of wedging the host.
const DefaultCallTimeout = 5 * time.Second

// Runtime wraps one plugin's Lua state.
//
// gopher-lua's LState is not goroutine-safe. The host enters plugin
// scripts from a single goroutine; the mutex serializes top-level
// entries while the depth counter admits nested entries, which occur
// when a running script emits an event whose callback lands back in the
// same state on the same stack.
type Runtime struct {
	mu      sync.Mutex
	depth   atomic.Int32
	L       *lua.LState
	modules map[string]lua.LValue
	timeout time.Duration
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCallTimeout sets the per-entry execution budget. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.timeout = d }
}

// NewRuntime creates a sandboxed Lua state with only safe libraries open.
func NewRuntime(opts ...Option) *Runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// io, os, debug and package stay closed: scripts get no filesystem,
	// process or loader access.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	r := &Runtime{L: L, modules: map[string]lua.LValue{}, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(r)
	}
	r.harden()
	return r
}

// harden removes base-library escape hatches from the state and replaces
// require with a lookup over host-registered modules only.
func (r *Runtime) harden() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		r.L.SetGlobal(name, lua.LNil)
	}

	r.L.SetGlobal("require", r.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		mod, ok := r.modules[name]
		if !ok {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(mod)
		return 1
	}))
}

// enter acquires the state for one script call. A nested entry while a
// call is already on the stack reuses the held lock; that path is only
// reachable synchronously from the running script's own goroutine.
func (r *Runtime) enter() (func(), error) {
	if r.depth.Load() > 0 {
		r.depth.Add(1)
		return func() { r.depth.Add(-1) }, nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRuntimeClosed
	}
	r.depth.Add(1)

	// The execution budget covers the whole top-level entry, nested
	// callbacks included.
	cancel := func() {}
	if r.timeout > 0 {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
		r.L.SetContext(ctx)
	}
	return func() {
		if r.timeout > 0 {
			r.L.RemoveContext()
		}
		cancel()
		r.depth.Add(-1)
		r.mu.Unlock()
	}, nil
}

// DoFile executes a script file in the runtime.
func (r *Runtime) DoFile(path string) error {
	exit, err := r.enter()
	if err != nil {
		return err
	}
	defer exit()
	return r.protect(func() error { return r.L.DoFile(path) })
}

// DoString executes Lua source in the runtime.
func (r *Runtime) DoString(code string) error {
	exit, err := r.enter()
	if err != nil {
		return err
	}
	defer exit()
	return r.protect(func() error { return r.L.DoString(code) })
}

// HasFunction reports whether the script defines the named global
// function.
func (r *Runtime) HasFunction(name string) bool {
	exit, err := r.enter()
	if err != nil {
		return false
	}
	defer exit()
	return r.L.GetGlobal(name).Type() == lua.LTFunction
}

// CallFunction calls a global script function, discarding results.
// Calling a missing global is an ErrNotAFunction.
func (r *Runtime) CallFunction(name string, args ...lua.LValue) error {
	exit, err := r.enter()
	if err != nil {
		return err
	}
	defer exit()

	fn := r.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("%w: %q", ErrNotAFunction, name)
	}
	return r.callLocked(fn, args)
}

// Call invokes a Lua function value, discarding results. Host callbacks
// registered by scripts are delivered through here.
func (r *Runtime) Call(fn lua.LValue, args ...lua.LValue) error {
	exit, err := r.enter()
	if err != nil {
		return err
	}
	defer exit()

	if fn.Type() != lua.LTFunction {
		return ErrNotAFunction
	}
	return r.callLocked(fn, args)
}

// CallWith is Call with arguments built inside the state lock, for
// callbacks that must materialize Lua tables at delivery time.
func (r *Runtime) CallWith(fn lua.LValue, build func(*lua.LState) []lua.LValue) error {
	exit, err := r.enter()
	if err != nil {
		return err
	}
	defer exit()

	if fn.Type() != lua.LTFunction {
		return ErrNotAFunction
	}
	return r.callLocked(fn, build(r.L))
}

func (r *Runtime) callLocked(fn lua.LValue, args []lua.LValue) error {
	return r.protect(func() error {
		return r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
}

// Preload registers a module value so scripts can require(name).
func (r *Runtime) Preload(name string, mod lua.LValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.modules[name] = mod
}

// State exposes the raw LState for the tl module binder. The binder runs
// before any script code and must not retain the state past Close.
func (r *Runtime) State() *lua.LState {
	return r.L
}

// IsClosed reports whether Close has been called.
func (r *Runtime) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the Lua state. Further calls fail with ErrRuntimeClosed.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}

// protect converts a Lua panic into an error so a broken script cannot
// unwind into the host.
func (r *Runtime) protect(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}
