// Package engine owns the scripting-engine instances. Each Context wraps one
// goja runtime on one event loop; the Runtime façade composes a context with
// the module registry, the value codec, and the sandbox policy into the
// public host-facing API.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/modra-dev/modra/codec"
	"github.com/modra-dev/modra/registry"
	"github.com/modra-dev/modra/sandbox"
)

// Context owns exactly one scripting-engine instance and every module loaded
// into it. All evaluation runs on the context's event loop, one operation at
// a time; handles issued by a context are meaningless anywhere else and are
// invalidated by Close.
type Context struct {
	policy sandbox.Policy
	cfg    config
	log    *zap.Logger

	loop *eventloop.EventLoop
	vm   *goja.Runtime
	mods *registry.Registry

	mu       sync.Mutex
	closed   bool
	degraded bool
}

func newContext(policy sandbox.Policy, cfg config) (*Context, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	c := &Context{
		policy: policy.Clone(),
		cfg:    cfg,
		log:    cfg.logger,
		mods:   registry.New(),
	}
	c.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	c.loop.Start()

	var initErr error
	c.run(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				initErr = fmt.Errorf("%v", r)
			}
		}()
		c.vm = vm
		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
		initErr = c.setupGlobals(vm)
	})
	if initErr != nil {
		c.loop.Stop()
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, initErr)
	}
	return c, nil
}

// run executes fn on the context's loop and waits for it to return. The
// loop serializes evaluation: at most one script runs per context at a time.
func (c *Context) run(fn func(vm *goja.Runtime)) {
	done := make(chan struct{})
	c.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer close(done)
		fn(vm)
	})
	<-done
}

// guard reports lifecycle errors. Caller holds mu.
func (c *Context) guard() error {
	if c.closed {
		return ErrClosed
	}
	if c.degraded {
		return ErrDegraded
	}
	return nil
}

// watchdog interrupts the engine when the call timeout expires. The
// returned stop func disarms it.
func (c *Context) watchdog() func() {
	if c.cfg.callTimeout <= 0 {
		return func() {}
	}
	t := time.AfterFunc(c.cfg.callTimeout, func() {
		c.vm.Interrupt("call timeout")
	})
	return func() { t.Stop() }
}

// Load resolves a module source, evaluates its top-level code, and returns
// its handle. Reloading a module with the same resolved identity returns
// the existing handle without re-executing it.
func (c *Context) Load(src registry.Source) (registry.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return registry.Handle{}, err
	}
	stop := c.watchdog()
	defer stop()

	var h registry.Handle
	var loadErr error
	c.run(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				loadErr = recovered(r)
			}
		}()
		m, err := c.loadSource(vm, src)
		if err != nil {
			loadErr = err
			return
		}
		h = m.Handle()
	})
	if errors.Is(loadErr, ErrTimeout) {
		c.degraded = true
	}
	return h, loadErr
}

// Invoke calls an exported function by name.
func (c *Context) Invoke(h registry.Handle, name string, args []codec.Value) (codec.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return codec.Value{}, err
	}
	m, err := c.mods.Get(h)
	if err != nil {
		return codec.Value{}, err
	}
	return c.invoke(m, func(vm *goja.Runtime) (goja.Callable, error) {
		return c.resolveExportFn(vm, m, name)
	}, args)
}

// InvokeEntry calls the module's entry point through the reference cached
// at load time. Observably equivalent to Invoke with the configured entry
// name; the cache only skips the repeated export-table lookup.
func (c *Context) InvokeEntry(h registry.Handle, args []codec.Value) (codec.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return codec.Value{}, err
	}
	m, err := c.mods.Get(h)
	if err != nil {
		return codec.Value{}, err
	}
	return c.invoke(m, func(vm *goja.Runtime) (goja.Callable, error) {
		if fn, ok := m.Entry.(goja.Callable); ok && fn != nil {
			return fn, nil
		}
		return c.resolveExportFn(vm, m, c.cfg.entryName)
	}, args)
}

// Export reads an exported binding by name as a neutral value.
func (c *Context) Export(h registry.Handle, name string) (codec.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return codec.Value{}, err
	}
	m, err := c.mods.Get(h)
	if err != nil {
		return codec.Value{}, err
	}

	var out codec.Value
	var opErr error
	c.run(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				opErr = recovered(r)
			}
		}()
		obj, err := exportsObject(vm, m)
		if err != nil {
			opErr = err
			return
		}
		v := obj.Get(name)
		if v == nil || goja.IsUndefined(v) {
			opErr = fmt.Errorf("%w: %q in %s", ErrExportNotFound, name, m.Name)
			return
		}
		out, opErr = fromGoja(v)
	})
	return out, opErr
}

type settled struct {
	val codec.Value
	err error
}

// invoke runs a callable on the loop and blocks until the result is
// available. Promise results are awaited until the chain settles.
func (c *Context) invoke(m *registry.Module, resolve func(*goja.Runtime) (goja.Callable, error), args []codec.Value) (codec.Value, error) {
	stop := c.watchdog()
	defer stop()

	var result codec.Value
	var callErr error
	var pending chan settled

	c.run(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				callErr = recovered(r)
			}
		}()
		fn, err := resolve(vm)
		if err != nil {
			callErr = err
			return
		}
		gargs := make([]goja.Value, len(args))
		for i, a := range args {
			gargs[i] = toGoja(vm, a)
		}
		res, err := fn(goja.Undefined(), gargs...)
		if err != nil {
			callErr = wrapScriptErr(err)
			return
		}
		if p, ok := res.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				result, callErr = fromGoja(p.Result())
			case goja.PromiseStateRejected:
				callErr = rejection(p.Result())
			default:
				pending = make(chan settled, 1)
				attachSettle(vm, res, pending)
			}
			return
		}
		result, callErr = fromGoja(res)
	})

	if callErr == nil && pending != nil {
		var expire <-chan time.Time
		if c.cfg.callTimeout > 0 {
			expire = time.After(c.cfg.callTimeout)
		}
		select {
		case s := <-pending:
			result, callErr = s.val, s.err
		case <-expire:
			callErr = ErrTimeout
		}
	}
	if errors.Is(callErr, ErrTimeout) {
		c.degraded = true
	}
	if callErr != nil {
		c.log.Debug("invoke failed", zap.String("module", m.Name), zap.Error(callErr))
		return codec.Value{}, callErr
	}
	return result, nil
}

// attachSettle subscribes to a pending promise; the handlers run as promise
// jobs on the loop and deliver the settled outcome.
func attachSettle(vm *goja.Runtime, promise goja.Value, ch chan settled) {
	obj := promise.ToObject(vm)
	thenFn, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		ch <- settled{err: &ScriptError{Message: "result is not a thenable"}}
		return
	}
	onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := fromGoja(call.Argument(0))
		ch <- settled{val: v, err: err}
		return goja.Undefined()
	})
	onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ch <- settled{err: rejection(call.Argument(0))}
		return goja.Undefined()
	})
	if _, err := thenFn(obj, onFulfilled, onRejected); err != nil {
		ch <- settled{err: wrapScriptErr(err)}
	}
}

// rejection converts a promise rejection value into a call error.
func rejection(v goja.Value) error {
	if v == nil {
		return &ScriptError{Message: "promise rejected"}
	}
	if err := exportedError(v); err != nil {
		return err
	}
	return &ScriptError{Message: v.String()}
}

func (c *Context) resolveExportFn(vm *goja.Runtime, m *registry.Module, name string) (goja.Callable, error) {
	obj, err := exportsObject(vm, m)
	if err != nil {
		return nil, err
	}
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, fmt.Errorf("%w: %q in %s", ErrExportNotFound, name, m.Name)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &ScriptError{Message: fmt.Sprintf("export %q is not a function", name)}
	}
	return fn, nil
}

func exportsObject(vm *goja.Runtime, m *registry.Module) (*goja.Object, error) {
	v, _ := m.Exports.(goja.Value)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("%w: module %s has no exports", ErrExportNotFound, m.Name)
	}
	return v.ToObject(vm), nil
}

// HandleFor recovers a handle from its serialized ID.
func (c *Context) HandleFor(id string) (registry.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return registry.Handle{}, false
	}
	return c.mods.HandleFor(id)
}

// Degraded reports whether the context was abandoned after a timeout.
func (c *Context) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Close tears down the context. Every handle derived from it is invalid
// afterwards.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mods.Clear()
	c.loop.Stop()
	return nil
}
