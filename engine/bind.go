package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/modra-dev/modra/hostcap"
	"github.com/modra-dev/modra/sandbox"
)

// setupGlobals installs the capability surface and strips the ambient
// globals a script could otherwise use to reach outside the sandbox. Must
// run on the context's loop before any module is loaded.
func (c *Context) setupGlobals(vm *goja.Runtime) error {
	// No ambient module system. Modules get a scoped require through the
	// loader wrapper; the globals stay empty.
	for _, name := range []string{"require", "process", "module", "exports", "global"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if err := c.bindConsole(vm); err != nil {
		return err
	}
	if err := c.bindHostFuncs(vm); err != nil {
		return err
	}
	if err := c.bindFS(vm); err != nil {
		return err
	}
	if err := c.bindHTTP(vm); err != nil {
		return err
	}
	return c.bindTimers(vm)
}

// bindConsole routes script console output through the structured logger
// (and the console writer, when configured).
func (c *Context) bindConsole(vm *goja.Runtime) error {
	obj := vm.NewObject()
	levels := map[string]func(string, ...zap.Field){
		"log":   c.log.Info,
		"info":  c.log.Info,
		"warn":  c.log.Warn,
		"error": c.log.Error,
		"debug": c.log.Debug,
	}
	for name, emit := range levels {
		emit := emit
		fn := func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			line := strings.Join(parts, " ")
			emit(line, zap.String("source", "script"))
			if c.cfg.consoleW != nil {
				fmt.Fprintln(c.cfg.consoleW, line)
			}
			return goja.Undefined()
		}
		if err := obj.Set(name, fn); err != nil {
			return err
		}
	}
	return vm.Set("console", obj)
}

// bindHostFuncs exposes the configured host functions as host.<name>(args).
// Each takes a single object argument and returns whatever the host function
// produced; host errors surface as catchable script exceptions.
func (c *Context) bindHostFuncs(vm *goja.Runtime) error {
	if c.cfg.hostfuncs == nil {
		return vm.Set("host", vm.NewObject())
	}
	obj := vm.NewObject()
	for name, fn := range c.cfg.hostfuncs.All() {
		name, fn := name, fn
		bridge := func(call goja.FunctionCall) goja.Value {
			args := map[string]any{}
			if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
				m, ok := arg.Export().(map[string]any)
				if !ok {
					panic(vm.NewGoError(fmt.Errorf("host.%s: argument must be an object", name)))
				}
				args = m
			}
			res, err := fn(context.Background(), args)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			if res == nil {
				return goja.Null()
			}
			return vm.ToValue(res)
		}
		if err := obj.Set(name, bridge); err != nil {
			return err
		}
	}
	return vm.Set("host", obj)
}

func (c *Context) bindFS(vm *goja.Runtime) error {
	if c.policy.Filesystem != sandbox.Allow {
		obj, err := deniedObject(vm, "filesystem",
			"readText", "writeText", "list", "exists", "stat", "mkdir", "remove")
		if err != nil {
			return err
		}
		return vm.Set("fs", obj)
	}
	fs := hostcap.NewFS(c.policy.Mounts, c.policy.Limits)
	obj := vm.NewObject()
	if err := setAll(obj, map[string]any{
		"readText": func(path string) string {
			s, err := fs.ReadText(path)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return s
		},
		"writeText": func(path, content string) {
			if err := fs.WriteText(path, content); err != nil {
				panic(vm.NewGoError(err))
			}
		},
		"list": func(path string) []hostcap.Entry {
			entries, err := fs.List(path)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return entries
		},
		"exists": fs.Exists,
		"stat": func(path string) hostcap.Stat {
			st, err := fs.Stat(path)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return st
		},
		"mkdir": func(path string) {
			if err := fs.Mkdir(path); err != nil {
				panic(vm.NewGoError(err))
			}
		},
		"remove": func(path string) {
			if err := fs.Remove(path); err != nil {
				panic(vm.NewGoError(err))
			}
		},
	}); err != nil {
		return err
	}
	return vm.Set("fs", obj)
}

func (c *Context) bindHTTP(vm *goja.Runtime) error {
	if c.policy.Network != sandbox.Allow {
		obj, err := deniedObject(vm, "network", "get", "request")
		if err != nil {
			return err
		}
		return vm.Set("http", obj)
	}
	client := hostcap.NewHTTP(c.policy.AllowedHosts, c.policy.Limits)
	obj := vm.NewObject()
	if err := setAll(obj, map[string]any{
		"get": func(rawURL string) hostcap.Response {
			resp, err := client.Get(rawURL)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return resp
		},
		"request": func(req hostcap.Request) hostcap.Response {
			resp, err := client.Request(req)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return resp
		},
	}); err != nil {
		return err
	}
	return vm.Set("http", obj)
}

func setAll(obj *goja.Object, members map[string]any) error {
	for name, v := range members {
		if err := obj.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// bindTimers removes the event loop's timer globals when the policy denies
// them. Granted timers keep the loop's own implementations.
func (c *Context) bindTimers(vm *goja.Runtime) error {
	if c.policy.Timers == sandbox.Allow {
		return nil
	}
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval", "setImmediate", "clearImmediate"} {
		if err := vm.Set(name, deniedFunc(vm, "timer")); err != nil {
			return err
		}
	}
	return nil
}

// deniedFunc returns a stub that throws on call. Denied capabilities
// always throw, never no-op.
func deniedFunc(vm *goja.Runtime, what string) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(fmt.Errorf("%w: %s access denied by sandbox policy", ErrCapabilityDenied, what)))
	}
}

func deniedObject(vm *goja.Runtime, what string, methods ...string) (*goja.Object, error) {
	obj := vm.NewObject()
	for _, m := range methods {
		if err := obj.Set(m, deniedFunc(vm, what)); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
