package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/modra-dev/modra/registry"
)

// loadSource resolves, transpiles, and evaluates one module. Must run on
// the context's loop. Loading the same identity twice returns the cached
// module without re-executing it; loading a module that is still executing
// its top-level code fails with ErrCircularImport.
func (c *Context) loadSource(vm *goja.Runtime, src registry.Source) (*registry.Module, error) {
	id, err := src.Identity()
	if err != nil {
		return nil, err
	}
	if m, ok := c.mods.Lookup(id); ok {
		if !m.Loaded() {
			return nil, fmt.Errorf("%w: %s", registry.ErrCircularImport, id)
		}
		if src.IsInline() && m.Digest() != src.Digest() {
			return nil, fmt.Errorf("%w: inline module %q already loaded with different source", registry.ErrDuplicateName, id)
		}
		return m, nil
	}

	dir, err := src.Dir()
	if err != nil {
		return nil, err
	}
	text, err := src.Read()
	if err != nil {
		return nil, err
	}
	prog, err := c.compile(id, text)
	if err != nil {
		return nil, err
	}

	m, err := c.mods.Begin(id, dir, src.IsInline(), src.Digest())
	if err != nil {
		return nil, err
	}
	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		c.mods.Fail(m)
		return nil, wrapScriptErr(err)
	}
	wrapper, ok := goja.AssertFunction(fnVal)
	if !ok {
		c.mods.Fail(m)
		return nil, fmt.Errorf("%w: %s: wrapper did not evaluate to a function", ErrParse, id)
	}

	exportsObj := vm.NewObject()
	moduleObj := vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	if err := c.execWrapper(vm, m, wrapper, exportsObj, moduleObj); err != nil {
		c.mods.Fail(m)
		return nil, err
	}

	exports := moduleObj.Get("exports")
	var entry goja.Callable
	if obj, ok := exports.(*goja.Object); ok && obj != nil {
		if fn, isFn := goja.AssertFunction(obj.Get(c.cfg.entryName)); isFn {
			entry = fn
		}
	}
	c.mods.Complete(m, exports, entry)
	c.log.Debug("module loaded",
		zap.String("module", m.Name),
		zap.Bool("inline", m.Inline),
		zap.Int("modules", c.mods.Len()))
	return m, nil
}

// execWrapper runs the module's top-level code. Failed imports propagate as
// panics through the script frames; the recover here makes sure the module
// is failed out of the registry before the error reaches the caller.
func (c *Context) execWrapper(vm *goja.Runtime, m *registry.Module, wrapper goja.Callable, exportsObj, moduleObj *goja.Object) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	_, err = wrapper(goja.Undefined(),
		exportsObj,
		c.requireFor(vm, m),
		moduleObj,
		vm.ToValue(m.Name),
		vm.ToValue(m.Dir),
	)
	if err != nil {
		err = wrapScriptErr(err)
	}
	return err
}

// compile transpiles module text to the wrapped loader form and compiles it.
// Transpilation lowers module export/import syntax and TypeScript to plain
// script code the engine accepts.
func (c *Context) compile(id, text string) (*goja.Program, error) {
	loader := api.LoaderJS
	if strings.HasSuffix(id, ".ts") {
		loader = api.LoaderTS
	}
	res := api.Transform(text, api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: id,
	})
	if len(res.Errors) > 0 {
		e := res.Errors[0]
		loc := ""
		if e.Location != nil {
			loc = fmt.Sprintf(" (%s:%d:%d)", e.Location.File, e.Location.Line, e.Location.Column)
		}
		return nil, fmt.Errorf("%w: %s%s", ErrParse, e.Text, loc)
	}

	wrapped := "(function(exports, require, module, __filename, __dirname) {\n" +
		string(res.Code) + "\n})"
	prog, err := goja.Compile(id, wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, id, err)
	}
	return prog, nil
}

// requireFor builds the module-scoped require for imports relative to from.
// Resolution failures are host-level: they panic with loadError so script
// try/catch cannot swallow them.
func (c *Context) requireFor(vm *goja.Runtime, from *registry.Module) goja.Value {
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		m, err := c.loadImport(vm, from, spec)
		if err != nil {
			panic(loadError{err})
		}
		v, _ := m.Exports.(goja.Value)
		if v == nil {
			return goja.Undefined()
		}
		return v
	})
}

func (c *Context) loadImport(vm *goja.Runtime, from *registry.Module, spec string) (*registry.Module, error) {
	resolved, err := registry.ResolveSpecifier(from.Dir, from.Inline, spec)
	if err != nil {
		return nil, err
	}
	for _, cand := range registry.Candidates(resolved, from.Inline) {
		if from.Inline {
			// Inline modules import only modules already in the registry.
			if m, ok := c.mods.Lookup(cand); ok {
				if !m.Loaded() {
					return nil, fmt.Errorf("%w: %s", registry.ErrCircularImport, cand)
				}
				return m, nil
			}
			continue
		}
		if m, ok := c.mods.Lookup(cand); ok {
			if !m.Loaded() {
				return nil, fmt.Errorf("%w: %s", registry.ErrCircularImport, cand)
			}
			return m, nil
		}
		if _, statErr := os.Stat(cand); statErr == nil {
			return c.loadSource(vm, registry.File(cand))
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %v", registry.ErrNotFound, cand, statErr)
		}
	}
	return nil, fmt.Errorf("%w: %q imported from %s", registry.ErrNotFound, spec, from.Name)
}
