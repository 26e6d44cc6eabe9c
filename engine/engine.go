package engine

import (
	"github.com/modra-dev/modra/codec"
	"github.com/modra-dev/modra/registry"
	"github.com/modra-dev/modra/sandbox"
)

// Runtime is the host-facing façade over one execution context. It loads
// modules, invokes their exports with neutral values, and tears the whole
// context down on Close. A Runtime is safe for use from multiple goroutines;
// operations serialize on the context's single engine.
type Runtime struct {
	ctx *Context
}

// New creates a runtime governed by the given sandbox policy. The policy is
// copied; later mutation of the caller's value has no effect.
func New(policy sandbox.Policy, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, err := newContext(policy, cfg)
	if err != nil {
		return nil, err
	}
	return &Runtime{ctx: ctx}, nil
}

// LoadModule evaluates a module's top-level code and returns its handle.
// Loading the same source again returns the existing handle without
// re-executing anything.
func (r *Runtime) LoadModule(src registry.Source) (registry.Handle, error) {
	return r.ctx.Load(src)
}

// Call invokes an exported function by name with the given arguments and
// returns its result as a neutral value. Promise results are awaited.
func (r *Runtime) Call(h registry.Handle, fn string, args ...codec.Value) (codec.Value, error) {
	return r.ctx.Invoke(h, fn, args)
}

// CallEntrypoint invokes the module's entry point (by default its "default"
// export, resolved and cached at load time).
func (r *Runtime) CallEntrypoint(h registry.Handle, args ...codec.Value) (codec.Value, error) {
	return r.ctx.InvokeEntry(h, args)
}

// GetExport reads an exported binding by name as a neutral value without
// calling anything.
func (r *Runtime) GetExport(h registry.Handle, name string) (codec.Value, error) {
	return r.ctx.Export(h, name)
}

// HandleFor recovers a handle from its serialized ID, as produced by
// Handle.String. Used when handles cross a wire boundary.
func (r *Runtime) HandleFor(id string) (registry.Handle, bool) {
	return r.ctx.HandleFor(id)
}

// Degraded reports whether a timed-out call left the runtime unusable.
func (r *Runtime) Degraded() bool {
	return r.ctx.Degraded()
}

// Close releases the runtime. All handles it issued are invalid afterwards;
// Close is idempotent.
func (r *Runtime) Close() error {
	return r.ctx.Close()
}
