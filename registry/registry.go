// Package registry tracks the modules loaded into one execution context:
// their identity, source origin, load state, and exported bindings.
//
// The registry is engine-neutral: exported bindings are held as opaque
// references owned by the context's engine. It is mutated only by the owning
// context's single execution thread, so it carries no locking of its own
// (concurrent access is architecturally excluded, not merely locked).
package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports a module source that cannot be located.
	ErrNotFound = errors.New("module not found")
	// ErrDuplicateName reports two distinct sources claiming the same
	// virtual name within one context.
	ErrDuplicateName = errors.New("duplicate module name")
	// ErrCircularImport reports an import cycle. Cycles are a hard error:
	// the CommonJS-style loader would otherwise hand out partially
	// initialized exports.
	ErrCircularImport = errors.New("circular import")
	// ErrUnknownHandle reports a handle that does not belong to this
	// context (or whose context has been torn down).
	ErrUnknownHandle = errors.New("unknown module handle")
)

// Handle is an opaque reference to a loaded module. Handles are exclusively
// owned by the registry that issued them and become invalid when the owning
// context is torn down. The zero Handle is invalid.
type Handle struct {
	id string
}

// Valid reports whether the handle was issued by a registry.
func (h Handle) Valid() bool { return h.id != "" }

func (h Handle) String() string { return h.id }

type loadState int

const (
	stateLoading loadState = iota
	stateLoaded
)

// Module is one loaded (or currently loading) module.
type Module struct {
	Name   string // canonical identity
	Dir    string // origin directory for relative import resolution
	Inline bool

	// Exports and Entry are engine-owned references: the module's export
	// table and its pre-resolved entry-point callable, if any.
	Exports any
	Entry   any

	handle Handle
	digest string
	state  loadState
}

// Handle returns the module's opaque handle.
func (m *Module) Handle() Handle { return m.handle }

// Loaded reports whether top-level evaluation has completed.
func (m *Module) Loaded() bool { return m.state == stateLoaded }

// Digest returns the inline content digest ("" for file modules).
func (m *Module) Digest() string { return m.digest }

// Registry is the module table for one execution context.
type Registry struct {
	byName map[string]*Module
	byID   map[string]*Module
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Module),
		byID:   make(map[string]*Module),
	}
}

// Lookup returns the module registered under the given identity.
func (r *Registry) Lookup(name string) (*Module, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Get returns the module for a handle issued by this registry.
func (r *Registry) Get(h Handle) (*Module, error) {
	m, ok := r.byID[h.id]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return m, nil
}

// Begin registers a module in the loading state and issues its handle.
// Loading an identity that is already present is an error: callers must
// consult Lookup first, which is what makes reloads idempotent.
func (r *Registry) Begin(name, dir string, inline bool, digest string) (*Module, error) {
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s already registered", ErrDuplicateName, name)
	}
	m := &Module{
		Name:   name,
		Dir:    dir,
		Inline: inline,
		handle: Handle{id: uuid.NewString()},
		digest: digest,
		state:  stateLoading,
	}
	r.byName[name] = m
	r.byID[m.handle.id] = m
	return m, nil
}

// Complete marks a module as loaded and records its export table and
// pre-resolved entry point.
func (r *Registry) Complete(m *Module, exports, entry any) {
	m.Exports = exports
	m.Entry = entry
	m.state = stateLoaded
}

// Fail removes a module whose top-level evaluation failed, so the caller
// can retry with corrected source under the same name.
func (r *Registry) Fail(m *Module) {
	delete(r.byName, m.Name)
	delete(r.byID, m.handle.id)
}

// HandleFor recovers the Handle for a serialized handle ID, as produced by
// Handle.String. Used by hosts that carry handles across a wire boundary.
func (r *Registry) HandleFor(id string) (Handle, bool) {
	m, ok := r.byID[id]
	if !ok {
		return Handle{}, false
	}
	return m.handle, true
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.byName) }

// Clear drops every module. Used at context teardown; all handles issued by
// this registry are invalid afterwards.
func (r *Registry) Clear() {
	r.byName = make(map[string]*Module)
	r.byID = make(map[string]*Module)
}
