package slvm

import "fmt"

// NativeFunc is a native function's implementation. It receives the
// executing Context and communicates with script code exclusively
// through the Context's current-frame stack API (spec.md §4.3 "Native
// calls"); it may also call the Context's Suspend, RaiseEvent,
// and ExecuteFunctionRef to cooperate with the engine.
type NativeFunc func(ctx *Context) error

// NativeFunction pairs a native implementation with its informational
// arity (spec.md §4.4: "arity is informational... not runtime-checked").
type NativeFunction struct {
	Fn    NativeFunc
	Arity int
}

// NativeModule is a named bundle of constants and native callables
// (spec.md §4.4).
type NativeModule struct {
	Name      string
	Constants map[string]Value
	Functions map[string]NativeFunction
}

// NewNativeModule creates an empty NativeModule with the given name.
func NewNativeModule(name string) *NativeModule {
	return &NativeModule{
		Name:      name,
		Constants: make(map[string]Value),
		Functions: make(map[string]NativeFunction),
	}
}

// AddConstant registers a constant under name.
func (m *NativeModule) AddConstant(name string, v Value) *NativeModule {
	m.Constants[name] = v
	return m
}

// AddFunction registers a native function under name with the given
// informational arity.
func (m *NativeModule) AddFunction(name string, arity int, fn NativeFunc) *NativeModule {
	m.Functions[name] = NativeFunction{Fn: fn, Arity: arity}
	return m
}

// DefaultModuleName is the selector used when a load.const/call.native
// reference omits an explicit module prefix.
const DefaultModuleName = "$builtin"

// Registry is the process-wide table of named native modules (spec.md
// §4.4). Grounded on iolang/internal/vm.go's Register(f func(*VM))
// core-extension list: modules call RegisterModuleFactory from their own
// init(), and NewRegistry builds every registered module when it is
// called, after all init() functions have run, so that registration
// order across packages does not matter.
type Registry struct {
	modules map[string]*NativeModule
}

var moduleFactories = make(map[string]func() *NativeModule, 8)

// RegisterModuleFactory registers a native module's builder under name.
// Intended to be called from a module package's init(). Panics on a
// duplicate name, since two native modules claiming the same name is
// always a linking mistake, not a runtime condition a host can recover
// from.
func RegisterModuleFactory(name string, build func() *NativeModule) {
	if _, exists := moduleFactories[name]; exists {
		panic(fmt.Sprintf("slvm: native module %q already registered", name))
	}
	moduleFactories[name] = build
}

// NewRegistry builds a Registry containing every module registered via
// RegisterModuleFactory so far (typically via blank-imported module
// packages), plus the always-present empty-selector alias for
// DefaultModuleName.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]*NativeModule, len(moduleFactories))}
	for name, build := range moduleFactories {
		r.modules[name] = build()
	}
	return r
}

// resolveModule maps the empty selector to DefaultModuleName.
func (r *Registry) resolveModule(name string) string {
	if name == "" {
		return DefaultModuleName
	}
	return name
}

// Function resolves a native function by (module, name). Per spec.md
// §4.4, a lookup miss on either axis is an error the caller should
// surface as a LoadError, since resolution happens during loading.
func (r *Registry) Function(module, name string) (NativeFunction, error) {
	mod, ok := r.modules[r.resolveModule(module)]
	if !ok {
		return NativeFunction{}, fmt.Errorf("unknown module %q", r.resolveModule(module))
	}
	fn, ok := mod.Functions[name]
	if !ok {
		return NativeFunction{}, fmt.Errorf("unknown function %s:%s", mod.Name, name)
	}
	return fn, nil
}

// Constant resolves a named constant by (module, name).
func (r *Registry) Constant(module, name string) (Value, error) {
	mod, ok := r.modules[r.resolveModule(module)]
	if !ok {
		return EmptyValue, fmt.Errorf("unknown module %q", r.resolveModule(module))
	}
	v, ok := mod.Constants[name]
	if !ok {
		return EmptyValue, fmt.Errorf("unknown constant %s:%s", mod.Name, name)
	}
	return v, nil
}
