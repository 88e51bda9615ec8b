package slvm

import "fmt"

// EventKind enumerates the state transitions a Context publishes
// (spec.md §3 "Publishes events").
type EventKind int

const (
	EventSuspended EventKind = iota
	EventResumed
	EventEnded
	EventExternal
	EventNestedExecRequested
)

// Event is one published state transition. Name and Payload are only
// meaningful for EventExternal.
type Event struct {
	Kind    EventKind
	Name    string
	Payload Value
}

// Context owns a program's runtime state: the frame chain, instruction
// pointer, return-address stack, host-visible input/output dictionaries,
// and event publication (spec.md §3). Grounded on iolang/vm.go's VM
// struct, which is likewise the single object owning everything needed
// to execute a loaded program, generalized from Io's object-graph state
// to the CORE's register-VM state.
type Context struct {
	program  *Program
	registry *Registry

	frame        *DataFrame
	handlerFrame *DataFrame
	returnAddrs  []int32

	i       int
	running bool
	jumped  bool

	lastCompare CompareResult

	input map[string]Value

	textOutputs   map[string][]string
	currentOutput string

	namedResults map[string]any

	listeners []func(Event)

	// activeEventName names the external event whose handler frame is
	// currently executing, so Ret can tell whether returning from it
	// should resume at the suspension point (the terminal "exit" event)
	// or suspend again (spec.md §5 "Suspension points").
	activeEventName string

	// handlers maps an external event name to the script function that
	// handles it. Per-Context by construction, matching spec.md §9's
	// requirement that the events module's handler table be keyed by
	// Context identity.
	handlers map[string]*FunctionRef

	// TerminalEventName is the event name that resumes the VM at its
	// suspension point instead of suspending again after its handler
	// returns (spec.md §5). Defaults to "exit".
	TerminalEventName string
}

// DefaultOutputContext is the text output context name that always
// exists and is selected initially.
const DefaultOutputContext = "default"

// NewContext creates a Context bound to program, with the global frame
// allocated per the entry function's frame size (spec.md §2 "Context is
// initialized with function table, allocating the global frame sized by
// the entry function's frame size").
func NewContext(program *Program, registry *Registry) *Context {
	ctx := &Context{
		program:      program,
		registry:     registry,
		input:        make(map[string]Value),
		textOutputs:  map[string][]string{DefaultOutputContext: nil},
		currentOutput: DefaultOutputContext,
		namedResults:      make(map[string]any),
		handlers:          make(map[string]*FunctionRef),
		TerminalEventName: "exit",
	}
	entry := program.EntryInfo()
	ctx.frame = NewDataFrame(entry.FrameSize)
	ctx.i = int(entry.Address)
	return ctx
}

// Registry returns the module registry this context resolves native
// calls against.
func (ctx *Context) Registry() *Registry { return ctx.registry }

// Program returns the loaded program this context executes.
func (ctx *Context) Program() *Program { return ctx.program }

// Frame returns the current frame.
func (ctx *Context) Frame() *DataFrame { return ctx.frame }

// OnEvent subscribes a listener to this context's published events. Must
// be called before Run, per spec.md §6 ("vm.set_sequence... must precede
// run").
func (ctx *Context) OnEvent(listener func(Event)) {
	ctx.listeners = append(ctx.listeners, listener)
}

func (ctx *Context) publish(ev Event) {
	for _, l := range ctx.listeners {
		l(ev)
	}
}

// SetInput installs the legacy named input dictionary, converting each
// native value via FromNative (spec.md §6 "context.set_input").
func (ctx *Context) SetInput(data map[string]any) error {
	for k, v := range data {
		val, err := FromNative(v)
		if err != nil {
			return fmt.Errorf("set_input %s: %w", k, err)
		}
		ctx.input[k] = val
	}
	return nil
}

// Input returns a named legacy input value.
func (ctx *Context) Input(name string) (Value, bool) {
	v, ok := ctx.input[name]
	return v, ok
}

// GetShared reads a global register by its shared-variable name.
func (ctx *Context) GetShared(name string) (Value, error) {
	idx := ctx.program.SharedVarIndex(name)
	if idx < 0 {
		return EmptyValue, fmt.Errorf("unknown shared variable %q", name)
	}
	return ctx.frame.Global().Load(int32(idx)), nil
}

// SetShared writes a global register by its shared-variable name.
func (ctx *Context) SetShared(name string, v Value) error {
	idx := ctx.program.SharedVarIndex(name)
	if idx < 0 {
		return fmt.Errorf("unknown shared variable %q", name)
	}
	ctx.frame.Global().Store(int32(idx), v)
	return nil
}

// CurrentOutputName returns the name of the currently selected text
// output context.
func (ctx *Context) CurrentOutputName() string { return ctx.currentOutput }

// SelectOutput switches the current text output context, creating it if
// it does not already exist (backs the $builtin Context function).
func (ctx *Context) SelectOutput(name string) {
	if _, ok := ctx.textOutputs[name]; !ok {
		ctx.textOutputs[name] = nil
	}
	ctx.currentOutput = name
}

// Emit appends s to the current text output context.
func (ctx *Context) Emit(s string) {
	ctx.textOutputs[ctx.currentOutput] = append(ctx.textOutputs[ctx.currentOutput], s)
}

// TextResults returns the map of output-context name to its ordered list
// of emitted strings (spec.md §6 "vm.text_results").
func (ctx *Context) TextResults() map[string][]string {
	return ctx.textOutputs
}

// SetNamedResult stores a named result as its native representation
// (backs emit.named, spec.md §4.2 "pop as native, insert into named
// results").
func (ctx *Context) SetNamedResult(key string, v Value) {
	ctx.namedResults[key] = v.ToNative()
}

// NamedResults returns the named-result dictionary (spec.md §6
// "vm.named_results").
func (ctx *Context) NamedResults() map[string]any {
	return ctx.namedResults
}

// Running reports whether the dispatch loop should keep executing.
func (ctx *Context) Running() bool { return ctx.running }

// Suspend stops the dispatch loop after the current opcode finishes,
// called by native functions per spec.md §4.3/§5.
func (ctx *Context) Suspend() {
	ctx.running = false
	ctx.publish(Event{Kind: EventSuspended})
}

// SetEventHandler installs fr as the handler for external events named
// name (backs the events module's SetHandler/MapHandlers).
func (ctx *Context) SetEventHandler(name string, fr *FunctionRef) {
	ctx.handlers[name] = fr
}

// EventHandler returns the handler registered for name, if any.
func (ctx *Context) EventHandler(name string) (*FunctionRef, bool) {
	fr, ok := ctx.handlers[name]
	return fr, ok
}
