package slvm

import (
	"fmt"
	"math"
)

// CompareResult is the outcome of comparing two Values (spec.md §4.3),
// consumed by the eq/ne/lt/gt/le/ge opcodes and the conditional jumps.
type CompareResult int

const (
	Less CompareResult = iota
	Equal
	Greater
	Undefined
)

// compareValues implements spec.md §4.3's comparison semantics: Empty
// against anything (including itself for inequality) is Undefined,
// except Empty==Empty which is Equal; a kind mismatch between two
// non-Empty values is the documented legacy quirk and reports Equal
// rather than failing the comparison outright; same-kind values compare
// naturally for scalars and by reference/address identity for
// containers, iterators, and function refs.
func compareValues(a, b Value) CompareResult {
	if a.IsEmpty() && b.IsEmpty() {
		return Equal
	}
	if a.IsEmpty() || b.IsEmpty() {
		return Undefined
	}
	if a.Kind() != b.Kind() {
		return Equal
	}
	switch a.Kind() {
	case KindNumber:
		x, _ := a.Number()
		y, _ := b.Number()
		switch {
		case x < y:
			return Less
		case x > y:
			return Greater
		default:
			return Equal
		}
	case KindText:
		x, _ := a.Text()
		y, _ := b.Text()
		switch {
		case x < y:
			return Less
		case x > y:
			return Greater
		default:
			return Equal
		}
	case KindBoolean:
		x, _ := a.Bool()
		y, _ := b.Bool()
		switch {
		case x == y:
			return Equal
		case !x && y:
			return Less
		default:
			return Greater
		}
	case KindDate:
		x, _ := a.Time()
		y, _ := b.Time()
		switch {
		case x.Before(y):
			return Less
		case x.After(y):
			return Greater
		default:
			return Equal
		}
	default:
		if ValuesIdentical(a, b) {
			return Equal
		}
		return Undefined
	}
}

// Run executes instructions starting at the context's current position
// until it runs off the end of the program, a native function suspends
// it, or an opcode fails. It is the CORE's single dispatch loop
// (spec.md §4.3/§9), grounded on iolang/vm.go's Call-stepping loop but
// adapted to a flat instruction array and an explicit jumped sentinel
// rather than message-send recursion.
func (ctx *Context) Run() error {
	if !ctx.running {
		ctx.running = true
		ctx.publish(Event{Kind: EventResumed})
	}
	for ctx.i >= 0 && ctx.i < len(ctx.program.Instructions) && ctx.running {
		in := ctx.program.Instructions[ctx.i]
		ctx.jumped = false
		if err := ctx.execute(in); err != nil {
			ctx.running = false
			return ctx.wrapRuntimeError(in, err)
		}
		if in.Op != OpRet && !ctx.jumped {
			ctx.i++
		}
	}
	if ctx.running {
		ctx.running = false
		ctx.publish(Event{Kind: EventEnded})
	}
	return nil
}

// runNested drives the dispatch loop for a single re-entrant call made
// from native code (ExecuteFunctionRef), stopping as soon as that
// call's own Ret clears running rather than running off the end of the
// whole program.
func (ctx *Context) runNested() error {
	for {
		if ctx.i < 0 || ctx.i >= len(ctx.program.Instructions) {
			return fmt.Errorf("nested execution ran past the end of the program")
		}
		in := ctx.program.Instructions[ctx.i]
		ctx.jumped = false
		if err := ctx.execute(in); err != nil {
			return ctx.wrapRuntimeError(in, err)
		}
		if !ctx.running {
			ctx.running = true
			return nil
		}
		if in.Op != OpRet && !ctx.jumped {
			ctx.i++
		}
	}
}

func (ctx *Context) wrapRuntimeError(in Instruction, err error) *RuntimeError {
	var loc *SourceLocation
	if sl, ok := ctx.program.SourceMap[ctx.i]; ok {
		l := sl
		loc = &l
	}
	return &RuntimeError{Index: ctx.i, OpcodeRepr: in.Repr(), Err: err, FrameDump: ctx.frame.Dump(), Source: loc}
}

// pop2Numbers pops the right operand then the left, returning them in
// source (left, right) order.
func (ctx *Context) pop2Numbers() (left, right float64, err error) {
	right, err = ctx.PopNumber()
	if err != nil {
		return
	}
	left, err = ctx.PopNumber()
	return
}

// numericBinOp implements the arithmetic shared by
// add/sub/mul/div/mod and set.op. Division and modulo by zero are
// deliberately NOT errors (spec.md §7): they surface as the IEEE
// +Inf/-Inf/NaN result of the underlying float64 operation.
func numericBinOp(name string, a, b float64) (float64, error) {
	switch name {
	case "add":
		return a + b, nil
	case "sub":
		return a - b, nil
	case "mul":
		return a * b, nil
	case "div":
		return a / b, nil
	case "mod":
		return math.Mod(a, b), nil
	default:
		return 0, fmt.Errorf("unknown set.op operator %q", name)
	}
}

func (ctx *Context) doGet(container, index Value) (Value, error) {
	switch container.Kind() {
	case KindArray:
		a, _ := container.ArrayPtr()
		n, ok := index.Number()
		if !ok {
			return EmptyValue, fmt.Errorf("array index must be a Number, got %s", index.Kind())
		}
		i := int(n)
		if i < 0 || i >= len(a.Items) {
			return EmptyValue, fmt.Errorf("array index %d out of range (len %d)", i, len(a.Items))
		}
		return a.Items[i], nil
	case KindHash:
		h, _ := container.HashPtr()
		key, ok := index.Text()
		if !ok {
			return EmptyValue, fmt.Errorf("hash key must be Text, got %s", index.Kind())
		}
		v, _ := h.Get(key)
		return v, nil
	default:
		return EmptyValue, fmt.Errorf("get: unsupported container kind %s", container.Kind())
	}
}

func (ctx *Context) doSet(container, index, value Value) error {
	switch container.Kind() {
	case KindArray:
		a, _ := container.ArrayPtr()
		n, ok := index.Number()
		if !ok {
			return fmt.Errorf("array index must be a Number, got %s", index.Kind())
		}
		i := int(n)
		if i < 0 || i >= len(a.Items) {
			return fmt.Errorf("array index %d out of range (len %d)", i, len(a.Items))
		}
		a.Items[i] = value
		return nil
	case KindHash:
		h, _ := container.HashPtr()
		key, ok := index.Text()
		if !ok {
			return fmt.Errorf("hash key must be Text, got %s", index.Kind())
		}
		h.Set(key, value)
		return nil
	default:
		return fmt.Errorf("set: unsupported container kind %s", container.Kind())
	}
}

// setupCall allocates a child frame sized for info, pops info.ParamsCount
// values off the caller's stack into registers params_count-1..0 in pop
// order (spec.md §4.3 "Call semantics"), pushes a return address, and
// transfers control to the callee's entry instruction.
func (ctx *Context) setupCall(info FunctionInfo, closure *DataFrame, referenced bool) error {
	child := NewDataFrame(info.FrameSize)
	child.Caller = ctx.frame
	child.Closure = closure
	child.IsReferenced = referenced

	n := info.ParamsCount
	for k := int32(0); k < n; k++ {
		v, err := ctx.Pop()
		if err != nil {
			return fmt.Errorf("call: %w popping parameter %d of %d", err, k, n)
		}
		child.Store(n-1-k, v)
	}

	ctx.returnAddrs = append(ctx.returnAddrs, int32(ctx.i+1))
	ctx.frame = child
	ctx.i = int(info.Address)
	ctx.jumped = true
	return nil
}

func (ctx *Context) callUDF(target int32) error {
	info, ok := ctx.program.Functions[target]
	if !ok {
		return fmt.Errorf("call.udf: no function at address %d", target)
	}
	return ctx.setupCall(info, nil, false)
}

// invoke pops a FunctionRef and calls it. A bound receiver is inserted
// at the bottom of the caller's parameter window, just below the top
// ParamsCount-1 values, so it lands in register 0 once setupCall pops
// ParamsCount values; the receiver counts as the first parameter.
func (ctx *Context) invoke() error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	fr, ok := v.FunctionRefPtr()
	if !ok {
		return fmt.Errorf("invoke: expected FunctionRef, got %s", v.Kind())
	}
	info, ok := ctx.program.Functions[fr.Address]
	if !ok {
		return fmt.Errorf("invoke: no function at address %d", fr.Address)
	}
	if !fr.Bound.IsEmpty() {
		s := ctx.frame.stack
		pos := len(s) - int(info.ParamsCount-1)
		if pos < 0 {
			pos = 0
		} else if pos > len(s) {
			pos = len(s)
		}
		s = append(s, EmptyValue)
		copy(s[pos+1:], s[pos:])
		s[pos] = fr.Bound
		ctx.frame.stack = s
	}
	return ctx.setupCall(info, fr.Closure, false)
}

// ret pops an optional return value, pushes it to the caller's stack,
// pops the return address, and restores the caller frame. A frame
// entered via ExecuteFunctionRef (is_referenced) breaks only its own
// nested dispatch loop; a frame entered as an external event handler
// either suspends again or, for the terminal event, lets the resumed
// loop continue at the suspension point (spec.md §4.3/§5).
func (ctx *Context) ret() error {
	result, hasResult := ctx.frame.Pop()
	returning := ctx.frame
	wasReferenced := returning.IsReferenced
	wasHandler := returning == ctx.handlerFrame

	n := len(ctx.returnAddrs)
	if n == 0 {
		return fmt.Errorf("return address stack underflow")
	}
	addr := ctx.returnAddrs[n-1]
	ctx.returnAddrs = ctx.returnAddrs[:n-1]

	caller := returning.Caller
	if caller != nil && hasResult {
		caller.Push(result)
	}
	ctx.frame = caller
	ctx.i = int(addr)
	ctx.jumped = true

	if wasReferenced {
		ctx.running = false
	}
	if wasHandler {
		ctx.handlerFrame = nil
		terminal := ctx.activeEventName == ctx.TerminalEventName
		ctx.activeEventName = ""
		if !terminal {
			ctx.running = false
			ctx.publish(Event{Kind: EventSuspended})
		}
	}
	return nil
}

// RaiseEvent delivers an external event to a registered handler,
// calling it as a synchronous, out-of-band invocation (spec.md §5): the
// instruction pointer is rewound by one before the call so the return
// address setupCall computes lands exactly back on the current
// suspension point. If no handler is registered, it is a no-op that
// reports whatever is already on top of the current frame's stack, per
// the host API's "returns top-of-stack as native if present, else
// null" contract.
func (ctx *Context) RaiseEvent(name string, payload Value) (Value, error) {
	ctx.publish(Event{Kind: EventExternal, Name: name, Payload: payload})
	fr, ok := ctx.EventHandler(name)
	if !ok {
		v, _ := ctx.frame.Peek()
		return v, nil
	}
	info, ok := ctx.program.Functions[fr.Address]
	if !ok {
		return EmptyValue, fmt.Errorf("raise_event: no function at address %d", fr.Address)
	}

	ctx.frame.Push(payload)
	if !fr.Bound.IsEmpty() {
		ctx.frame.PushBottom(fr.Bound)
	}

	savedI := ctx.i
	ctx.i--
	if err := ctx.setupCall(info, fr.Closure, false); err != nil {
		ctx.i = savedI
		return EmptyValue, err
	}
	ctx.handlerFrame = ctx.frame
	ctx.activeEventName = name

	if err := ctx.Run(); err != nil {
		return EmptyValue, err
	}
	v, _ := ctx.frame.Peek()
	return v, nil
}

// ExecuteFunctionRef synchronously calls fr with args from native code
// (spec.md §4.3/§5, e.g. a sort comparator or iteration callback). The
// callee's frame is marked is_referenced so its Ret only breaks this
// nested loop rather than the outer dispatch; i is rewound by one
// before the call and jumped is cleared on return so the outer loop's
// ordinary post-instruction advance moves exactly one slot past the
// call.native instruction that invoked this.
func (ctx *Context) ExecuteFunctionRef(fr *FunctionRef, args []Value) (Value, error) {
	info, ok := ctx.program.Functions[fr.Address]
	if !ok {
		return EmptyValue, fmt.Errorf("execute_function_ref: no function at address %d", fr.Address)
	}
	for _, a := range args {
		ctx.frame.Push(a)
	}
	if !fr.Bound.IsEmpty() {
		ctx.frame.PushBottom(fr.Bound)
	}

	ctx.i--
	if err := ctx.setupCall(info, fr.Closure, true); err != nil {
		ctx.i++
		return EmptyValue, err
	}
	ctx.publish(Event{Kind: EventNestedExecRequested})
	if err := ctx.runNested(); err != nil {
		return EmptyValue, err
	}
	ctx.jumped = false
	v, _ := ctx.frame.Peek()
	return v, nil
}

// execute dispatches a single decoded instruction against the current
// frame (spec.md §4.2/§4.3). It never touches ctx.i itself except for
// jumps and calls (which also set ctx.jumped); the ordinary advance is
// Run's job.
func (ctx *Context) execute(in Instruction) error {
	switch in.Op {
	case OpLoad:
		if in.Literal.Kind() == KindText || in.Literal.Kind() == KindNumber {
			ctx.frame.Push(in.Literal)
		} else {
			ctx.frame.Push(ctx.frame.Load(in.Reg))
		}
		return nil

	case OpLoadGlobal:
		ctx.frame.Push(ctx.frame.Global().Load(in.Reg))
		return nil

	case OpLoadOuter:
		outer := ctx.frame.outer(in.Level)
		if outer == nil {
			return fmt.Errorf("load.outer: no closure frame at level %d", in.Level)
		}
		ctx.frame.Push(outer.Load(in.OuterReg))
		return nil

	case OpLoadConst:
		if in.Name != "" {
			v, err := ctx.registry.Constant(in.Module, in.Name)
			if err != nil {
				return err
			}
			ctx.frame.Push(v)
			return nil
		}
		if in.DataIndex < 0 || int(in.DataIndex) >= len(ctx.program.Data) {
			return fmt.Errorf("load.const: data index %d out of range", in.DataIndex)
		}
		ctx.frame.Push(ctx.program.Data[in.DataIndex])
		return nil

	case OpLoadData:
		if in.DataIndex < 0 || int(in.DataIndex) >= len(ctx.program.Data) {
			return fmt.Errorf("load.data: data index %d out of range", in.DataIndex)
		}
		ctx.frame.Push(ctx.program.Data[in.DataIndex])
		return nil

	case OpDup:
		v, ok := ctx.frame.Peek()
		if !ok {
			return fmt.Errorf("dup: stack is empty")
		}
		ctx.frame.Push(v)
		return nil

	case OpUnload:
		_, err := ctx.Pop()
		return err

	case OpStore:
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.frame.Store(in.Reg, v)
		return nil

	case OpStoreGlobal:
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.frame.Global().Store(in.Reg, v)
		return nil

	case OpStoreOuter:
		outer := ctx.frame.outer(in.Level)
		if outer == nil {
			return fmt.Errorf("store.outer: no closure frame at level %d", in.Level)
		}
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		outer.Store(in.OuterReg, v)
		return nil

	case OpReset:
		ctx.frame.Reset(in.Reg)
		return nil

	case OpMkArray:
		items := make([]Value, in.Count)
		for k := int32(0); k < in.Count; k++ {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			items[in.Count-1-k] = v
		}
		ctx.frame.Push(NewArrayValue(NewArray(items...)))
		return nil

	case OpMkHash:
		flat := make([]Value, 2*in.Count)
		for k := int32(0); k < 2*in.Count; k++ {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			flat[2*in.Count-1-k] = v
		}
		h := NewHash()
		for p := int32(0); p < in.Count; p++ {
			key, ok := flat[2*p].Text()
			if !ok {
				return fmt.Errorf("mk_hash: key must be Text, got %s", flat[2*p].Kind())
			}
			h.Set(key, flat[2*p+1])
		}
		ctx.frame.Push(NewHashValue(h))
		return nil

	case OpMkRefUDF:
		ctx.frame.Push(NewFunctionRefValue(NewFunctionRef(in.Target)))
		return nil

	case OpBindRefs:
		v, ok := ctx.frame.Peek()
		if !ok {
			return fmt.Errorf("bind_refs: stack is empty")
		}
		h, ok := v.HashPtr()
		if !ok {
			return fmt.Errorf("bind_refs: expected Hash, got %s", v.Kind())
		}
		h.ForEachFunctionRef(func(fr *FunctionRef) { fr.Bound = v })
		return nil

	case OpGet:
		index, err := ctx.Pop()
		if err != nil {
			return err
		}
		container, err := ctx.Pop()
		if err != nil {
			return err
		}
		v, err := ctx.doGet(container, index)
		if err != nil {
			return err
		}
		ctx.frame.Push(v)
		return nil

	case OpSet:
		value, err := ctx.Pop()
		if err != nil {
			return err
		}
		index, err := ctx.Pop()
		if err != nil {
			return err
		}
		container, err := ctx.Pop()
		if err != nil {
			return err
		}
		return ctx.doSet(container, index, value)

	case OpGetIndex:
		container, err := ctx.Pop()
		if err != nil {
			return err
		}
		v, err := ctx.doGet(container, in.Literal)
		if err != nil {
			return err
		}
		ctx.frame.Push(v)
		return nil

	case OpSetIndex:
		value, err := ctx.Pop()
		if err != nil {
			return err
		}
		container, err := ctx.Pop()
		if err != nil {
			return err
		}
		return ctx.doSet(container, in.Literal, value)

	case OpSetOp:
		index, err := ctx.Pop()
		if err != nil {
			return err
		}
		container, err := ctx.Pop()
		if err != nil {
			return err
		}
		value, err := ctx.Pop()
		if err != nil {
			return err
		}
		current, err := ctx.doGet(container, index)
		if err != nil {
			return err
		}
		cn, ok := current.Number()
		if !ok {
			return fmt.Errorf("set.op: element is %s, not Number", current.Kind())
		}
		vn, ok := value.Number()
		if !ok {
			return fmt.Errorf("set.op: operand is %s, not Number", value.Kind())
		}
		result, err := numericBinOp(in.Name, cn, vn)
		if err != nil {
			return err
		}
		return ctx.doSet(container, index, NumberValue(result))

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		a, b, err := ctx.pop2Numbers()
		if err != nil {
			return err
		}
		names := map[Op]string{OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod"}
		result, err := numericBinOp(names[in.Op], a, b)
		if err != nil {
			return err
		}
		ctx.frame.Push(NumberValue(result))
		return nil

	case OpConcat:
		second, err := ctx.PopText()
		if err != nil {
			return err
		}
		first, err := ctx.PopText()
		if err != nil {
			return err
		}
		ctx.frame.Push(TextValue(first + second))
		return nil

	case OpFormat:
		return fmt.Errorf("format: opcode is reserved and not implemented")

	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		second, err := ctx.Pop()
		if err != nil {
			return err
		}
		first, err := ctx.Pop()
		if err != nil {
			return err
		}
		cmp := compareValues(first, second)
		ctx.lastCompare = cmp
		var result bool
		switch in.Op {
		case OpEq:
			result = cmp == Equal
		case OpNe:
			result = cmp != Equal
		case OpLt:
			result = cmp == Less
		case OpGt:
			result = cmp == Greater
		case OpLe:
			result = cmp == Less || cmp == Equal
		case OpGe:
			result = cmp == Greater || cmp == Equal
		}
		ctx.frame.Push(BooleanValue(result))
		return nil

	case OpOr, OpAnd, OpXor:
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		ba, bb := AsBool(a), AsBool(b)
		var result bool
		switch in.Op {
		case OpOr:
			result = ba || bb
		case OpAnd:
			result = ba && bb
		case OpXor:
			result = ba != bb
		}
		ctx.frame.Push(BooleanValue(result))
		return nil

	case OpNot:
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.frame.Push(BooleanValue(!AsBool(v)))
		return nil

	case OpJmp:
		ctx.i = int(in.Target)
		ctx.jumped = true
		return nil

	case OpJmpEq, OpJmpNe, OpJmpLt, OpJmpGt, OpJmpLe, OpJmpGe:
		second, err := ctx.Pop()
		if err != nil {
			return err
		}
		first, err := ctx.Pop()
		if err != nil {
			return err
		}
		cmp := compareValues(first, second)
		ctx.lastCompare = cmp
		if conditionalJumps[in.Op](cmp) {
			ctx.i = int(in.Target)
			ctx.jumped = true
		}
		return nil

	case OpEmit:
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.Emit(Stringify(v))
		return nil

	case OpEmitNamed:
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.SetNamedResult(in.Name, v)
		return nil

	case OpCallNative:
		if in.Native == nil {
			return fmt.Errorf("call.native: %s is unresolved", in.Repr())
		}
		return in.Native(ctx)

	case OpCallUDF:
		return ctx.callUDF(in.Target)

	case OpInvoke:
		return ctx.invoke()

	case OpRet:
		return ctx.ret()

	default:
		return fmt.Errorf("unsupported opcode %s", in.Op)
	}
}
