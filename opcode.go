package slvm

import "fmt"

// Op is the closed set of opcodes the execution engine dispatches on
// (spec.md §4.2's instruction table). Adapted from
// _examples/daios-ai-msg/vm.go's packed `opcode uint8` enum, but carrying
// typed operands on Instruction rather than packed 24-bit immediates,
// since the CORE's loader produces instructions from text, not from a
// binary encoder.
type Op int

const (
	OpLoad Op = iota
	OpLoadGlobal
	OpLoadOuter
	OpLoadConst
	OpLoadData
	OpDup
	OpUnload
	OpStore
	OpStoreGlobal
	OpStoreOuter
	OpReset
	OpMkArray
	OpMkHash
	OpMkRefUDF
	OpBindRefs
	OpGet
	OpSet
	OpGetIndex
	OpSetIndex
	OpSetOp
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
	OpFormat
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpOr
	OpAnd
	OpXor
	OpNot
	OpJmp
	OpJmpEq
	OpJmpNe
	OpJmpLt
	OpJmpGt
	OpJmpLe
	OpJmpGe
	OpEmit
	OpEmitNamed
	OpCallNative
	OpCallUDF
	OpInvoke
	OpRet
)

var opNames = map[Op]string{
	OpLoad:       "load",
	OpLoadGlobal: "load.global",
	OpLoadOuter:  "load.outer",
	OpLoadConst:  "load.const",
	OpLoadData:   "load.data",
	OpDup:        "dup",
	OpUnload:     "unload",
	OpStore:      "store",
	OpStoreGlobal: "store.global",
	OpStoreOuter: "store.outer",
	OpReset:      "reset",
	OpMkArray:    "mk_array",
	OpMkHash:     "mk_hash",
	OpMkRefUDF:   "mk_ref.udf",
	OpBindRefs:   "bind_refs",
	OpGet:        "get",
	OpSet:        "set",
	OpGetIndex:   "get.index",
	OpSetIndex:   "set.index",
	OpSetOp:      "set.op",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpDiv:        "div",
	OpMod:        "mod",
	OpConcat:     "concat",
	OpFormat:     "format",
	OpEq:         "eq",
	OpNe:         "ne",
	OpLt:         "lt",
	OpGt:         "gt",
	OpLe:         "le",
	OpGe:         "ge",
	OpOr:         "or",
	OpAnd:        "and",
	OpXor:        "xor",
	OpNot:        "not",
	OpJmp:        "jmp",
	OpJmpEq:      "jmpeq",
	OpJmpNe:      "jmpne",
	OpJmpLt:      "jmplt",
	OpJmpGt:      "jmpgt",
	OpJmpLe:      "jmple",
	OpJmpGe:      "jmpge",
	OpEmit:       "emit",
	OpEmitNamed:  "emit.named",
	OpCallNative: "call.native",
	OpCallUDF:    "call.udf",
	OpInvoke:     "invoke",
	OpRet:        "ret",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", o)
}

// conditionalJumps maps each conditional jump op to the comparison
// predicate it tests against the freshly computed CompareResult.
var conditionalJumps = map[Op]func(CompareResult) bool{
	OpJmpEq: func(c CompareResult) bool { return c == Equal },
	OpJmpNe: func(c CompareResult) bool { return c != Equal },
	OpJmpLt: func(c CompareResult) bool { return c == Less },
	OpJmpGt: func(c CompareResult) bool { return c == Greater },
	OpJmpLe: func(c CompareResult) bool { return c == Less || c == Equal },
	OpJmpGe: func(c CompareResult) bool { return c == Greater || c == Equal },
}

// Instruction is one decoded opcode with its operands. Not every field
// is meaningful for every Op; which fields apply is determined by Op,
// mirroring spec.md §4.2's per-mnemonic argument column.
type Instruction struct {
	Op Op

	// Reg is the primary register operand: load #N, store N,
	// store.global N, load.global N, reset N.
	Reg int32

	// Level and OuterReg are L and N for load.outer L:N / store.outer L:N.
	Level    int32
	OuterReg int32

	// Target is a resolved instruction index, for jmp*, call.udf, and
	// mk_ref.udf, patched in by the loader's label resolution pass.
	Target int32

	// Count is N for mk_array N / mk_hash N.
	Count int32

	// Literal carries the operand for a plain `load` (number or string)
	// and the immediate index for get.index/set.index.
	Literal Value

	// Module and Name name a module registry entry for load.const and
	// call.native ("" module means the default built-in module), or the
	// math operator name for set.op, or the emit.named result key.
	Module string
	Name   string

	// DataIndex is the constant-data array index for load.const N and
	// load.data N.
	DataIndex int32

	// Native is the native function resolved at load time for
	// call.native, per spec.md §4.4 ("the registry's sole runtime role
	// is resolution during load").
	Native NativeFunc
}

// Repr renders an instruction the way the loader would print it back,
// used in RuntimeError's opcode_repr field (spec.md §4.5).
func (in Instruction) Repr() string {
	switch in.Op {
	case OpLoad:
		if !in.Literal.IsEmpty() || in.Literal.Kind() == KindText || in.Literal.Kind() == KindNumber {
			return fmt.Sprintf("load %s", reprLiteral(in.Literal))
		}
		return fmt.Sprintf("load #%d", in.Reg)
	case OpLoadGlobal, OpStoreGlobal, OpStore, OpReset:
		return fmt.Sprintf("%s %d", in.Op, in.Reg)
	case OpLoadOuter, OpStoreOuter:
		return fmt.Sprintf("%s %d:%d", in.Op, in.Level, in.OuterReg)
	case OpLoadConst:
		if in.Name != "" {
			return fmt.Sprintf("load.const %s", qualifiedName(in.Module, in.Name))
		}
		return fmt.Sprintf("load.const %d", in.DataIndex)
	case OpLoadData:
		return fmt.Sprintf("load.data %d", in.DataIndex)
	case OpMkArray, OpMkHash:
		return fmt.Sprintf("%s %d", in.Op, in.Count)
	case OpMkRefUDF, OpJmp, OpJmpEq, OpJmpNe, OpJmpLt, OpJmpGt, OpJmpLe, OpJmpGe:
		return fmt.Sprintf("%s @%d", in.Op, in.Target)
	case OpGetIndex, OpSetIndex:
		return fmt.Sprintf("%s %s", in.Op, reprLiteral(in.Literal))
	case OpSetOp:
		return fmt.Sprintf("set.op %s", in.Name)
	case OpEmitNamed:
		return fmt.Sprintf("emit.named %q", in.Name)
	case OpCallNative:
		return fmt.Sprintf("call.native %s", qualifiedName(in.Module, in.Name))
	case OpCallUDF:
		return fmt.Sprintf("call.udf @%d", in.Target)
	default:
		return in.Op.String()
	}
}

func reprLiteral(v Value) string {
	switch v.Kind() {
	case KindText:
		s, _ := v.Text()
		return fmt.Sprintf("%q", s)
	case KindNumber:
		return formatNumber(mustNumber(v))
	default:
		return Stringify(v)
	}
}

func mustNumber(v Value) float64 {
	n, _ := v.Number()
	return n
}

func qualifiedName(module, name string) string {
	if module == "" {
		return "::" + name
	}
	return module + "::" + name
}
