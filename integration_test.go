package slvm_test

import (
	"strings"
	"testing"

	slvm "github.com/oinkcat/sl-evaluator"
	_ "github.com/oinkcat/sl-evaluator/modules/builtin"
)

// runProgram loads and runs src against a registry populated by every
// blank-imported native module package, the way a real host wires up
// modules before evaluating a program (spec.md §4.4).
func runProgram(t *testing.T, src string) *slvm.Context {
	t.Helper()
	reg := slvm.NewRegistry()
	prog, err := slvm.Load(strings.NewReader(src), reg)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ctx := slvm.NewContext(prog, reg)
	if err := ctx.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return ctx
}

func wantDefaultOutputs(t *testing.T, ctx *slvm.Context, want []string) {
	t.Helper()
	got := ctx.TextResults()[slvm.DefaultOutputContext]
	if len(got) != len(want) {
		t.Fatalf("default output = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("default output = %v, want %v", got, want)
		}
	}
}

// TestRangeArrayAndIteration covers spec.md §8 scenario 5: RangeArray
// produces an inclusive range, and the iterator trio walks it in order.
// Boolean results are tested against the $builtin `true` constant, since
// the loader's `load` only accepts registers, numbers, and quoted text.
func TestRangeArrayAndIteration(t *testing.T) {
	src := `
.entry
load 1
load 3
call.native ::RangeArray
call.native ::_iter_create$
store 0
loop:
load #0
call.native ::_iter_hasnext$
load.const ::true
jmpeq body
jmp done
body:
load #0
call.native ::_iter_next$
emit
jmp loop
done:
`
	ctx := runProgram(t, src)
	wantDefaultOutputs(t, ctx, []string{"1", "2", "3"})
}

// TestIteratorExhaustionLaw covers the engine law that _iter_hasnext$
// reports true exactly n times for an n-element array before switching
// to false permanently.
func TestIteratorExhaustionLaw(t *testing.T) {
	src := `
.entry
load 5
load 7
call.native ::RangeArray
call.native ::_iter_create$
store 0
load #0
call.native ::_iter_hasnext$
load.const ::true
jmpeq l1
load "unexpected false before element 1"
emit
l1:
load #0
call.native ::_iter_next$
unload
load #0
call.native ::_iter_hasnext$
load.const ::true
jmpeq l2
load "unexpected false before element 2"
emit
l2:
load #0
call.native ::_iter_next$
unload
load #0
call.native ::_iter_hasnext$
load.const ::true
jmpeq l3
load "unexpected false before element 3"
emit
l3:
load #0
call.native ::_iter_next$
unload
load #0
call.native ::_iter_hasnext$
load.const ::true
jmpne exhausted
load "expected exhaustion after 3 elements"
emit
exhausted:
`
	ctx := runProgram(t, src)
	wantDefaultOutputs(t, ctx, nil)
}

func TestFlattenAndAddAndLength(t *testing.T) {
	src := `
.entry
load 1
load 3
call.native ::RangeArray
load 99
call.native ::Add
call.native ::Length
emit
`
	ctx := runProgram(t, src)
	wantDefaultOutputs(t, ctx, []string{"4"})
}

// TestSortWithReentersTheDispatchLoop drives $builtin.SortWith with a
// script-level comparator, confirming ExecuteFunctionRef's runNested/i-
// rewind mechanism (spec.md §5) correctly restores the outer frame's
// instruction pointer after each callback invocation so the loop
// calling SortWith resumes exactly where it left off.
func TestSortWithReentersTheDispatchLoop(t *testing.T) {
	src := `
.defs
cmp.2:
load #0
load #1
sub
ret
.entry
load 3
load 1
load 2
mk_array 3
store 0
load #0
mk_ref.udf cmp
call.native ::SortWith
load #0
emit
`
	ctx := runProgram(t, src)
	wantDefaultOutputs(t, ctx, []string{"[1, 2, 3]"})
}
