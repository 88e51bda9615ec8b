package builtin

import (
	"testing"
	"time"

	slvm "github.com/oinkcat/sl-evaluator"
)

// newCallCtx builds a minimal Context with a single-frame program, just
// deep enough to drive one native call through its stack API, the way
// iolang/testutils.go builds a bare VM for isolated primitive tests.
func newCallCtx(t *testing.T) *slvm.Context {
	t.Helper()
	prog := &slvm.Program{
		Functions: map[int32]slvm.FunctionInfo{
			slvm.EntryFunctionKey: {FrameSize: 0},
		},
	}
	return slvm.NewContext(prog, slvm.NewRegistry())
}

func TestToNumber(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.TextValue("3.5"))
	if err := toNumber(ctx); err != nil {
		t.Fatalf("toNumber: %v", err)
	}
	n, ok := mustPop(t, ctx).Number()
	if !ok || n != 3.5 {
		t.Errorf("ToNumber(\"3.5\") = %v, want 3.5", n)
	}
}

func TestDateDiffDays(t *testing.T) {
	ctx := newCallCtx(t)
	d1 := slvm.DateValue(parseRFC3339(t, "2026-01-01T00:00:00Z"))
	d2 := slvm.DateValue(parseRFC3339(t, "2026-01-11T00:00:00Z"))
	ctx.Push(d1)
	ctx.Push(d2)
	ctx.Push(slvm.TextValue("d"))
	if err := dateDiff(ctx); err != nil {
		t.Fatalf("dateDiff: %v", err)
	}
	n, _ := mustPop(t, ctx).Number()
	if n != 10 {
		t.Errorf("DateDiff(d) = %v, want 10", n)
	}
}

func TestFormatDateUsesStrftimeDirectives(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.DateValue(parseRFC3339(t, "2026-08-03T00:00:00Z")))
	ctx.Push(slvm.TextValue("%Y-%m-%d"))
	if err := formatDate(ctx); err != nil {
		t.Fatalf("formatDate: %v", err)
	}
	s, _ := mustPop(t, ctx).Text()
	if s != "2026-08-03" {
		t.Errorf("FormatDate(2026-08-03, %%Y-%%m-%%d) = %q, want \"2026-08-03\"", s)
	}
}

func TestAddAppendsInPlace(t *testing.T) {
	ctx := newCallCtx(t)
	a := slvm.NewArray(slvm.NumberValue(1))
	ctx.Push(slvm.NewArrayValue(a))
	ctx.Push(slvm.NumberValue(2))
	if err := add(ctx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(a.Items) != 2 {
		t.Fatalf("Add did not mutate the array in place, len = %d", len(a.Items))
	}
}

func TestFindArrayVsHashAsymmetry(t *testing.T) {
	ctx := newCallCtx(t)
	arr := slvm.NewArray(slvm.NumberValue(1), slvm.NumberValue(2))
	ctx.Push(slvm.NewArrayValue(arr))
	ctx.Push(slvm.NumberValue(2))
	if err := find(ctx); err != nil {
		t.Fatalf("find (array): %v", err)
	}
	v := mustPop(t, ctx)
	if n, ok := v.Number(); !ok || n != 2 {
		t.Errorf("Find(array, 2) = %v, want element 2", v)
	}

	ctx2 := newCallCtx(t)
	h := slvm.NewHash()
	h.Set("k", slvm.NumberValue(1))
	ctx2.Push(slvm.NewHashValue(h))
	ctx2.Push(slvm.TextValue("k"))
	if err := find(ctx2); err != nil {
		t.Fatalf("find (hash): %v", err)
	}
	b := mustPop(t, ctx2)
	if bv, ok := b.Bool(); !ok || !bv {
		t.Errorf("Find(hash, \"k\") = %v, want true", b)
	}
}

func TestFlattenWalksRepeatedArrayOnce(t *testing.T) {
	ctx := newCallCtx(t)
	inner := slvm.NewArray(slvm.NumberValue(1), slvm.NumberValue(2))
	outer := slvm.NewArray(slvm.NewArrayValue(inner), slvm.NewArrayValue(inner), slvm.NumberValue(3))
	ctx.Push(slvm.NewArrayValue(outer))
	if err := flatten(ctx); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	result, ok := mustPop(t, ctx).ArrayPtr()
	if !ok {
		t.Fatalf("Flatten did not return an Array")
	}
	if len(result.Items) != 3 {
		t.Fatalf("Flatten(outer) len = %d, want 3 (1, 2, 3 with the repeated inner array visited once)", len(result.Items))
	}
}

func TestSliceTextAndArray(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.TextValue("hello world"))
	ctx.Push(slvm.NumberValue(6))
	ctx.Push(slvm.EmptyValue)
	if err := slice(ctx); err != nil {
		t.Fatalf("slice (text): %v", err)
	}
	s, _ := mustPop(t, ctx).Text()
	if s != "world" {
		t.Errorf("Slice(\"hello world\", 6, null) = %q, want \"world\"", s)
	}

	ctx2 := newCallCtx(t)
	a := slvm.NewArray(slvm.NumberValue(1), slvm.NumberValue(2), slvm.NumberValue(3))
	ctx2.Push(slvm.NewArrayValue(a))
	ctx2.Push(slvm.NumberValue(1))
	ctx2.Push(slvm.NumberValue(1))
	if err := slice(ctx2); err != nil {
		t.Fatalf("slice (array): %v", err)
	}
	res, _ := mustPop(t, ctx2).ArrayPtr()
	if len(res.Items) != 1 {
		t.Fatalf("Slice(array, 1, 1) len = %d, want 1", len(res.Items))
	}
}

func TestIteratorTrio(t *testing.T) {
	ctx := newCallCtx(t)
	a := slvm.NewArrayValue(slvm.NewArray(slvm.NumberValue(10), slvm.NumberValue(20)))
	ctx.Push(a)
	if err := iterCreate(ctx); err != nil {
		t.Fatalf("iterCreate: %v", err)
	}
	iterVal := mustPop(t, ctx)

	for _, want := range []float64{10, 20} {
		ctx.Push(iterVal)
		if err := iterHasNext(ctx); err != nil {
			t.Fatalf("iterHasNext: %v", err)
		}
		if b, _ := mustPop(t, ctx).Bool(); !b {
			t.Fatalf("iterHasNext before exhaustion = false, want true")
		}
		ctx.Push(iterVal)
		if err := iterNext(ctx); err != nil {
			t.Fatalf("iterNext: %v", err)
		}
		n, _ := mustPop(t, ctx).Number()
		if n != want {
			t.Errorf("iterNext = %v, want %v", n, want)
		}
	}

	ctx.Push(iterVal)
	if err := iterHasNext(ctx); err != nil {
		t.Fatalf("iterHasNext: %v", err)
	}
	if b, _ := mustPop(t, ctx).Bool(); b {
		t.Fatalf("iterHasNext after exhaustion = true, want false")
	}
}

func mustPop(t *testing.T, ctx *slvm.Context) slvm.Value {
	t.Helper()
	v, err := ctx.Pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	return v
}

func parseRFC3339(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}
