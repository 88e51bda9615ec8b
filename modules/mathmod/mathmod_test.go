package mathmod

import (
	"math"
	"testing"

	slvm "github.com/oinkcat/sl-evaluator"
)

func newCallCtx(t *testing.T) *slvm.Context {
	t.Helper()
	prog := &slvm.Program{
		Functions: map[int32]slvm.FunctionInfo{
			slvm.EntryFunctionKey: {FrameSize: 0},
		},
	}
	return slvm.NewContext(prog, slvm.NewRegistry())
}

func mustPop(t *testing.T, ctx *slvm.Context) float64 {
	t.Helper()
	v, err := ctx.PopNumber()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	return v
}

func TestUnaryFunctions(t *testing.T) {
	cases := map[string]struct {
		fn   slvm.NativeFunc
		in   float64
		want float64
	}{
		"Abs":   {unary(math.Abs), -3, 3},
		"Int":   {unary(math.Floor), 3.7, 3},
		"Sqrt":  {unary(math.Sqrt), 9, 3},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := newCallCtx(t)
			ctx.Push(slvm.NumberValue(c.in))
			if err := c.fn(ctx); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if got := mustPop(t, ctx); got != c.want {
				t.Errorf("%s(%v) = %v, want %v", name, c.in, got, c.want)
			}
		})
	}
}

func TestFract(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.NumberValue(3.25))
	f := unary(func(n float64) float64 { return n - math.Floor(n) })
	if err := f(ctx); err != nil {
		t.Fatalf("Fract: %v", err)
	}
	if got := mustPop(t, ctx); got != 0.25 {
		t.Errorf("Fract(3.25) = %v, want 0.25", got)
	}
}

func TestPow(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.NumberValue(2))
	ctx.Push(slvm.NumberValue(10))
	if err := pow(ctx); err != nil {
		t.Fatalf("pow: %v", err)
	}
	if got := mustPop(t, ctx); got != 1024 {
		t.Errorf("Pow(2, 10) = %v, want 1024", got)
	}
}

func TestRound(t *testing.T) {
	ctx := newCallCtx(t)
	ctx.Push(slvm.NumberValue(3.14159))
	ctx.Push(slvm.NumberValue(2))
	if err := round(ctx); err != nil {
		t.Fatalf("round: %v", err)
	}
	if got := mustPop(t, ctx); got != 3.14 {
		t.Errorf("Round(3.14159, 2) = %v, want 3.14", got)
	}
}

func TestRandBounds(t *testing.T) {
	ctx := newCallCtx(t)
	if err := randFn(ctx); err != nil {
		t.Fatalf("rand: %v", err)
	}
	n := mustPop(t, ctx)
	if n < 0 || n >= 1 {
		t.Errorf("Rand() = %v, want [0, 1)", n)
	}
}
