// Package mathmod implements the math native module (spec.md §6):
// constants PI/E and elementary numeric functions. Grounded on
// iolang/number.go's free-function style (each Number method is a plain
// function over an extracted float64, not a class hierarchy).
package mathmod

import (
	"fmt"
	"math"
	"math/rand"

	slvm "github.com/oinkcat/sl-evaluator"
)

func init() {
	slvm.RegisterModuleFactory("math", build)
}

func build() *slvm.NativeModule {
	m := slvm.NewNativeModule("math")
	m.AddConstant("PI", slvm.NumberValue(math.Pi))
	m.AddConstant("E", slvm.NumberValue(math.E))

	m.AddFunction("Abs", 1, unary(math.Abs))
	m.AddFunction("Int", 1, unary(math.Floor))
	m.AddFunction("Fract", 1, unary(func(n float64) float64 { return n - math.Floor(n) }))
	m.AddFunction("Sqrt", 1, unary(math.Sqrt))
	m.AddFunction("Sin", 1, unary(math.Sin))
	m.AddFunction("Cos", 1, unary(math.Cos))
	m.AddFunction("Tan", 1, unary(math.Tan))
	m.AddFunction("Pow", 2, pow)
	m.AddFunction("Rand", 0, randFn)
	m.AddFunction("Round", 2, round)
	return m
}

// unary adapts a plain float64->float64 function into a NativeFunc that
// pops one Number and pushes the result.
func unary(f func(float64) float64) slvm.NativeFunc {
	return func(ctx *slvm.Context) error {
		n, err := ctx.PopNumber()
		if err != nil {
			return err
		}
		ctx.Push(slvm.NumberValue(f(n)))
		return nil
	}
}

// pow implements math.Pow(base, exponent).
func pow(ctx *slvm.Context) error {
	exp, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("Pow: %w", err)
	}
	base, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("Pow: %w", err)
	}
	ctx.Push(slvm.NumberValue(math.Pow(base, exp)))
	return nil
}

func randFn(ctx *slvm.Context) error {
	ctx.Push(slvm.NumberValue(rand.Float64()))
	return nil
}

// round implements math.Round(value, digits): rounds value to the given
// number of decimal digits.
func round(ctx *slvm.Context) error {
	digits, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("Round: %w", err)
	}
	value, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("Round: %w", err)
	}
	scale := math.Pow(10, digits)
	ctx.Push(slvm.NumberValue(math.Round(value*scale) / scale))
	return nil
}
