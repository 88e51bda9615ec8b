package slvm

import "fmt"

// Push pushes v onto the current frame's operand stack. Native functions
// use this to return a result (spec.md §4.3 "Native calls").
func (ctx *Context) Push(v Value) { ctx.frame.Push(v) }

// Pop pops the top of the current frame's operand stack.
func (ctx *Context) Pop() (Value, error) {
	v, ok := ctx.frame.Pop()
	if !ok {
		return EmptyValue, fmt.Errorf("stack underflow")
	}
	return v, nil
}

// Peek returns the top of the current frame's operand stack without
// removing it.
func (ctx *Context) Peek() (Value, bool) { return ctx.frame.Peek() }

// PopNumber pops the top of the stack and requires it to be a Number.
func (ctx *Context) PopNumber() (float64, error) {
	v, err := ctx.Pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("expected Number, got %s", v.Kind())
	}
	return n, nil
}

// PopText pops the top of the stack and requires it to be Text.
func (ctx *Context) PopText() (string, error) {
	v, err := ctx.Pop()
	if err != nil {
		return "", err
	}
	s, ok := v.Text()
	if !ok {
		return "", fmt.Errorf("expected Text, got %s", v.Kind())
	}
	return s, nil
}

// PopArray pops the top of the stack and requires it to be an Array.
func (ctx *Context) PopArray() (*Array, error) {
	v, err := ctx.Pop()
	if err != nil {
		return nil, err
	}
	a, ok := v.ArrayPtr()
	if !ok {
		return nil, fmt.Errorf("expected Array, got %s", v.Kind())
	}
	return a, nil
}

// PopHash pops the top of the stack and requires it to be a Hash.
func (ctx *Context) PopHash() (*Hash, error) {
	v, err := ctx.Pop()
	if err != nil {
		return nil, err
	}
	h, ok := v.HashPtr()
	if !ok {
		return nil, fmt.Errorf("expected Hash, got %s", v.Kind())
	}
	return h, nil
}

// PopFunctionRef pops the top of the stack and requires it to be a
// FunctionRef.
func (ctx *Context) PopFunctionRef() (*FunctionRef, error) {
	v, err := ctx.Pop()
	if err != nil {
		return nil, err
	}
	fr, ok := v.FunctionRefPtr()
	if !ok {
		return nil, fmt.Errorf("expected FunctionRef, got %s", v.Kind())
	}
	return fr, nil
}
