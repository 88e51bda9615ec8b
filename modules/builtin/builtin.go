// Package builtin implements the $builtin native module (spec.md §6): the
// default-selector module reached by an unqualified call.native/load.const
// reference. It registers itself with the slvm registry from init(), the
// way iolang's coreext packages each call internal.Register from their own
// init() so a blank import is enough to wire a module in.
package builtin

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/zephyrtronium/contains"
	"gitlab.com/variadico/lctime"

	slvm "github.com/oinkcat/sl-evaluator"
)

func init() {
	slvm.RegisterModuleFactory("$builtin", build)
}

func build() *slvm.NativeModule {
	m := slvm.NewNativeModule("$builtin")
	m.AddConstant("null", slvm.EmptyValue)
	m.AddConstant("true", slvm.BooleanValue(true))
	m.AddConstant("false", slvm.BooleanValue(false))

	m.AddFunction("ToNumber", 1, toNumber)
	m.AddFunction("ToDate", 1, toDate)
	m.AddFunction("Defined", 1, defined)
	m.AddFunction("Type", 1, typeOf)
	m.AddFunction("DateNow", 0, dateNow)
	m.AddFunction("DateDiff", 3, dateDiff)
	m.AddFunction("FormatDate", 2, formatDate)
	m.AddFunction("Length", 1, length)
	m.AddFunction("Add", 2, add)
	m.AddFunction("Find", 2, find)
	m.AddFunction("Delete", 2, deleteElem)
	m.AddFunction("RangeArray", 2, rangeArray)
	m.AddFunction("Flatten", 1, flatten)
	m.AddFunction("SortWith", 2, sortWith)
	m.AddFunction("Slice", 3, slice)
	m.AddFunction("_iter_create$", 1, iterCreate)
	m.AddFunction("_iter_hasnext$", 1, iterHasNext)
	m.AddFunction("_iter_next$", 1, iterNext)
	m.AddFunction("Format", 2, format)
	m.AddFunction("Context", 1, switchContext)
	return m
}

// toNumber implements $builtin.ToNumber: Number passes through, Boolean
// becomes 0/1, Date becomes Unix seconds, Text is parsed, anything else
// fails the call.
func toNumber(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch v.Kind() {
	case slvm.KindNumber:
		ctx.Push(v)
	case slvm.KindBoolean:
		b, _ := v.Bool()
		if b {
			ctx.Push(slvm.NumberValue(1))
		} else {
			ctx.Push(slvm.NumberValue(0))
		}
	case slvm.KindDate:
		t, _ := v.Time()
		ctx.Push(slvm.NumberValue(float64(t.Unix())))
	case slvm.KindText:
		s, _ := v.Text()
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return fmt.Errorf("ToNumber: %q is not numeric", s)
		}
		ctx.Push(slvm.NumberValue(f))
	default:
		return fmt.Errorf("ToNumber: cannot convert %s", v.Kind())
	}
	return nil
}

// toDate implements $builtin.ToDate: Number is interpreted as Unix
// seconds, Text is parsed as RFC3339.
func toDate(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch v.Kind() {
	case slvm.KindDate:
		ctx.Push(v)
	case slvm.KindNumber:
		n, _ := v.Number()
		ctx.Push(slvm.DateValue(time.Unix(int64(n), 0).UTC()))
	case slvm.KindText:
		s, _ := v.Text()
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("ToDate: %q is not a valid date: %w", s, err)
		}
		ctx.Push(slvm.DateValue(t))
	default:
		return fmt.Errorf("ToDate: cannot convert %s", v.Kind())
	}
	return nil
}

func defined(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	ctx.Push(slvm.BooleanValue(!v.IsEmpty()))
	return nil
}

func typeOf(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	ctx.Push(slvm.TextValue(v.Kind().String()))
	return nil
}

func dateNow(ctx *slvm.Context) error {
	ctx.Push(slvm.DateValue(time.Now()))
	return nil
}

// dateDiff implements $builtin.DateDiff(date1, date2, unit): pops unit,
// then date2, then date1 (top of stack is the last pushed argument);
// pushes the signed difference date2-date1 converted per unit (spec.md
// §6: y=days/365, m=days/30, d=days — the naive, non-calendar-aware
// formulas the spec names explicitly).
func dateDiff(ctx *slvm.Context) error {
	unit, err := ctx.PopText()
	if err != nil {
		return fmt.Errorf("DateDiff: %w", err)
	}
	d2, err := ctx.Pop()
	if err != nil {
		return err
	}
	d1, err := ctx.Pop()
	if err != nil {
		return err
	}
	t1, ok := d1.Time()
	if !ok {
		return fmt.Errorf("DateDiff: expected Date, got %s", d1.Kind())
	}
	t2, ok := d2.Time()
	if !ok {
		return fmt.Errorf("DateDiff: expected Date, got %s", d2.Kind())
	}
	days := t2.Sub(t1).Hours() / 24
	switch unit {
	case "y":
		ctx.Push(slvm.NumberValue(days / 365))
	case "m":
		ctx.Push(slvm.NumberValue(days / 30))
	case "d":
		ctx.Push(slvm.NumberValue(days))
	default:
		return fmt.Errorf("DateDiff: invalid unit %q, want y, m, or d", unit)
	}
	return nil
}

// formatDate implements $builtin.FormatDate(date, pattern): renders date
// using ANSI C strftime directives, the same formatting language
// iolang's Date asString exposes via lctime.Strftime.
func formatDate(ctx *slvm.Context) error {
	pattern, err := ctx.PopText()
	if err != nil {
		return fmt.Errorf("FormatDate: %w", err)
	}
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	t, ok := v.Time()
	if !ok {
		return fmt.Errorf("FormatDate: expected Date, got %s", v.Kind())
	}
	ctx.Push(slvm.TextValue(lctime.Strftime(pattern, t)))
	return nil
}

func length(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch v.Kind() {
	case slvm.KindArray:
		a, _ := v.ArrayPtr()
		ctx.Push(slvm.NumberValue(float64(len(a.Items))))
	case slvm.KindHash:
		h, _ := v.HashPtr()
		ctx.Push(slvm.NumberValue(float64(h.Len())))
	case slvm.KindText:
		s, _ := v.Text()
		ctx.Push(slvm.NumberValue(float64(len([]rune(s)))))
	default:
		return fmt.Errorf("Length: unsupported kind %s", v.Kind())
	}
	return nil
}

// add implements $builtin.Add(array, value): appends value to array in
// place, since Array is a pointer-shared mutable container (spec.md §3).
func add(ctx *slvm.Context) error {
	value, err := ctx.Pop()
	if err != nil {
		return err
	}
	a, err := ctx.PopArray()
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	a.Items = append(a.Items, value)
	return nil
}

// find implements $builtin.Find(container, needle). Arrays return the
// matching element or Empty; hashes return a Boolean of key presence —
// an intentionally preserved asymmetry (spec.md §9 Open Questions).
func find(ctx *slvm.Context) error {
	needle, err := ctx.Pop()
	if err != nil {
		return err
	}
	container, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case slvm.KindArray:
		a, _ := container.ArrayPtr()
		for _, item := range a.Items {
			if slvm.ValuesIdentical(item, needle) {
				ctx.Push(item)
				return nil
			}
		}
		ctx.Push(slvm.EmptyValue)
	case slvm.KindHash:
		h, _ := container.HashPtr()
		key, ok := needle.Text()
		if !ok {
			return fmt.Errorf("Find: hash key must be Text, got %s", needle.Kind())
		}
		_, present := h.Get(key)
		ctx.Push(slvm.BooleanValue(present))
	default:
		return fmt.Errorf("Find: unsupported container kind %s", container.Kind())
	}
	return nil
}

// deleteElem implements $builtin.Delete(container, key): removes an
// array element by numeric index or a hash entry by Text key, in place.
func deleteElem(ctx *slvm.Context) error {
	key, err := ctx.Pop()
	if err != nil {
		return err
	}
	container, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case slvm.KindArray:
		a, _ := container.ArrayPtr()
		n, ok := key.Number()
		if !ok {
			return fmt.Errorf("Delete: array index must be a Number, got %s", key.Kind())
		}
		i := int(n)
		if i < 0 || i >= len(a.Items) {
			return fmt.Errorf("Delete: array index %d out of range (len %d)", i, len(a.Items))
		}
		a.Items = append(a.Items[:i], a.Items[i+1:]...)
	case slvm.KindHash:
		h, _ := container.HashPtr()
		k, ok := key.Text()
		if !ok {
			return fmt.Errorf("Delete: hash key must be Text, got %s", key.Kind())
		}
		h.Delete(k)
	default:
		return fmt.Errorf("Delete: unsupported container kind %s", container.Kind())
	}
	return nil
}

// rangeArray implements $builtin.RangeArray(start, end): an inclusive
// range, auto-stepping +1 if end>=start else -1 (spec.md §6).
func rangeArray(ctx *slvm.Context) error {
	end, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("RangeArray: %w", err)
	}
	start, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("RangeArray: %w", err)
	}
	var items []slvm.Value
	if end >= start {
		for n := start; n <= end; n++ {
			items = append(items, slvm.NumberValue(n))
		}
	} else {
		for n := start; n >= end; n-- {
			items = append(items, slvm.NumberValue(n))
		}
	}
	ctx.Push(slvm.NewArrayValue(slvm.NewArray(items...)))
	return nil
}

// flatten implements $builtin.Flatten(array): a recursive flattening of
// nested arrays into a single flat array. Only arrays are descended into;
// hashes and other values are copied into the result as they are. Each
// *Array is walked at most once, tracked by pointer identity in a
// contains.Set exactly as iolang/internal/object.go's getSlotRecurse
// tracks visited protos by UniqueID(): an array that contains itself
// does not recurse forever, and an array that appears more than once
// contributes its items only the first time.
func flatten(ctx *slvm.Context) error {
	a, err := ctx.PopArray()
	if err != nil {
		return fmt.Errorf("Flatten: %w", err)
	}
	seen := contains.Set{}
	var out []slvm.Value
	var walk func(a *slvm.Array)
	walk = func(a *slvm.Array) {
		if !seen.Add(pointerID(a)) {
			return
		}
		for _, item := range a.Items {
			if inner, ok := item.ArrayPtr(); ok {
				walk(inner)
				continue
			}
			out = append(out, item)
		}
	}
	walk(a)
	ctx.Push(slvm.NewArrayValue(slvm.NewArray(out...)))
	return nil
}

// pointerID derives a stable uintptr key for a pointer, the way
// internal.Object.UniqueID does for iolang's objects.
func pointerID(p any) uintptr {
	return reflect.ValueOf(p).Pointer()
}

// sortWith implements $builtin.SortWith(array, comparator): sorts array
// in place using a script-provided comparator re-entered via
// ExecuteFunctionRef (spec.md §4.3 "Native calls"). The comparator is
// called with two elements and must leave a Number on its own stack:
// negative if the first precedes the second, positive if it follows,
// zero if equal.
func sortWith(ctx *slvm.Context) error {
	cmp, err := ctx.PopFunctionRef()
	if err != nil {
		return fmt.Errorf("SortWith: %w", err)
	}
	a, err := ctx.PopArray()
	if err != nil {
		return fmt.Errorf("SortWith: %w", err)
	}
	var sortErr error
	sort.SliceStable(a.Items, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		result, err := ctx.ExecuteFunctionRef(cmp, []slvm.Value{a.Items[i], a.Items[j]})
		if err != nil {
			sortErr = err
			return false
		}
		n, ok := result.Number()
		if !ok {
			sortErr = fmt.Errorf("SortWith: comparator must return a Number, got %s", result.Kind())
			return false
		}
		return n < 0
	})
	return sortErr
}

// slice implements $builtin.Slice(target, start, length) over Text or
// Array; an Empty length means "to end" (spec.md §6).
func slice(ctx *slvm.Context) error {
	lengthArg, err := ctx.Pop()
	if err != nil {
		return err
	}
	start, err := ctx.PopNumber()
	if err != nil {
		return fmt.Errorf("Slice: %w", err)
	}
	target, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch target.Kind() {
	case slvm.KindText:
		s := []rune(mustText(target))
		from, to, err := sliceBounds(len(s), start, lengthArg)
		if err != nil {
			return fmt.Errorf("Slice: %w", err)
		}
		ctx.Push(slvm.TextValue(string(s[from:to])))
	case slvm.KindArray:
		a, _ := target.ArrayPtr()
		from, to, err := sliceBounds(len(a.Items), start, lengthArg)
		if err != nil {
			return fmt.Errorf("Slice: %w", err)
		}
		ctx.Push(slvm.NewArrayValue(slvm.NewArray(a.Items[from:to]...)))
	default:
		return fmt.Errorf("Slice: unsupported target kind %s", target.Kind())
	}
	return nil
}

func mustText(v slvm.Value) string {
	s, _ := v.Text()
	return s
}

func sliceBounds(n int, start float64, lengthArg slvm.Value) (from, to int, err error) {
	from = int(start)
	if from < 0 || from > n {
		return 0, 0, fmt.Errorf("start %d out of range (len %d)", from, n)
	}
	if lengthArg.IsEmpty() {
		return from, n, nil
	}
	l, ok := lengthArg.Number()
	if !ok {
		return 0, 0, fmt.Errorf("length must be a Number or Empty, got %s", lengthArg.Kind())
	}
	to = from + int(l)
	if to < from || to > n {
		return 0, 0, fmt.Errorf("length %d out of range from %d (len %d)", int(l), from, n)
	}
	return from, to, nil
}

func iterCreate(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	ctx.Push(slvm.NewIteratorValue(slvm.NewIterator(v)))
	return nil
}

func iterHasNext(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	it, ok := v.IteratorPtr()
	if !ok {
		return fmt.Errorf("_iter_hasnext$: expected Iterator, got %s", v.Kind())
	}
	ctx.Push(slvm.BooleanValue(it.HasNext()))
	return nil
}

func iterNext(ctx *slvm.Context) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	it, ok := v.IteratorPtr()
	if !ok {
		return fmt.Errorf("_iter_next$: expected Iterator, got %s", v.Kind())
	}
	elem, ok := it.Next()
	if !ok {
		return fmt.Errorf("_iter_next$: iterator exhausted")
	}
	ctx.Push(elem)
	return nil
}

// format implements $builtin.Format(name, params): a documented legacy
// placeholder with no real interpolation (spec.md §9 Open Questions).
func format(ctx *slvm.Context) error {
	params, err := ctx.Pop()
	if err != nil {
		return err
	}
	name, err := ctx.PopText()
	if err != nil {
		return fmt.Errorf("Format: %w", err)
	}
	ctx.Push(slvm.TextValue(fmt.Sprintf("!== FORMAT: %s %s ==!", name, slvm.Stringify(params))))
	return nil
}

// switchContext implements $builtin.Context(name): switches the current
// text output context, creating it if new.
func switchContext(ctx *slvm.Context) error {
	name, err := ctx.PopText()
	if err != nil {
		return fmt.Errorf("Context: %w", err)
	}
	ctx.SelectOutput(name)
	return nil
}
