package slvm

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind distinguishes the variants of Value. The set of kinds is closed:
// add new ones only by extending this file, never by embedding arbitrary
// Go types behind the interface boundary.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindDate
	KindArray
	KindHash
	KindIterator
	KindFunctionRef
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindNumber:
		return "Number"
	case KindText:
		return "Text"
	case KindBoolean:
		return "Boolean"
	case KindDate:
		return "Date"
	case KindArray:
		return "Array"
	case KindHash:
		return "Hash"
	case KindIterator:
		return "Iterator"
	case KindFunctionRef:
		return "FunctionRef"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is the CORE's tagged data variant (spec.md §3). It is a closed
// sum type: the kind tag selects which field of data is meaningful.
// Scalars are held by value; arrays, hashes, iterators, and function refs
// are held by pointer so that reference identity is observable, as the
// spec requires for container equality.
type Value struct {
	kind Kind
	data any
}

// EmptyValue is the singleton Empty variant.
var EmptyValue = Value{kind: KindEmpty}

// NumberValue constructs a Number variant.
func NumberValue(f float64) Value { return Value{kind: KindNumber, data: f} }

// TextValue constructs a Text variant. The string is NFC-normalized so
// that rune-indexed operations (Length, Slice) are stable regardless of
// how the source text was composed.
func TextValue(s string) Value { return Value{kind: KindText, data: norm.NFC.String(s)} }

// BooleanValue constructs a Boolean variant.
func BooleanValue(b bool) Value { return Value{kind: KindBoolean, data: b} }

// DateValue constructs a Date variant.
func DateValue(t time.Time) Value { return Value{kind: KindDate, data: t} }

// NewArrayValue wraps an Array as a Value.
func NewArrayValue(a *Array) Value { return Value{kind: KindArray, data: a} }

// NewHashValue wraps a Hash as a Value.
func NewHashValue(h *Hash) Value { return Value{kind: KindHash, data: h} }

// NewIteratorValue wraps an Iterator as a Value.
func NewIteratorValue(it *Iterator) Value { return Value{kind: KindIterator, data: it} }

// NewFunctionRefValue wraps a FunctionRef as a Value.
func NewFunctionRefValue(f *FunctionRef) Value { return Value{kind: KindFunctionRef, data: f} }

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the Empty variant.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Number returns v's float64 payload and whether v is a Number.
func (v Value) Number() (float64, bool) {
	f, ok := v.data.(float64)
	return f, ok && v.kind == KindNumber
}

// Text returns v's string payload and whether v is a Text.
func (v Value) Text() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && v.kind == KindText
}

// Bool returns v's bool payload and whether v is a Boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok && v.kind == KindBoolean
}

// Time returns v's time.Time payload and whether v is a Date.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.data.(time.Time)
	return t, ok && v.kind == KindDate
}

// ArrayPtr returns v's *Array payload and whether v is an Array.
func (v Value) ArrayPtr() (*Array, bool) {
	a, ok := v.data.(*Array)
	return a, ok && v.kind == KindArray
}

// HashPtr returns v's *Hash payload and whether v is a Hash.
func (v Value) HashPtr() (*Hash, bool) {
	h, ok := v.data.(*Hash)
	return h, ok && v.kind == KindHash
}

// IteratorPtr returns v's *Iterator payload and whether v is an Iterator.
func (v Value) IteratorPtr() (*Iterator, bool) {
	it, ok := v.data.(*Iterator)
	return it, ok && v.kind == KindIterator
}

// FunctionRefPtr returns v's *FunctionRef payload and whether v is a
// FunctionRef.
func (v Value) FunctionRefPtr() (*FunctionRef, bool) {
	f, ok := v.data.(*FunctionRef)
	return f, ok && v.kind == KindFunctionRef
}

// Array is a mutable, ordered sequence of Value.
type Array struct {
	Items []Value
}

// NewArray creates an Array holding a copy of the given items in a new
// backing slice; containers among them are still shared by pointer.
func NewArray(items ...Value) *Array {
	a := &Array{Items: make([]Value, len(items))}
	copy(a.Items, items)
	return a
}

// Hash is a mutable, insertion-ordered mapping from string to Value.
type Hash struct {
	keys []string
	vals map[string]Value
}

// NewHash creates an empty Hash.
func NewHash() *Hash {
	return &Hash{vals: make(map[string]Value)}
}

// Keys returns the hash's keys in insertion order. The caller must not
// mutate the returned slice.
func (h *Hash) Keys() []string { return h.keys }

// Get returns the value stored at key and whether it was present.
func (h *Hash) Get(key string) (Value, bool) {
	v, ok := h.vals[key]
	return v, ok
}

// Set stores value at key, appending key to the insertion order only if
// it was not already present.
func (h *Hash) Set(key string, value Value) {
	if h.vals == nil {
		h.vals = make(map[string]Value)
	}
	if _, exists := h.vals[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.vals[key] = value
}

// Delete removes key from the hash, if present.
func (h *Hash) Delete(key string) {
	if _, ok := h.vals[key]; !ok {
		return
	}
	delete(h.vals, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries in the hash.
func (h *Hash) Len() int { return len(h.keys) }

// ForEachFunctionRef rewrites every FunctionRef value directly stored in
// the hash by replacing its bound receiver, in place. This backs the
// bind_refs opcode (spec.md §4.2/§4.3): it never copies the hash.
func (h *Hash) ForEachFunctionRef(rebind func(*FunctionRef)) {
	for _, k := range h.keys {
		if fr, ok := h.vals[k].FunctionRefPtr(); ok {
			rebind(fr)
		}
	}
}

// Iterator holds the traversal state for a single iteration over an
// array, hash, or scalar value (spec.md §3 "Iterator state").
type Iterator struct {
	target Value
	keys   []string // snapshot of hash keys at construction time
	idx    int
	count  int
}

// NewIterator constructs iteration state over v. Arrays iterate their
// elements; hashes iterate a snapshot of their keys taken now (later
// mutation of the hash does not affect this iterator); anything else is
// treated as a single-element scalar target.
func NewIterator(v Value) *Iterator {
	it := &Iterator{target: v}
	switch v.Kind() {
	case KindArray:
		a, _ := v.ArrayPtr()
		it.count = len(a.Items)
	case KindHash:
		h, _ := v.HashPtr()
		it.keys = append([]string(nil), h.Keys()...)
		it.count = len(it.keys)
	default:
		it.count = 1
	}
	return it
}

// HasNext reports whether there is an unconsumed element.
func (it *Iterator) HasNext() bool { return it.idx < it.count }

// Next advances the iterator and returns the next element: an array's
// element value, a hash's next snapshotted key as Text, or the scalar
// target itself exactly once.
func (it *Iterator) Next() (Value, bool) {
	if !it.HasNext() {
		return EmptyValue, false
	}
	switch it.target.Kind() {
	case KindArray:
		a, _ := it.target.ArrayPtr()
		v := a.Items[it.idx]
		it.idx++
		return v, true
	case KindHash:
		k := it.keys[it.idx]
		it.idx++
		return TextValue(k), true
	default:
		it.idx++
		return it.target, true
	}
}

// FunctionRef is a reference to a callable program address, optionally
// bound to a receiver (for method-style invocation via bind_refs) and
// optionally carrying a closed-over frame for load.outer/store.outer.
type FunctionRef struct {
	Address int32
	Bound   Value
	Closure *DataFrame
}

// NewFunctionRef constructs an unbound, closure-less function reference,
// as produced by mk_ref.udf before bind_refs or an enclosing closure
// capture applies.
func NewFunctionRef(address int32) *FunctionRef {
	return &FunctionRef{Address: address, Bound: EmptyValue}
}

// ValuesIdentical implements spec.md §3's Value equality: same variant,
// and for scalars bitwise value equality, for arrays/hashes reference
// identity, for function refs address equality.
func ValuesIdentical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindEmpty:
		return true
	case KindNumber:
		x, _ := a.Number()
		y, _ := b.Number()
		return x == y
	case KindText:
		x, _ := a.Text()
		y, _ := b.Text()
		return x == y
	case KindBoolean:
		x, _ := a.Bool()
		y, _ := b.Bool()
		return x == y
	case KindDate:
		x, _ := a.Time()
		y, _ := b.Time()
		return x.Equal(y)
	case KindArray:
		x, _ := a.ArrayPtr()
		y, _ := b.ArrayPtr()
		return x == y
	case KindHash:
		x, _ := a.HashPtr()
		y, _ := b.HashPtr()
		return x == y
	case KindIterator:
		x, _ := a.IteratorPtr()
		y, _ := b.IteratorPtr()
		return x == y
	case KindFunctionRef:
		x, _ := a.FunctionRefPtr()
		y, _ := b.FunctionRefPtr()
		return x.Address == y.Address
	default:
		return false
	}
}

// AsBool implements spec.md §4.3's pop_as_boolean logic coercion.
func AsBool(v Value) bool {
	switch v.Kind() {
	case KindEmpty:
		return false
	case KindNumber:
		n, _ := v.Number()
		return n > 0
	case KindText:
		s, _ := v.Text()
		return len(s) > 0
	case KindBoolean:
		b, _ := v.Bool()
		return b
	case KindDate:
		t, _ := v.Time()
		return t.Year() > 1 || t.Month() > 1 || t.Day() > 1
	case KindArray:
		a, _ := v.ArrayPtr()
		return len(a.Items) > 0
	case KindHash:
		h, _ := v.HashPtr()
		return h.Len() > 0
	case KindIterator:
		it, _ := v.IteratorPtr()
		return it.HasNext()
	case KindFunctionRef:
		return true
	default:
		return false
	}
}

// Stringify renders v for emission via the `emit` opcode.
func Stringify(v Value) string {
	switch v.Kind() {
	case KindEmpty:
		return ""
	case KindNumber:
		n, _ := v.Number()
		return formatNumber(n)
	case KindText:
		s, _ := v.Text()
		return s
	case KindBoolean:
		b, _ := v.Bool()
		if b {
			return "true"
		}
		return "false"
	case KindDate:
		t, _ := v.Time()
		return t.Format(time.RFC3339)
	case KindArray:
		a, _ := v.ArrayPtr()
		parts := make([]string, len(a.Items))
		for i, item := range a.Items {
			parts[i] = Stringify(item)
		}
		return fmt.Sprintf("[%s]", joinComma(parts))
	case KindHash:
		h, _ := v.HashPtr()
		parts := make([]string, 0, h.Len())
		for _, k := range h.Keys() {
			val, _ := h.Get(k)
			parts = append(parts, fmt.Sprintf("%s: %s", k, Stringify(val)))
		}
		return fmt.Sprintf("{%s}", joinComma(parts))
	case KindIterator:
		return "Iterator"
	case KindFunctionRef:
		fr, _ := v.FunctionRefPtr()
		return fmt.Sprintf("FunctionRef(%d)", fr.Address)
	default:
		return ""
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// formatNumber renders a float64 the way the loader's own numeric
// literals are written: integral values have no trailing decimal point.
func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
