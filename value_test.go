package slvm

import (
	"testing"
	"time"
)

func TestAsBoolCoercion(t *testing.T) {
	cases := map[string]struct {
		v    Value
		want bool
	}{
		"EmptyIsFalse":          {EmptyValue, false},
		"ZeroNumberIsFalse":     {NumberValue(0), false},
		"NegativeNumberIsFalse": {NumberValue(-1), false},
		"PositiveNumberIsTrue":  {NumberValue(1), true},
		"EmptyTextIsFalse":      {TextValue(""), false},
		"NonEmptyTextIsTrue":    {TextValue("x"), true},
		"BooleanFalseAsIs":      {BooleanValue(false), false},
		"BooleanTrueAsIs":       {BooleanValue(true), true},
		"EmptyArrayIsFalse":     {NewArrayValue(NewArray()), false},
		"NonEmptyArrayIsTrue":   {NewArrayValue(NewArray(NumberValue(1))), true},
		"EmptyHashIsFalse":      {NewHashValue(NewHash()), false},
		"FunctionRefAlwaysTrue": {NewFunctionRefValue(NewFunctionRef(0)), true},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if got := AsBool(c.v); got != c.want {
				t.Errorf("AsBool(%v) = %v, want %v", c.v, got, c.want)
			}
		})
	}

	t.Run("NonEmptyHashIsTrue", func(t *testing.T) {
		h := NewHash()
		h.Set("k", NumberValue(1))
		if got := AsBool(NewHashValue(h)); !got {
			t.Errorf("AsBool(non-empty hash) = false, want true")
		}
	})

	t.Run("IteratorHasNextIsTrue", func(t *testing.T) {
		it := NewIterator(NewArrayValue(NewArray(NumberValue(1))))
		if got := AsBool(NewIteratorValue(it)); !got {
			t.Errorf("AsBool(iterator with remaining elements) = false, want true")
		}
	})

	t.Run("ExhaustedIteratorIsFalse", func(t *testing.T) {
		it := NewIterator(NewArrayValue(NewArray()))
		if got := AsBool(NewIteratorValue(it)); got {
			t.Errorf("AsBool(exhausted iterator) = true, want false")
		}
	})

	t.Run("ZeroDateIsFalse", func(t *testing.T) {
		if got := AsBool(DateValue(time.Time{})); got {
			t.Errorf("AsBool(zero Date) = true, want false")
		}
	})

	t.Run("RealDateIsTrue", func(t *testing.T) {
		if got := AsBool(DateValue(time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC))); !got {
			t.Errorf("AsBool(real Date) = false, want true")
		}
	})
}

func TestValuesIdenticalScalars(t *testing.T) {
	if !ValuesIdentical(NumberValue(1), NumberValue(1)) {
		t.Error("equal Numbers should be identical")
	}
	if ValuesIdentical(NumberValue(1), NumberValue(2)) {
		t.Error("unequal Numbers should not be identical")
	}
	if !ValuesIdentical(TextValue("a"), TextValue("a")) {
		t.Error("equal Texts should be identical")
	}
	if ValuesIdentical(NumberValue(1), TextValue("1")) {
		t.Error("cross-kind values should not be identical")
	}
}

func TestValuesIdenticalContainersByPointer(t *testing.T) {
	a := NewArray(NumberValue(1), NumberValue(2))
	av1 := NewArrayValue(a)
	av2 := NewArrayValue(a)
	if !ValuesIdentical(av1, av2) {
		t.Error("same *Array pointer wrapped twice should be identical")
	}

	b := NewArray(NumberValue(1), NumberValue(2))
	bv := NewArrayValue(b)
	if ValuesIdentical(av1, bv) {
		t.Error("distinct *Array pointers with equal content should not be identical")
	}
}

func TestValuesIdenticalFunctionRefByAddress(t *testing.T) {
	f1 := NewFunctionRefValue(NewFunctionRef(3))
	f2 := NewFunctionRefValue(NewFunctionRef(3))
	if !ValuesIdentical(f1, f2) {
		t.Error("distinct FunctionRef instances with equal address should be identical (spec.md §3: FunctionRef equality is address equality)")
	}
	f3 := NewFunctionRefValue(NewFunctionRef(4))
	if ValuesIdentical(f1, f3) {
		t.Error("FunctionRefs with different addresses should not be identical")
	}
	fr := NewFunctionRef(3)
	if !ValuesIdentical(NewFunctionRefValue(fr), NewFunctionRefValue(fr)) {
		t.Error("same *FunctionRef pointer wrapped twice should be identical")
	}
}

func TestStringifySpotChecks(t *testing.T) {
	cases := map[string]struct {
		v    Value
		want string
	}{
		"Empty":   {EmptyValue, ""},
		"Number":  {NumberValue(42), "42"},
		"Text":    {TextValue("hi"), "hi"},
		"BoolT":   {BooleanValue(true), "true"},
		"BoolF":   {BooleanValue(false), "false"},
		"Array":   {NewArrayValue(NewArray(NumberValue(1), NumberValue(2))), "[1, 2]"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Stringify(c.v); got != c.want {
				t.Errorf("Stringify(%s) = %q, want %q", name, got, c.want)
			}
		})
	}
}
