package slvm

import (
	"fmt"
	"reflect"
	"time"
)

// FromNative converts a host-provided Go value into a Value, used for
// host input data and shared-variable setters (spec.md §4.1). Recursive
// for arrays and hashes; unsupported kinds fail with a descriptive
// error rather than silently degrading to Empty.
func FromNative(v any) (Value, error) {
	if v == nil {
		return EmptyValue, nil
	}
	switch x := v.(type) {
	case string:
		return TextValue(x), nil
	case bool:
		return BooleanValue(x), nil
	case time.Time:
		return DateValue(x), nil
	case float32:
		return NumberValue(float64(x)), nil
	case float64:
		return NumberValue(x), nil
	case int:
		return NumberValue(float64(x)), nil
	case int8:
		return NumberValue(float64(x)), nil
	case int16:
		return NumberValue(float64(x)), nil
	case int32:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case uint:
		return NumberValue(float64(x)), nil
	case uint8:
		return NumberValue(float64(x)), nil
	case uint16:
		return NumberValue(float64(x)), nil
	case uint32:
		return NumberValue(float64(x)), nil
	case uint64:
		return NumberValue(float64(x)), nil
	case map[string]any:
		h := NewHash()
		for k, e := range x {
			ev, err := FromNative(e)
			if err != nil {
				return EmptyValue, err
			}
			h.Set(k, ev)
		}
		return NewHashValue(h), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromNative(e)
			if err != nil {
				return EmptyValue, err
			}
			items[i] = ev
		}
		return NewArrayValue(NewArray(items...)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return EmptyValue, fmt.Errorf("unsupported native value: map with non-string keys (%T)", v)
		}
		h := NewHash()
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := FromNative(iter.Value().Interface())
			if err != nil {
				return EmptyValue, err
			}
			h.Set(iter.Key().String(), ev)
		}
		return NewHashValue(h), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := FromNative(rv.Index(i).Interface())
			if err != nil {
				return EmptyValue, err
			}
			items[i] = ev
		}
		return NewArrayValue(NewArray(items...)), nil
	}
	return EmptyValue, fmt.Errorf("unsupported native value of type %T", v)
}

// ToNative converts v back into a plain Go value, the inverse of
// FromNative. Iterators pass through as their opaque *Iterator handle;
// function refs surface as their integer address.
func (v Value) ToNative() any {
	switch v.Kind() {
	case KindEmpty:
		return nil
	case KindNumber:
		n, _ := v.Number()
		return n
	case KindText:
		s, _ := v.Text()
		return s
	case KindBoolean:
		b, _ := v.Bool()
		return b
	case KindDate:
		t, _ := v.Time()
		return t
	case KindArray:
		a, _ := v.ArrayPtr()
		out := make([]any, len(a.Items))
		for i, item := range a.Items {
			out[i] = item.ToNative()
		}
		return out
	case KindHash:
		h, _ := v.HashPtr()
		out := make(map[string]any, h.Len())
		for _, k := range h.Keys() {
			val, _ := h.Get(k)
			out[k] = val.ToNative()
		}
		return out
	case KindIterator:
		it, _ := v.IteratorPtr()
		return it
	case KindFunctionRef:
		fr, _ := v.FunctionRefPtr()
		return fr.Address
	default:
		return nil
	}
}
