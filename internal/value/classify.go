package value

import (
	"math"
	"reflect"
)

// Classify returns the type code of a native value.
//
// Integral numbers classify as int regardless of their Go type. A non-empty
// slice whose every element is a record classifies as a table; any other
// slice is an array.
func Classify(v any) Type {
	switch val := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt
	case float32:
		return classifyFloat(float64(val))
	case float64:
		return classifyFloat(val)
	case string:
		return TypeString
	case Tagged:
		return val.Type
	case *Tagged:
		if val == nil {
			return TypeNull
		}
		return val.Type
	case map[string]any:
		return TypeObject
	case []map[string]any:
		if len(val) > 0 {
			return TypeTable
		}
		return TypeArray
	case []any:
		if isTable(val) {
			return TypeTable
		}
		return TypeArray
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return TypeObject
		}
	case reflect.Struct:
		return TypeObject
	case reflect.Pointer:
		if rv.IsNil() {
			return TypeNull
		}
		return Classify(rv.Elem().Interface())
	}
	return TypeUnknown
}

func classifyFloat(f float64) Type {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return TypeFloat
	}
	if f == math.Trunc(f) {
		return TypeInt
	}
	return TypeFloat
}

// isTable reports whether items is a non-empty collection of untagged records.
func isTable(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}
