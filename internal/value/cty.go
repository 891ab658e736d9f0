package value

import (
	"fmt"
	"math"
	"math/big"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts a native value into a cty.Value. Tagged values become
// objects with type, format and content attributes.
func ToCty(v any) (cty.Value, error) {
	v = indirect(v)
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return val, nil
	case bool:
		return cty.BoolVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case float64:
		return floatToCty(val)
	case float32:
		return floatToCty(float64(val))
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int8:
		return cty.NumberIntVal(int64(val)), nil
	case int16:
		return cty.NumberIntVal(int64(val)), nil
	case int32:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case uint:
		return cty.NumberUIntVal(uint64(val)), nil
	case uint8:
		return cty.NumberUIntVal(uint64(val)), nil
	case uint16:
		return cty.NumberUIntVal(uint64(val)), nil
	case uint32:
		return cty.NumberUIntVal(uint64(val)), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case Tagged:
		return taggedToCty(val), nil
	case *Tagged:
		return taggedToCty(*val), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(val))
		for key, item := range val {
			ctyVal, err := ToCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", key, err)
			}
			attrs[key] = ctyVal
		}
		return cty.ObjectVal(attrs), nil
	case []map[string]any:
		items := make([]any, len(val))
		for i, row := range val {
			items[i] = row
		}
		return ToCty(items)
	case []any:
		elems := make([]cty.Value, 0, len(val))
		for i, item := range val {
			ctyVal, err := ToCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, ctyVal)
		}
		return cty.TupleVal(elems), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported type for conversion to cty.Value: %T", v)
}

// floatToCty rejects NaN, which cty numbers cannot represent.
func floatToCty(f float64) (cty.Value, error) {
	if math.IsNaN(f) {
		return cty.NilVal, ErrNotANumber
	}
	return cty.NumberFloatVal(f), nil
}

func taggedToCty(t Tagged) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"type":    cty.StringVal(string(t.Type)),
		"format":  cty.StringVal(string(t.Format)),
		"content": cty.StringVal(t.Content),
	})
}

// FromCty converts a cty.Value into a native value. Whole numbers that fit in
// an int64 become int64, other numbers float64.
func FromCty(val cty.Value) (any, error) {
	val, _ = val.Unmark()
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		return fromBigFloat(val.AsBigFloat()), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			item, err := FromCty(v)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = item
		}
		if t, ok := asTagged(out); ok && ty.IsObjectType() {
			return t, nil
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			item, err := FromCty(v)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

func fromBigFloat(f *big.Float) any {
	if f.IsInt() {
		if i, acc := f.Int64(); acc == big.Exact {
			return i
		}
	}
	out, _ := f.Float64()
	return out
}
