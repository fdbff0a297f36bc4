package condition

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts a plain Go value from a state bag into its cty equivalent.
// Maps become objects and slices become tuples so that nested values remain
// addressable from expressions.
func ToCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int32:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case uint:
		return cty.NumberUIntVal(uint64(val)), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case float32:
		return cty.NumberFloatVal(float64(val)), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return cty.NilVal, fmt.Errorf("converting number %q: %w", val.String(), err)
		}
		return cty.NumberFloatVal(f), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(val))
		for k, elem := range val {
			converted, err := ToCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = converted
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(val))
		for _, elem := range val {
			converted, err := ToCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, converted)
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported state value type %T", v)
	}
}

// FromCty converts a cty.Value back to a plain Go value.
func FromCty(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := FromCty(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := FromCty(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}
