package vm

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/jtype"
)

// coerce converts a Go value supplied by a caller or a native into the
// representation used for values of type t.
func coerce(v any, t jtype.Type) (any, error) {
	switch t.Sort() {
	case jtype.SortVoid:
		return nil, nil
	case jtype.SortBoolean:
		if b, ok := v.(bool); ok {
			return boolValue(b), nil
		}
		return toInt32(v, t)
	case jtype.SortInt, jtype.SortShort, jtype.SortByte, jtype.SortChar:
		return toInt32(v, t)
	case jtype.SortLong:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		}
	case jtype.SortFloat:
		switch x := v.(type) {
		case float32:
			return x, nil
		case float64:
			return float32(x), nil
		}
	case jtype.SortDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %s", v, v, t)
}

func toInt32(v any, t jtype.Type) (any, error) {
	switch x := v.(type) {
	case int32:
		return x, nil
	case int:
		return int32(x), nil
	case int64:
		return int32(x), nil
	case int16:
		return int32(x), nil
	case int8:
		return int32(x), nil
	case uint16:
		return int32(x), nil
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %s", v, v, t)
}

// checkCallArgs coerces the logical arguments of a call to the types of the
// method descriptor.
func checkCallArgs(name string, types []jtype.Type, args []any) ([]any, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("args error: %s takes %d argument(s) (%d given)", name, len(types), len(args))
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := coerce(a, types[i])
		if err != nil {
			return nil, fmt.Errorf("args error: %s argument %d: %w", name, i, err)
		}
		out[i] = v
	}
	return out, nil
}
