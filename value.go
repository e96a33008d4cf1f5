package kvdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Values handled by tables are trees of nil, bool, int64, float64, string,
// []any and map[string]any. Normalize converts other Go values into this form.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return float64(v), nil
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return float64(v), nil
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		return numberFromString(string(v))
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			n, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			n, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot represent %T as a document value: %w", v, err)
	}
	return decodeJSONValue(raw)
}

func decodeJSONValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return Normalize(v)
}

func numberFromString(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ResolveType returns the primitive type of a normalized primitive value.
// Whole numbers resolve to TypeInt, other numbers to TypeFloat. The second
// result is false for nil and structured values.
func ResolveType(v any) (PrimType, bool) {
	switch v := v.(type) {
	case bool:
		return TypeBool, true
	case string:
		return TypeStr, true
	case int64:
		return TypeInt, true
	case float64:
		if isWhole(v) {
			return TypeInt, true
		}
		return TypeFloat, true
	default:
		return 0, false
	}
}

func isWhole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) && math.Abs(f) < 1<<63
}

func isPrimitiveValue(v any) bool {
	_, ok := ResolveType(v)
	return ok
}

// describeValue names the shape of a value for validation errors.
func describeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nothing"
	case []any:
		return fmt.Sprintf("array(%d)", len(v))
	case map[string]any:
		return "object"
	}
	if t, ok := ResolveType(v); ok {
		return fmt.Sprintf("%s %s", t, loggableAny(v))
	}
	return fmt.Sprintf("%T", v)
}

func loggableAny(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// keyComponent renders a primitive field value as a key component.
func keyComponent(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if isWhole(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
