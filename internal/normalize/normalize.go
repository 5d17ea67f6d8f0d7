// Package normalize coerces model-supplied tool arguments into the scalar
// shapes a tool's parameter schema declares.
//
// Normalize never fails. Lists are unwrapped to their first element before
// any type coercion runs, except for array parameters, which keep the whole
// list. Empty lists, nulls and uncoercible values fall back to the declared
// default, or to the zero value of the declared type. Keys the schema does
// not declare are dropped.
package normalize

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Param is one declared parameter of a tool schema.
type Param struct {
	Name       string
	Type       string // string, integer, number, boolean, object, array or "" (untyped)
	Default    any
	HasDefault bool
}

// maxUnwrapDepth bounds recursive list unwrapping.
const maxUnwrapDepth = 32

// Params extracts the declared parameters of a JSON schema object, sorted by
// name. Malformed property entries are treated as untyped.
func Params(schema map[string]any) []Param {
	props, ok := asStringAnyMap(schema["properties"])
	if !ok {
		return nil
	}
	params := make([]Param, 0, len(props))
	for name, raw := range props {
		p := Param{Name: name}
		if prop, ok := asStringAnyMap(raw); ok {
			if typ, ok := prop["type"].(string); ok {
				p.Type = typ
			}
			if def, ok := prop["default"]; ok {
				p.Default = def
				p.HasDefault = true
			}
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// Normalize returns a cleaned copy of raw containing only declared
// parameters, each unwrapped and coerced to its declared type.
func Normalize(raw map[string]any, schema map[string]any) (out map[string]any) {
	params := Params(schema)
	defer func() {
		if r := recover(); r != nil {
			out = defaultsOnly(params)
		}
	}()

	out = make(map[string]any, len(params))
	for _, p := range params {
		v, present := raw[p.Name]
		if !present {
			v = nil
		}
		out[p.Name] = NormalizeValue(v, p)
	}
	return out
}

// NormalizeValue normalizes a single value against a parameter. The result
// is never nil.
func NormalizeValue(v any, p Param) any {
	if p.Type == "array" {
		if list, ok := toList(v); ok {
			return list
		}
		return fallback(p)
	}
	v = Unwrap(v)
	if p.Type == "string" || p.Type == "" {
		v = unwrapEncodedList(v)
	}
	if v == nil {
		return fallback(p)
	}
	coerced, ok := coerce(v, p.Type)
	if !ok {
		return fallback(p)
	}
	return coerced
}

// Unwrap reduces a list of any depth to its first scalar element. Empty
// lists become nil. JSON raw messages are decoded first.
func Unwrap(v any) any {
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		switch val := v.(type) {
		case nil:
			return nil
		case json.RawMessage:
			var decoded any
			if err := json.Unmarshal(val, &decoded); err != nil {
				return string(val)
			}
			v = decoded
			continue
		case []byte:
			return string(val)
		case []any:
			if len(val) == 0 {
				return nil
			}
			v = val[0]
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			if rv.Len() == 0 {
				return nil
			}
			v = rv.Index(0).Interface()
			continue
		}
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil
			}
			v = rv.Elem().Interface()
			continue
		}
		return v
	}
	return nil
}

// unwrapEncodedList handles a string that is itself a JSON-encoded list,
// such as `["17"]`.
func unwrapEncodedList(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return v
	}
	var decoded []any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return v
	}
	return Unwrap(decoded)
}

// fallback returns the declared default coerced to the parameter type, or
// the type's zero value.
func fallback(p Param) any {
	if p.HasDefault {
		if p.Type == "array" {
			if list, ok := toList(p.Default); ok {
				return list
			}
			return []any{}
		}
		if def := Unwrap(p.Default); def != nil {
			if c, ok := coerce(def, p.Type); ok {
				return c
			}
		}
	}
	return zeroValue(p.Type)
}

func zeroValue(typ string) any {
	switch typ {
	case "integer":
		return 0
	case "number":
		return 0.0
	case "boolean":
		return false
	case "object":
		return map[string]any{}
	case "array":
		return []any{}
	default:
		return ""
	}
}

func defaultsOnly(params []Param) map[string]any {
	out := make(map[string]any, len(params))
	for _, p := range params {
		out[p.Name] = fallback(p)
	}
	return out
}

// toList keeps every element of a list argument. Scalars become one-element
// lists and JSON-encoded lists are decoded. Empty input reports false.
func toList(v any) ([]any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return []any{string(val)}, true
		}
		return toList(decoded)
	case []byte:
		return toList(string(val))
	case []any:
		if len(val) == 0 {
			return nil, false
		}
		return append([]any(nil), val...), true
	case string:
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return toList(decoded)
			}
		}
		if trimmed == "" {
			return nil, false
		}
		return []any{val}, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false
		}
		return toList(rv.Elem().Interface())
	}
	return []any{v}, true
}

func coerce(v any, typ string) (any, bool) {
	switch typ {
	case "string", "":
		return toString(v), true
	case "integer":
		return toInt(v)
	case "number":
		return toFloat(v)
	case "boolean":
		return toBool(v)
	case "object":
		if m, ok := asStringAnyMap(v); ok {
			return m, true
		}
		if s, ok := v.(string); ok {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err == nil {
				return m, true
			}
		}
		return nil, false
	default:
		return v, true
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toInt(v any) (any, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, false
		}
		return int(val), true
	case float32:
		return int(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
		return nil, false
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func toFloat(v any) (any, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func toBool(v any) (any, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n", "":
			return false, true
		}
		return nil, false
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	default:
		return nil, false
	}
}

func asStringAnyMap(raw any) (map[string]any, bool) {
	switch value := raw.(type) {
	case map[string]any:
		return value, true
	case map[string]string:
		out := make(map[string]any, len(value))
		for k, v := range value {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}
