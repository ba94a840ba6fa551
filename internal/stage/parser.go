// Package stage reads and aggregates pipeline stage records. Stage outputs
// are produced by an independent, evolving pipeline, so every field access
// goes through the defensive extractors in this file: missing, renamed, or
// malformed fields degrade to defaults instead of failing the dashboard.
package stage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// AsObject returns v as a string-keyed object. Returns (nil, false) when v
// is not a non-array object, including nil, arrays, and scalars.
func AsObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}

// Object extracts a nested object field, or (nil, false) if the field is
// absent or not an object.
func Object(obj map[string]any, key string) (map[string]any, bool) {
	if obj == nil {
		return nil, false
	}
	return AsObject(obj[key])
}

// Num extracts a numeric field. Returns 0 when the raw value is missing,
// non-numeric, or not finite. Never returns NaN.
func Num(obj map[string]any, key string) float64 {
	if obj == nil {
		return 0
	}
	return toFinite(obj[key])
}

// Str extracts a string field, coercing scalars to their string form and
// returning fallback when the value is absent or not a scalar. An explicit
// empty string is a value, not an absence, and is returned as-is.
func Str(obj map[string]any, key, fallback string) string {
	if obj == nil {
		return fallback
	}
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	default:
		return fallback
	}
}

// List extracts an array field, or an empty slice when the raw value is not
// an array.
func List(obj map[string]any, key string) []any {
	if obj == nil {
		return nil
	}
	arr, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	return arr
}

// Strings extracts an array field and coerces each scalar element to a
// string, dropping non-scalar elements.
func Strings(obj map[string]any, key string) []string {
	var out []string
	for _, item := range List(obj, key) {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64, bool, json.Number, int:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}

// Clamp01 clamps v to the [0,1] fraction range. Non-finite input clamps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toFinite(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
