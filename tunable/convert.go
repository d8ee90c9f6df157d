package tunable

import (
	"encoding/json"
	"math"
)

// convert returns v as a T. Numbers are converted between Go numeric types
// when no precision is lost, since stores that speak JSON only know float64.
func convert[T any](v any) (T, bool) {
	var zero T

	if typed, ok := v.(T); ok {
		return typed, true
	}

	switch any(zero).(type) {
	case float64:
		if f, ok := toFloat(v); ok {
			return any(f).(T), true
		}
	case float32:
		if f, ok := toFloat(v); ok {
			return any(float32(f)).(T), true
		}
	case int:
		if i, ok := toInt(v); ok {
			return any(int(i)).(T), true
		}
	case int64:
		if i, ok := toInt(v); ok {
			return any(i).(T), true
		}
	case int32:
		if i, ok := toInt(v); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			return any(int32(i)).(T), true
		}
	case []float64:
		if list, ok := v.([]any); ok {
			out := make([]float64, 0, len(list))
			for _, e := range list {
				f, ok := toFloat(e)
				if !ok {
					return zero, false
				}
				out = append(out, f)
			}
			return any(out).(T), true
		}
	case []string:
		if list, ok := v.([]any); ok {
			out := make([]string, 0, len(list))
			for _, e := range list {
				s, ok := e.(string)
				if !ok {
					return zero, false
				}
				out = append(out, s)
			}
			return any(out).(T), true
		}
	}

	return zero, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}

	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return int64(f), true
}
