package params

import (
	"fmt"
	"math"
	"time"
)

// Values decoded from YAML or JSON documents arrive as int, int64, uint64 or
// float64 depending on the decoder, so numeric conversions accept all of them.

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func asFloats(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, err := asFloat(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of numbers, got %T", v)
	}
}

func optString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("%s: expected a string, got %T", key, v)
	}
}

func optFloat(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, err := asFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
