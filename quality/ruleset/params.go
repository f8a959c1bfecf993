package ruleset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bundles arrive from JSON (float64 numbers) or YAML (int numbers); these helpers
// accept either and report anything else as unusable instead of guessing.

func intParam(params map[string]any, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("param %q must be an integer, got %v", key, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("param %q must be an integer: %w", key, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("param %q must be an integer: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("param %q has unsupported type %T", key, raw)
	}
}

func stringParam(params map[string]any, key string) string {
	raw, ok := params[key]
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func stringsParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q must be a list of strings, got %T", key, raw)
	}
}

// firstStrings returns the first present list among keys, so "patterns" and a single
// "pattern" are both accepted.
func firstStrings(params map[string]any, keys ...string) ([]string, error) {
	for _, key := range keys {
		if _, ok := params[key]; !ok {
			continue
		}
		return stringsParam(params, key)
	}
	return nil, nil
}
