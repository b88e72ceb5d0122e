package builtin

import (
	"fmt"
	"strings"
	"time"
)

// Param coercion helpers. Arguments arrive as decoded JSON, so numbers are
// float64 and everything needs a type check before use.

func stringParam(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func floatParam(params map[string]any, key string) (float64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int64, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func timeParam(params map[string]any, key string) (time.Time, error) {
	s, ok := stringParam(params, key)
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", key, err)
	}
	return t, nil
}
