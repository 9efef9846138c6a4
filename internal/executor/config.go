package executor

import "time"

// Node config values arrive from YAML/JSON canvases, so numbers may be
// float64, ints, or strings. These readers normalize the common shapes
// and return the zero value on anything unexpected.

func configString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	if s, ok := cfg[key].(string); ok {
		return s
	}
	return ""
}

func configInt(cfg map[string]any, key string) int {
	if cfg == nil {
		return 0
	}
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func configFloat(cfg map[string]any, key string) float64 {
	if cfg == nil {
		return 0
	}
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func configBool(cfg map[string]any, key string) bool {
	if cfg == nil {
		return false
	}
	if b, ok := cfg[key].(bool); ok {
		return b
	}
	return false
}

// configDuration accepts a time.Duration, a Go duration string ("250ms"),
// or a bare number interpreted as milliseconds.
func configDuration(cfg map[string]any, key string) time.Duration {
	if cfg == nil {
		return 0
	}
	switch v := cfg[key].(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	}
	return 0
}
