package model

import (
	"strconv"
	"time"

	json "github.com/alpkeskin/gotoon"
)

// DecodeMetadata parses an interaction's metadata JSON. Malformed or empty
// input yields an empty map; a bad record never aborts assembly.
func DecodeMetadata(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil || meta == nil {
		return map[string]any{}
	}
	return meta
}

// EncodeMetadata serializes a metadata map; nil maps encode as "{}".
func EncodeMetadata(meta map[string]any) string {
	if meta == nil {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func StringFromAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	}
	return ""
}

func FloatFromAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

func TimeFromAny(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}
