package store

import (
	"encoding/json"
	"math"
)

// Record is one persisted object keyed by field name.
type Record map[string]any

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies JSON-shaped values. Other values are returned as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Record:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item).(map[string]any)
		}
		return out
	default:
		return v
	}
}

// normalizeJSON converts json.Number values produced by a UseNumber decoder
// into int64 when integral and float64 otherwise.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return v
	}
}

// NormalizeJSON applies number normalization to every value of a decoded record.
func NormalizeJSON(rec Record) Record {
	for k, v := range rec {
		rec[k] = normalizeJSON(v)
	}
	return rec
}
