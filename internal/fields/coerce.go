package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampPrecision matches the resolution of PostgreSQL timestamps.
const timestampPrecision = time.Microsecond

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTime converts t to UTC at storage precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(timestampPrecision)
}

// ParseTime parses the timestamp layouts accepted in payloads and returned by drivers.
func ParseTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", value)
}

// Coerce converts a payload or query value into the Go type stored for kind.
// Only promotable kinds are converted; other kinds are returned unchanged.
func Coerce(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString, KindText:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	case KindInteger:
		return coerceInteger(v)
	case KindBoolean:
		return coerceBoolean(v)
	case KindDateTime:
		switch val := v.(type) {
		case time.Time:
			return NormalizeTime(val), nil
		case *time.Time:
			if val == nil {
				return nil, nil
			}
			return NormalizeTime(*val), nil
		case string:
			return ParseTime(val)
		case []byte:
			return ParseTime(string(val))
		}
		return nil, fmt.Errorf("expected datetime, got %T", v)
	default:
		return v, nil
	}
}

func coerceInteger(v any) (any, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return int64(val), nil
	case float32:
		return coerceInteger(float64(val))
	case float64:
		if val != math.Trunc(val) || val >= math.MaxInt64 || val < math.MinInt64 {
			return nil, fmt.Errorf("expected integer, got %v", val)
		}
		return int64(val), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %s", val)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", val)
		}
		return i, nil
	case []byte:
		return coerceInteger(string(val))
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func coerceBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case int:
		return val != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", val)
		}
		return b, nil
	case []byte:
		return coerceBoolean(string(val))
	}
	return nil, fmt.Errorf("expected boolean, got %T", v)
}
