// Package attrs reads values back out of slog-style key/value slices.
package attrs

import "strconv"

// ExtractString returns the string stored under key in a
// [key1, value1, key2, value2, ...] slice, or "" when absent or not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// FirstString returns the first non-empty value among keys.
func FirstString(attrs []any, keys ...string) string {
	for _, key := range keys {
		if v := ExtractString(attrs, key); v != "" {
			return v
		}
	}
	return ""
}

// ExtractUint8 parses the decimal string under key. ok is false when the key
// is absent or the value does not fit.
func ExtractUint8(attrs []any, key string) (v uint8, ok bool) {
	n, err := strconv.ParseUint(ExtractString(attrs, key), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
