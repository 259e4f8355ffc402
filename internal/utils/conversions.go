package utils

import "strings"

// ToStringSlice keeps the string elements of a decoded JSON array.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// Strings converts a claim value that may be a string, []string or []any
// into a string slice. A single string is split on sep when sep is set.
func Strings(v any, sep string) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if sep == "" {
			return []string{t}
		}
		return strings.FieldsFunc(t, func(r rune) bool { return strings.ContainsRune(sep, r) })
	case []string:
		return append([]string(nil), t...)
	case []any:
		return ToStringSlice(t)
	default:
		return nil
	}
}

// Contains reports whether s holds v.
func Contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// CopyMap deep copies nested maps and slices so callers cannot mutate the
// source through the result.
func CopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = copyValue(e)
		}
		return c
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
