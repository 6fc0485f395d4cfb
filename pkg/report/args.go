package report

import (
	"time"

	"github.com/spf13/cast"
)

// Loose argument accessors for generator implementations. Submitted
// argument maps come from JSON or YAML decoding, so numeric values may
// arrive as float64, int or string; cast smooths that over.

// StringArg returns args[key] as a string, or def when absent.
func StringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	return cast.ToString(v)
}

// IntArg returns args[key] as an int, or def when absent or not
// coercible.
func IntArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// Float64Arg returns args[key] as a float64, or def when absent or not
// coercible.
func Float64Arg(args map[string]any, key string, def float64) float64 {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// BoolArg returns args[key] as a bool, or def when absent.
func BoolArg(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// DurationArg returns args[key] as a duration ("250ms", "2s", or a
// number of seconds), or def when absent or not coercible.
func DurationArg(args map[string]any, key string, def time.Duration) time.Duration {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// Numeric reports whether the value coerces cleanly to a float64.
func Numeric(v any) bool {
	_, err := cast.ToFloat64E(v)
	return err == nil
}
