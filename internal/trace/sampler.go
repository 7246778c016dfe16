package trace

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	maxStringSample = 120
	maxMapKeys      = 3
)

// Sample renders a shallow, size-bounded, type-tagged description of a
// value. Samples exist to keep the trace log small while preserving enough
// signal for relationship inference; they never serialize full payloads.
func Sample(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteTruncated(x)
	case bool:
		return fmt.Sprintf("%t", x)
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", x)
	case time.Time:
		return "[time " + x.UTC().Format(time.RFC3339) + "]"
	case *regexp.Regexp:
		return "[pattern " + truncate(x.String(), maxStringSample) + "]"
	case error:
		return "[error " + truncate(x.Error(), maxStringSample) + "]"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return "[fn]"
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[array:%d]", rv.Len())
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprintf("%v", k.Interface()))
		}
		sort.Strings(keys)
		suffix := ""
		if len(keys) > maxMapKeys {
			keys = keys[:maxMapKeys]
			suffix = ", …"
		}
		return "{" + strings.Join(keys, ", ") + suffix + "}"
	case reflect.Ptr:
		if rv.IsNil() {
			return "null"
		}
		return Sample(rv.Elem().Interface())
	case reflect.Struct:
		return "[" + rv.Type().Name() + "]"
	default:
		return truncate(fmt.Sprintf("%v", v), maxStringSample)
	}
}

func quoteTruncated(s string) string {
	return `"` + truncate(s, maxStringSample) + `"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
