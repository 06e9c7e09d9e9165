package field

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/apicore/domain/call"
	json "github.com/goccy/go-json"
)

// TransformOptions control Transform.
type TransformOptions struct {
	// VisibleOnly drops fields marked not visible.
	VisibleOnly bool
	// Now supplies the fallback for unparseable dates. Defaults to time.Now.
	Now func() time.Time
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Transform shapes data according to the schema s (PURE).
//
// With no definitions data passes through untouched. Arrays are mapped
// element by element. Objects are projected onto the declared keys only and
// each value is coerced to its declared type. Declared keys missing from the
// input are filled from the field default, or omitted when there is none.
func Transform(s Set, data any, opts TransformOptions) any {
	if len(s) == 0 {
		return data
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	switch t := data.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Transform(s, item, opts)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = project(s, item, opts)
		}
		return out
	case map[string]any:
		return project(s, t, opts)
	}
	return data
}

func project(s Set, record map[string]any, opts TransformOptions) map[string]any {
	out := make(map[string]any, len(s))
	for key, def := range s {
		if opts.VisibleOnly && !def.IsVisible() {
			continue
		}
		v, ok := record[key]
		if !ok {
			if def.Default != nil {
				out[key] = def.Default
			}
			continue
		}
		out[key] = Coerce(def, v, opts.Now)
	}
	return out
}

// Coerce converts v to the declared type of def.
//
// Numbers that do not parse fall back to the default, else the original
// value. Dates that do not parse fall back to the default (when it parses),
// else now. Booleans use truthiness. Other types pass through.
func Coerce(def Definition, v any, now func() time.Time) any {
	switch def.Type {
	case TypeNumber:
		if f, ok := ToNumber(v); ok {
			return f
		}
		if def.Default != nil {
			return def.Default
		}
		return v
	case TypeDate, TypeDateTime:
		if t, ok := ToTime(v); ok {
			return t
		}
		if t, ok := ToTime(def.Default); ok {
			return t
		}
		return now()
	case TypeBoolean:
		return call.Truthy(v)
	case TypeString:
		return ToString(v)
	}
	return v
}

// ToNumber parses v as a float64. NaN and unparseable values report false.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int8:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint8:
		f = float64(t)
	case uint16:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToTime parses v as a point in time. Numbers are Unix milliseconds.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case nil, bool:
		return time.Time{}, false
	}
	if ms, ok := ToNumber(v); ok {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

// ToString renders v as a string. Whole numbers have no decimal point and
// composite values are JSON.
func ToString(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return call.Stringify(v)
}
