package field

import (
	"math"
	"reflect"
	"regexp"

	json "github.com/goccy/go-json"
)

var (
	dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?$`)
)

// InferType infers the semantic type and format hint of a sample value.
func InferType(v any) (Type, string) {
	switch t := v.(type) {
	case nil:
		return TypeString, ""
	case string:
		switch {
		case dateOnlyRe.MatchString(t):
			return TypeDate, ""
		case dateTimeRe.MatchString(t):
			return TypeDateTime, ""
		}
		return TypeString, ""
	case bool:
		return TypeBoolean, ""
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TypeNumber, FormatInteger
		}
		return TypeNumber, FormatDecimal
	case float64:
		return TypeNumber, numberFormat(t)
	case float32:
		return TypeNumber, numberFormat(float64(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeNumber, FormatInteger
	case []any:
		return TypeArray, ""
	case map[string]any:
		return TypeObject, ""
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray, ""
	case reflect.Map, reflect.Struct:
		return TypeObject, ""
	}
	return TypeString, ""
}

func numberFormat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return FormatInteger
	}
	return FormatDecimal
}

// Sample extracts the record to inspect: the object itself, or the first
// element of an array. It returns nil when there is nothing to inspect.
func Sample(data any) map[string]any {
	switch t := data.(type) {
	case map[string]any:
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		m, _ := t[0].(map[string]any)
		return m
	case []map[string]any:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	}
	return nil
}

// Infer builds a definition for a single sampled property.
func Infer(key string, v any) Definition {
	typ, format := InferType(v)
	scalar := typ != TypeObject && typ != TypeArray
	return Definition{
		Key:        key,
		Label:      key,
		Type:       typ,
		Format:     format,
		Sortable:   scalar,
		Filterable: scalar,
		Editable:   scalar,
	}
}

// Detect merges definitions inferred from sample into existing. Keys already
// defined in existing are never re-detected. It returns the merged set and
// the keys that were added.
func Detect(existing Set, sample any) (Set, []string) {
	merged := existing.Clone()
	record := Sample(sample)
	if record == nil {
		return merged, nil
	}

	var added []string
	for key, v := range record {
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = Infer(key, v)
		added = append(added, key)
	}
	return merged, added
}
