// Package field provides per-endpoint response field definitions, type
// inference from sample data, and pure data transformation against a schema.
package field

import "sort"

// Type is the semantic type of a field.
type Type string

const (
	TypeString   Type = "string"
	TypeNumber   Type = "number"
	TypeBoolean  Type = "boolean"
	TypeDate     Type = "date"
	TypeDateTime Type = "datetime"
	TypeObject   Type = "object"
	TypeArray    Type = "array"
	TypeEnum     Type = "enum"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeDateTime, TypeObject, TypeArray, TypeEnum:
		return true
	}
	return false
}

// Number formats.
const (
	FormatInteger = "integer"
	FormatDecimal = "decimal"
)

// Option is one allowed value of an enum field.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	Color string `json:"color,omitempty"`
}

// Definition describes one response field of an endpoint.
type Definition struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Type   Type   `json:"type"`
	Format string `json:"format,omitempty"`
	Unit   string `json:"unit,omitempty"`

	// Visible defaults to true when unset.
	Visible    *bool `json:"visible,omitempty"`
	Sortable   bool  `json:"sortable"`
	Filterable bool  `json:"filterable"`
	Editable   bool  `json:"editable"`

	Default   any      `json:"default,omitempty"`
	Validator string   `json:"validator,omitempty"` // expr evaluated with `value`
	Options   []Option `json:"options,omitempty"`
	Color     string   `json:"color,omitempty"`
}

// IsVisible reports whether the field is shown.
func (d Definition) IsVisible() bool {
	return d.Visible == nil || *d.Visible
}

// Hidden returns a copy of d marked not visible.
func (d Definition) Hidden() Definition {
	v := false
	d.Visible = &v
	return d
}

// Set is the field schema of one endpoint, keyed by field key.
type Set map[string]Definition

// Keys returns the field keys in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
