package call

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Envelope is the canonical shape every call resolves to.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Diagnostic is the result of a test call. It always describes the outcome,
// success or failure, and is never replaced by an error.
type Diagnostic struct {
	Success      bool          `json:"success"`
	Status       int           `json:"status,omitempty"`
	Data         any           `json:"data"`
	ResponseTime time.Duration `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// MarshalJSON renders ResponseTime in milliseconds.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	type alias Diagnostic
	return json.Marshal(struct {
		alias
		ResponseTime int64 `json:"responseTime"`
	}{alias(d), d.ResponseTime.Milliseconds()})
}

// DecodeBody parses a transport body as JSON. Bodies that are not valid JSON
// are returned as a string; an empty body is nil.
func DecodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(body)
	}
	return v
}

// Normalize coerces a raw transport payload into an Envelope.
//
// A payload that already carries a "success" key keeps it. When such a
// payload has no "data" key and no "error" key, its remaining keys become
// the data. Anything else is wrapped as a successful envelope around the raw
// value.
func Normalize(raw any) Envelope {
	if env, ok := raw.(Envelope); ok {
		return env
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return OK(raw)
	}
	successVal, ok := obj["success"]
	if !ok {
		return OK(raw)
	}

	env := Envelope{Success: Truthy(successVal)}
	_, hasData := obj["data"]
	errVal, hasError := obj["error"]

	switch {
	case hasData:
		env.Data = obj["data"]
		env.Meta = rest(obj, "success", "data", "error", "message")
	case !hasError && len(obj) > 1:
		env.Data = rest(obj, "success")
	default:
		env.Meta = rest(obj, "success", "data", "error", "message")
	}

	if hasError && errVal != nil {
		env.Error = Stringify(errVal)
	}
	if msg, ok := obj["message"].(string); ok && (hasData || hasError) {
		env.Message = msg
	}
	return env
}

// Wrap turns a handler or mock result into an Envelope without lifting keys:
// results that are already envelopes are kept, everything else becomes data.
func Wrap(result any) Envelope {
	switch v := result.(type) {
	case Envelope:
		return v
	case *Envelope:
		if v != nil {
			return *v
		}
	}
	return OK(result)
}

func rest(obj map[string]any, skip ...string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, k := range skip {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Truthy applies loose truthiness: nil, false, zero numbers, NaN and the
// empty string are false; everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && t == t
	case float32:
		return t != 0 && t == t
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return true
}

// Stringify renders a value as a plain string; composite values are JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
	return fmt.Sprint(v)
}
