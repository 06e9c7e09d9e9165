// Package endpoint provides endpoint definition value types and pure functions
// over them. Endpoints describe a named remote operation and the policies
// (timeout, retries, caching) applied when calling it.
package endpoint

import (
	"context"
	"strings"
	"time"

	"github.com/artpar/apicore/domain/call"
)

// Status is the lifecycle state of an endpoint.
type Status string

const (
	StatusEnabled    Status = "enabled"
	StatusDisabled   Status = "disabled"
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusEnabled, StatusDisabled, StatusDeprecated:
		return true
	}
	return false
}

// Defaults applied by WithDefaults.
const (
	DefaultMethod   = "GET"
	DefaultCategory = "custom"
	DefaultTimeout  = 15 * time.Second
	DefaultClient   = "default"
)

// HandlerFunc replaces transport dispatch for an endpoint.
type HandlerFunc func(ctx context.Context, params map[string]any, opts call.Options) (any, error)

// TransformFunc reshapes successful response data.
type TransformFunc func(data any) (any, error)

// ValidateFunc checks call params before dispatch. A non-nil error rejects the call.
type ValidateFunc func(params map[string]any) error

// MockFunc generates mock data from call params.
type MockFunc func(params map[string]any) (any, error)

// Hooks are the optional Go capabilities an endpoint may carry.
// Hooks are process-local and never persisted.
type Hooks struct {
	Handler   HandlerFunc
	Transform TransformFunc
	Validate  ValidateFunc
	Mock      MockFunc
}

// Endpoint is a registered endpoint definition (value type).
type Endpoint struct {
	Key         string
	Name        string
	Description string

	// Target
	URL       string // may contain {name} placeholders filled from params
	Method    string
	Transport string // name of the bound transport client

	Category string
	Status   Status

	// Policies
	Timeout   time.Duration
	Retries   int
	CacheTime time.Duration

	Headers map[string]string
	Params  map[string]any // static params, overridden by call params

	// Declarative capabilities (expr-lang expressions)
	TransformExpr string // env: data, params
	ValidateExpr  string // env: params; must evaluate to true
	MockExpr      string // env: params

	// Mock is literal mock data returned in mock mode.
	Mock any

	Hooks Hooks

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an endpoint with defaults applied.
func New(key, url string) Endpoint {
	return Endpoint{Key: key, URL: url}.WithDefaults()
}

// WithDefaults returns a copy with unset policy fields filled in.
func (e Endpoint) WithDefaults() Endpoint {
	if e.Name == "" {
		e.Name = e.Key
	}
	if e.Method == "" {
		e.Method = DefaultMethod
	}
	e.Method = strings.ToUpper(e.Method)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	if e.Status == "" {
		e.Status = StatusEnabled
	}
	if e.Timeout <= 0 {
		e.Timeout = DefaultTimeout
	}
	if e.Retries < 0 {
		e.Retries = 0
	}
	if e.CacheTime < 0 {
		e.CacheTime = 0
	}
	if e.Transport == "" {
		e.Transport = DefaultClient
	}
	return e
}

// Validate returns an error if the definition cannot be registered.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Key) == "" {
		return call.Invalid("", "key is required")
	}
	if strings.TrimSpace(e.URL) == "" {
		return call.Invalid(e.Key, "url is required")
	}
	if e.Status != "" && !e.Status.Valid() {
		return call.Invalid(e.Key, "unknown status "+string(e.Status))
	}
	return nil
}

// Callable reports whether calls may be dispatched. Deprecated endpoints
// still serve calls.
func (e Endpoint) Callable() bool {
	return e.Status != StatusDisabled
}

// HasMock reports whether the endpoint can answer in mock mode.
func (e Endpoint) HasMock() bool {
	return e.Mock != nil || e.MockExpr != "" || e.Hooks.Mock != nil
}

// Clone returns a copy that shares no maps with e.
func (e Endpoint) Clone() Endpoint {
	if e.Headers != nil {
		h := make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			h[k] = v
		}
		e.Headers = h
	}
	if e.Params != nil {
		p := make(map[string]any, len(e.Params))
		for k, v := range e.Params {
			p[k] = v
		}
		e.Params = p
	}
	return e
}

// Collection is the persisted set of endpoint definitions, keyed by endpoint key.
type Collection map[string]Endpoint

// Keys returns the keys of c.
func (c Collection) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep-enough copy of c for persistence snapshots.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for k, e := range c {
		out[k] = e.Clone()
	}
	return out
}
