// Package call provides value types for executing endpoint calls: options,
// transport request/response, the canonical envelope and the error taxonomy.
package call

import (
	"net/url"
	"time"
)

// Request represents an outgoing transport request (value type).
// It is built from an endpoint definition and call params by pure functions.
type Request struct {
	// Target
	Method string
	URL    string
	Query  url.Values

	// Payload
	Headers map[string]string
	Body    []byte

	// Metadata
	EndpointKey string
	TraceID     string
}

// Response represents a raw transport response (value type).
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte

	// Metadata (for logging)
	LatencyMs int64
}

// Options are the per-call overrides recognized by the proxy.
// Nil pointer fields fall back to the endpoint definition.
type Options struct {
	Timeout   *time.Duration
	Retries   *int
	CacheTime *time.Duration
	Headers   map[string]string

	// ShowError controls the user-visible notification on terminal failure.
	// Nil means notify.
	ShowError *bool

	UseMock      bool
	VisibleOnly  bool
	DetectFields bool
}

// Notify reports whether a terminal failure should raise a notification.
func (o Options) Notify() bool {
	return o.ShowError == nil || *o.ShowError
}

// Over returns o layered over base: every field set on o wins, unset fields
// come from base. Headers are merged with o's values taking precedence.
func (o Options) Over(base Options) Options {
	out := base
	if o.Timeout != nil {
		out.Timeout = o.Timeout
	}
	if o.Retries != nil {
		out.Retries = o.Retries
	}
	if o.CacheTime != nil {
		out.CacheTime = o.CacheTime
	}
	if o.ShowError != nil {
		out.ShowError = o.ShowError
	}
	out.UseMock = base.UseMock || o.UseMock
	out.VisibleOnly = base.VisibleOnly || o.VisibleOnly
	out.DetectFields = base.DetectFields || o.DetectFields

	if len(base.Headers) > 0 || len(o.Headers) > 0 {
		out.Headers = make(map[string]string, len(base.Headers)+len(o.Headers))
		for k, v := range base.Headers {
			out.Headers[k] = v
		}
		for k, v := range o.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Duration returns a pointer to d, for building Options literals.
func Duration(d time.Duration) *time.Duration { return &d }

// Int returns a pointer to n, for building Options literals.
func Int(n int) *int { return &n }

// Bool returns a pointer to b, for building Options literals.
func Bool(b bool) *bool { return &b }
