package http

import (
	"net/http"
	"time"

	"github.com/artpar/apicore/domain/call"
)

// CallOptions is the JSON form of call.Options. Durations are milliseconds.
type CallOptions struct {
	Timeout      *int64            `json:"timeout,omitempty"`
	Retries      *int              `json:"retries,omitempty"`
	CacheTime    *int64            `json:"cacheTime,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ShowError    *bool             `json:"showError,omitempty"`
	UseMock      bool              `json:"useMock,omitempty"`
	VisibleOnly  bool              `json:"visibleOnly,omitempty"`
	DetectFields bool              `json:"detectFields,omitempty"`
}

// Options converts the wire form.
func (o CallOptions) Options() call.Options {
	out := call.Options{
		Retries:      o.Retries,
		Headers:      o.Headers,
		ShowError:    o.ShowError,
		UseMock:      o.UseMock,
		VisibleOnly:  o.VisibleOnly,
		DetectFields: o.DetectFields,
	}
	if o.Timeout != nil {
		out.Timeout = call.Duration(time.Duration(*o.Timeout) * time.Millisecond)
	}
	if o.CacheTime != nil {
		out.CacheTime = call.Duration(time.Duration(*o.CacheTime) * time.Millisecond)
	}
	return out
}

// CallRequest is the body of POST /v1/call/{key}.
type CallRequest struct {
	Params  map[string]any `json:"params"`
	Options CallOptions    `json:"options"`
}

// BatchEntry is one call of a batch request.
type BatchEntry struct {
	Key     string         `json:"key"`
	Params  map[string]any `json:"params"`
	Options CallOptions    `json:"options"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Calls       []BatchEntry `json:"calls"`
	Options     CallOptions  `json:"options"`
	Mode        string       `json:"mode,omitempty"`
	Concurrency int          `json:"concurrency,omitempty"`
}

// Items converts the wire form.
func (b BatchRequest) Items() ([]call.BatchItem, call.BatchOptions) {
	items := make([]call.BatchItem, len(b.Calls))
	for i, c := range b.Calls {
		items[i] = call.BatchItem{Key: c.Key, Params: c.Params, Options: c.Options.Options()}
	}
	opts := call.BatchOptions{
		Options:     b.Options.Options(),
		Mode:        call.BatchMode(b.Mode),
		Concurrency: b.Concurrency,
	}
	return items, opts
}

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    call.Code `json:"code,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch call.CodeOf(err) {
	case call.CodeConfigNotFound:
		return http.StatusNotFound
	case call.CodeDisabled:
		return http.StatusConflict
	case call.CodeValidationFailed, call.CodeInvalidEndpoint:
		return http.StatusUnprocessableEntity
	case call.CodeTransportError:
		return http.StatusBadGateway
	case call.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
