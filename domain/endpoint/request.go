package endpoint

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/artpar/apicore/domain/call"
	json "github.com/goccy/go-json"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MergeParams layers call params over the endpoint's static params.
func (e Endpoint) MergeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(e.Params)+len(params))
	for k, v := range e.Params {
		out[k] = v
	}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// ExpandURL fills {name} placeholders in rawURL from params. Params consumed
// by a placeholder are removed from the returned remainder. Placeholders
// without a matching param are left as-is.
func ExpandURL(rawURL string, params map[string]any) (string, map[string]any) {
	rest := make(map[string]any, len(params))
	for k, v := range params {
		rest[k] = v
	}
	expanded := placeholderRe.ReplaceAllStringFunc(rawURL, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok || v == nil {
			return m
		}
		delete(rest, name)
		return url.PathEscape(call.Stringify(v))
	})
	return expanded, rest
}

// BodyMethod reports whether params travel in the request body for method.
func BodyMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "DELETE", "HEAD", "OPTIONS":
		return false
	}
	return true
}

// BuildRequest builds the transport request for a call (PURE).
// Params go to the query string for GET/DELETE and to a JSON body otherwise.
// Option headers override endpoint headers.
func BuildRequest(e Endpoint, params map[string]any, opts call.Options, traceID string) (call.Request, error) {
	target, rest := ExpandURL(e.URL, e.MergeParams(params))

	headers := make(map[string]string, len(e.Headers)+len(opts.Headers)+1)
	for k, v := range e.Headers {
		headers[k] = v
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	req := call.Request{
		Method:      e.Method,
		URL:         target,
		Headers:     headers,
		EndpointKey: e.Key,
		TraceID:     traceID,
	}

	if !BodyMethod(e.Method) {
		req.Query = QueryValues(rest)
		return req, nil
	}

	if len(rest) > 0 {
		body, err := json.Marshal(rest)
		if err != nil {
			return call.Request{}, call.Validation(e.Key, "params are not serializable: "+err.Error())
		}
		req.Body = body
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}
	return req, nil
}

// QueryValues renders params as query values. Slices become repeated values;
// nil values are skipped.
func QueryValues(params map[string]any) url.Values {
	q := make(url.Values, len(params))
	for k, v := range params {
		switch t := v.(type) {
		case nil:
			continue
		case []any:
			for _, item := range t {
				q.Add(k, call.Stringify(item))
			}
		case []string:
			for _, item := range t {
				q.Add(k, item)
			}
		default:
			q.Set(k, call.Stringify(v))
		}
	}
	return q
}
