package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 50 << 20

// Transport dispatches endpoint requests over HTTP. Relative endpoint URLs
// are resolved against the configured base URL. Each Transport has its own
// circuit breaker.
type Transport struct {
	name    string
	client  *http.Client
	baseURL *url.URL
	token   string
	headers map[string]string
	breaker *gobreaker.CircuitBreaker[call.Response]
	logger  zerolog.Logger
}

// TransportConfig contains configuration for a Transport.
type TransportConfig struct {
	Name    string
	BaseURL string

	// Token is attached as a bearer Authorization header unless the request
	// sets its own Authorization header.
	Token   string
	Headers map[string]string

	// Timeout bounds a whole exchange. Per-call timeouts come from the
	// request context and are usually shorter.
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker. A zero FailureThreshold
// disables it.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
	MaxRequests      uint32
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// NewTransport creates a new HTTP transport.
func NewTransport(cfg TransportConfig, logger zerolog.Logger) (*Transport, error) {
	var baseURL *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base URL: %w", err)
		}
		baseURL = u
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	t := &Transport{
		name: name,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns,
				IdleConnTimeout:     idleConnTimeout,
			},
			Timeout: timeout,
		},
		baseURL: baseURL,
		token:   cfg.Token,
		headers: cfg.Headers,
		logger:  logger.With().Str("transport", name).Logger(),
	}

	if cfg.Breaker.FailureThreshold > 0 {
		threshold := cfg.Breaker.FailureThreshold
		t.breaker = gobreaker.NewCircuitBreaker[call.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				// Client errors say nothing about the health of the remote.
				status := call.StatusOf(err)
				return status > 0 && status < 500
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				t.logger.Warn().
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		})
	}

	return t, nil
}

// Name returns the transport name endpoints bind to.
func (t *Transport) Name() string {
	return t.name
}

// Do sends req and reads the whole response. A status >= 400 returns the
// response together with a transport error.
func (t *Transport) Do(ctx context.Context, req call.Request) (call.Response, error) {
	if t.breaker == nil {
		return t.do(ctx, req)
	}

	resp, err := t.breaker.Execute(func() (call.Response, error) {
		return t.do(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return call.Response{}, call.Transport(req.EndpointKey, 0, fmt.Errorf("%w: %s", ErrCircuitOpen, t.name))
	}
	return resp, err
}

func (t *Transport) do(ctx context.Context, req call.Request) (call.Response, error) {
	start := time.Now()

	target, err := t.resolve(req)
	if err != nil {
		return call.Response{}, call.Transport(req.EndpointKey, 0, err)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return call.Response{}, call.Transport(req.EndpointKey, 0, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if t.token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}
	if req.TraceID != "" {
		httpReq.Header.Set("X-Request-ID", req.TraceID)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return call.Response{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return call.Response{}, fmt.Errorf("read response: %w", err)
	}

	out := call.Response{
		Status:    resp.StatusCode,
		Headers:   responseHeaders(resp.Header),
		Body:      respBody,
		LatencyMs: time.Since(start).Milliseconds(),
	}

	if resp.StatusCode >= 400 {
		return out, call.Transport(req.EndpointKey, resp.StatusCode,
			fmt.Errorf("%s %s: %s", method, target, http.StatusText(resp.StatusCode)))
	}
	return out, nil
}

// resolve builds the absolute target URL including query params.
func (t *Transport) resolve(req call.Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() {
		if t.baseURL == nil {
			return "", fmt.Errorf("relative url %q and no base url", req.URL)
		}
		u = t.baseURL.ResolveReference(u)
	}

	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// responseHeaders flattens headers, skipping hop-by-hop ones.
func responseHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, v := range h {
		switch strings.ToLower(k) {
		case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
			"te", "trailers", "transfer-encoding", "upgrade":
			continue
		}
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// Ensure interface compliance.
var _ ports.Transport = (*Transport)(nil)
