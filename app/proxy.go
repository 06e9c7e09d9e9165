package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// EndpointSource resolves endpoint definitions by key.
type EndpointSource interface {
	Get(key string) (endpoint.Endpoint, bool)
}

// Outcomes reported to the CallObserver.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
	OutcomeMock    = "mock"
)

// ProxyService executes endpoint calls: dispatch, caching, retries and
// response normalization.
type ProxyService struct {
	endpoints  EndpointSource
	transports map[string]ports.Transport
	cache      ports.ResponseCache
	hooks      *HookService
	notifier   ports.Notifier
	observer   ports.CallObserver
	clock      ports.Clock
	idGen      ports.IDGenerator
	logger     zerolog.Logger

	mockMode atomic.Bool

	// Concurrent identical cacheable calls share one dispatch.
	flights singleflight.Group
}

// ProxyDeps contains dependencies for ProxyService.
type ProxyDeps struct {
	Endpoints  EndpointSource
	Transports map[string]ports.Transport
	Cache      ports.ResponseCache
	Hooks      *HookService
	Notifier   ports.Notifier
	Observer   ports.CallObserver
	Clock      ports.Clock
	IDGen      ports.IDGenerator
}

// ProxyConfig contains configuration for ProxyService.
type ProxyConfig struct {
	// MockMode answers every call of an endpoint that declares mock data
	// with the mock, without dispatching.
	MockMode bool
}

// NewProxyService creates a new proxy service.
func NewProxyService(deps ProxyDeps, logger zerolog.Logger, cfg ProxyConfig) *ProxyService {
	if deps.Hooks == nil {
		deps.Hooks = NewHookService()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Transports == nil {
		deps.Transports = make(map[string]ports.Transport)
	}

	s := &ProxyService{
		endpoints:  deps.Endpoints,
		transports: deps.Transports,
		cache:      deps.Cache,
		hooks:      deps.Hooks,
		notifier:   deps.Notifier,
		observer:   deps.Observer,
		clock:      deps.Clock,
		idGen:      deps.IDGen,
		logger:     logger.With().Str("service", "proxy").Logger(),
	}
	s.mockMode.Store(cfg.MockMode)
	return s
}

// SetMockMode toggles global mock mode.
func (s *ProxyService) SetMockMode(enabled bool) {
	s.mockMode.Store(enabled)
}

// MockMode reports whether global mock mode is on.
func (s *ProxyService) MockMode() bool {
	return s.mockMode.Load()
}

// Call executes one call against the endpoint registered under key.
//
// Missing and disabled endpoints fail before dispatch. With an effective
// cache time above zero, an unexpired cached envelope is returned without
// dispatching. Otherwise the endpoint's handler, or its bound transport, is
// invoked with up to Retries additional attempts.
func (s *ProxyService) Call(ctx context.Context, key string, params map[string]any, opts call.Options) (call.Envelope, error) {
	start := s.clock.Now()

	e, err := s.resolve(key)
	if err != nil {
		return s.fail(ctx, key, opts, start, err)
	}
	if params == nil {
		params = map[string]any{}
	}

	if err := s.hooks.Validate(e, params); err != nil {
		return s.fail(ctx, key, opts, start, err)
	}

	if (opts.UseMock || s.MockMode()) && e.HasMock() {
		data, err := s.hooks.Mock(e, params)
		if err != nil {
			return s.fail(ctx, key, opts, start, call.Transport(key, 0, err))
		}
		s.observer.ObserveCall(key, OutcomeMock, s.clock.Now().Sub(start))
		return call.Wrap(data), nil
	}

	timeout, retries, cacheTime := effective(e, opts)

	if cacheTime <= 0 || s.cache == nil {
		env, err := s.execute(ctx, e, params, opts, timeout, retries)
		if err != nil {
			return s.fail(ctx, key, opts, start, err)
		}
		s.observer.ObserveCall(key, OutcomeSuccess, s.clock.Now().Sub(start))
		return env, nil
	}

	cacheKey := call.CacheKey(key, params)
	if env, ok := s.cacheGet(ctx, key, cacheKey); ok {
		s.observer.ObserveCall(key, OutcomeCached, s.clock.Now().Sub(start))
		return env, nil
	}

	// The flight outlives any single caller: each caller stops waiting on its
	// own context while the dispatch stays bounded by the attempt timeouts.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(flightKey(cacheKey, opts, timeout, retries), func() (any, error) {
		// A flight that finished between our lookup and this one populated the cache.
		if env, ok := s.cacheGet(flightCtx, "", cacheKey); ok {
			return env, nil
		}
		env, err := s.execute(flightCtx, e, params, opts, timeout, retries)
		if err != nil {
			return nil, err
		}
		if !env.Success {
			return env, nil
		}
		if err := s.cache.Set(flightCtx, cacheKey, env, cacheTime); err != nil {
			s.logger.Warn().Err(err).Str("endpoint", key).Msg("failed to cache response")
		}
		return env, nil
	})

	var v any
	select {
	case res := <-ch:
		if res.Err != nil {
			return s.fail(ctx, key, opts, start, res.Err)
		}
		v = res.Val
	case <-ctx.Done():
		return s.fail(ctx, key, opts, start, classify(ctx, key, 0, ctx.Err()))
	}

	s.observer.ObserveCall(key, OutcomeSuccess, s.clock.Now().Sub(start))
	return v.(call.Envelope), nil
}

// flightKey groups calls that would dispatch the same request under the
// same policy.
func flightKey(cacheKey string, opts call.Options, timeout time.Duration, retries int) string {
	k := fmt.Sprintf("%s|%s|%d", cacheKey, timeout, retries)
	if len(opts.Headers) > 0 {
		headers := make(map[string]any, len(opts.Headers))
		for name, value := range opts.Headers {
			headers[name] = value
		}
		k += "|" + call.Stringify(headers)
	}
	return k
}

// Test dispatches one attempt against the endpoint, bypassing cache and
// mock, and reports the outcome. It never returns an error.
func (s *ProxyService) Test(ctx context.Context, key string, params map[string]any) (diag call.Diagnostic) {
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			diag = call.Diagnostic{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
		diag.ResponseTime = s.clock.Now().Sub(start)
	}()

	e, err := s.resolve(key)
	if err != nil {
		return call.Diagnostic{Error: err.Error()}
	}
	if params == nil {
		params = map[string]any{}
	}

	timeout, _, _ := effective(e, call.Options{})
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.Hooks.Handler != nil {
		result, err := s.invokeHandler(actx, e, params, call.Options{})
		if err != nil {
			return call.Diagnostic{Error: classify(actx, key, 0, err).Error()}
		}
		env := call.Wrap(result)
		return call.Diagnostic{Success: env.Success, Data: env.Data, Error: env.Error}
	}

	resp, err := s.dispatch(actx, e, params, call.Options{})
	diag = call.Diagnostic{Status: resp.Status, Data: call.DecodeBody(resp.Body)}
	if err != nil {
		diag.Error = err.Error()
		if diag.Status == 0 {
			diag.Status = call.StatusOf(err)
		}
		return diag
	}
	diag.Success = true
	return diag
}

// BatchCall executes calls in parallel or sequentially. Failures are captured
// per item and never abort siblings; results follow input order.
func (s *ProxyService) BatchCall(ctx context.Context, items []call.BatchItem, opts call.BatchOptions) []call.BatchResult {
	return RunBatch(ctx, items, opts, s.Call)
}

// ClearCache drops every cached response of an endpoint.
func (s *ProxyService) ClearCache(ctx context.Context, key string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.DeletePrefix(ctx, call.CachePrefix(key))
}

func (s *ProxyService) resolve(key string) (endpoint.Endpoint, error) {
	e, ok := s.endpoints.Get(key)
	if !ok {
		return endpoint.Endpoint{}, call.NotFound(key)
	}
	if !e.Callable() {
		return endpoint.Endpoint{}, call.Disabled(key)
	}
	return e, nil
}

// effective resolves per-call overrides against the endpoint definition.
func effective(e endpoint.Endpoint, opts call.Options) (timeout time.Duration, retries int, cacheTime time.Duration) {
	timeout, retries, cacheTime = e.Timeout, e.Retries, e.CacheTime
	if opts.Timeout != nil {
		timeout = *opts.Timeout
	}
	if opts.Retries != nil {
		retries = *opts.Retries
	}
	if opts.CacheTime != nil {
		cacheTime = *opts.CacheTime
	}
	if timeout <= 0 {
		timeout = endpoint.DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return timeout, retries, cacheTime
}

func (s *ProxyService) cacheGet(ctx context.Context, key, cacheKey string) (call.Envelope, bool) {
	env, ok, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("cache lookup failed")
		return call.Envelope{}, false
	}
	if key != "" {
		s.observer.ObserveCache(key, ok)
	}
	return env, ok
}

// execute runs the first attempt plus up to retries more, sequentially and
// without delay. Only transport failures and timeouts are retried.
func (s *ProxyService) execute(ctx context.Context, e endpoint.Endpoint, params map[string]any, opts call.Options, timeout time.Duration, retries int) (call.Envelope, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			s.observer.ObserveRetry(e.Key)
			s.logger.Debug().
				Str("endpoint", e.Key).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("retrying call")
		}

		env, err := s.attempt(ctx, e, params, opts, timeout)
		if err == nil {
			return env, nil
		}
		lastErr = err

		var cerr *call.Error
		if errors.As(err, &cerr) && !cerr.Retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return call.Envelope{}, lastErr
}

func (s *ProxyService) attempt(ctx context.Context, e endpoint.Endpoint, params map[string]any, opts call.Options, timeout time.Duration) (call.Envelope, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.Hooks.Handler != nil {
		result, err := s.invokeHandler(actx, e, params, opts)
		if err != nil {
			return call.Envelope{}, classify(actx, e.Key, 0, err)
		}
		return call.Wrap(result), nil
	}

	resp, err := s.dispatch(actx, e, params, opts)
	if err != nil {
		return call.Envelope{}, err
	}

	env := call.Normalize(call.DecodeBody(resp.Body))
	if env.Success {
		data, err := s.hooks.Transform(e, params, env.Data)
		if err != nil {
			return call.Envelope{}, call.Transport(e.Key, resp.Status, err)
		}
		env.Data = data
	}
	return env, nil
}

// dispatch sends one request through the endpoint's bound transport.
func (s *ProxyService) dispatch(ctx context.Context, e endpoint.Endpoint, params map[string]any, opts call.Options) (call.Response, error) {
	transport, ok := s.transports[e.Transport]
	if !ok {
		return call.Response{}, call.Transport(e.Key, 0, fmt.Errorf("no transport client named %q", e.Transport))
	}

	traceID := ""
	if s.idGen != nil {
		traceID = s.idGen.New()
	}
	req, err := endpoint.BuildRequest(e, params, opts, traceID)
	if err != nil {
		return call.Response{}, err
	}

	resp, err := transport.Do(ctx, req)
	if err != nil {
		return resp, classify(ctx, e.Key, resp.Status, err)
	}
	return resp, nil
}

// invokeHandler runs the custom handler, bounded by ctx even if the handler
// ignores it. Panics are reported as errors.
func (s *ProxyService) invokeHandler(ctx context.Context, e endpoint.Endpoint, params map[string]any, opts call.Options) (any, error) {
	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		v, err := e.Hooks.Handler(ctx, params, opts)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify maps a dispatch failure onto the error taxonomy.
func classify(ctx context.Context, key string, status int, err error) error {
	var cerr *call.Error
	if errors.As(err, &cerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return call.Timeout(key, err)
	}
	return call.Transport(key, status, err)
}

// fail records a terminal failure and raises a notification unless suppressed.
func (s *ProxyService) fail(ctx context.Context, key string, opts call.Options, start time.Time, err error) (call.Envelope, error) {
	s.observer.ObserveCall(key, OutcomeError, s.clock.Now().Sub(start))
	s.logger.Warn().Err(err).Str("endpoint", key).Msg("call failed")

	if opts.Notify() {
		s.notifier.Notify(ctx, ports.Notification{
			Level:       "error",
			EndpointKey: key,
			Title:       "Request failed",
			Message:     err.Error(),
			Code:        call.CodeOf(err),
		})
	}
	return call.Envelope{}, err
}
