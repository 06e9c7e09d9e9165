package bootstrap_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/artpar/apicore/bootstrap"
	"github.com/artpar/apicore/config"
	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/variable"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"hello from upstream","path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func parse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *bootstrap.App {
	t.Helper()
	logger := zerolog.Nop()
	a, err := bootstrap.New(cfg, bootstrap.Options{Version: "test", Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func TestBootstrap_SeededCall(t *testing.T) {
	upstream := newUpstream(t)
	cfg := parse(t, `
database:
  driver: memory
transports:
  default:
    base_url: "`+upstream.URL+`"
endpoints:
  - key: greet
    url: /greet/{name}
variables:
  global:
    who: world
`)

	a := newApp(t, cfg)
	require.NoError(t, a.Hydrate(context.Background()))

	env, err := a.Manager.Call(context.Background(), "greet", map[string]any{"name": "${who}"}, call.Options{})
	require.NoError(t, err)
	require.True(t, env.Success)

	data := env.Data.(map[string]any)
	assert.Equal(t, "hello from upstream", data["message"])
	assert.Equal(t, "/greet/world", data["path"])
}

func TestBootstrap_SQLitePersistsAcrossRestarts(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "apicore.db")
	cfg := parse(t, `
database:
  driver: sqlite
  dsn: "`+dsn+`"
`)
	ctx := context.Background()

	logger := zerolog.Nop()
	first, err := bootstrap.New(cfg, bootstrap.Options{Logger: &logger})
	require.NoError(t, err)
	require.NoError(t, first.Hydrate(ctx))
	require.NotNil(t, first.DB)

	require.NoError(t, first.Manager.Variables.Set(ctx, variable.ScopeGlobal, "region", "eu"))
	_, err = first.Manager.DetectFields(ctx, "users", map[string]any{"id": 1.0})
	require.NoError(t, err)
	first.Shutdown()

	second := newApp(t, cfg)
	v, ok := second.Manager.Variables.Get("region")
	assert.True(t, ok)
	assert.Equal(t, "eu", v)
	assert.Contains(t, second.Manager.GetFields("users"), "id")
}

func TestBootstrap_VariableSeedsDoNotOverwrite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "apicore.db")
	ctx := context.Background()

	seeded := parse(t, `
database:
  dsn: "`+dsn+`"
variables:
  global:
    region: us
`)

	logger := zerolog.Nop()
	first, err := bootstrap.New(seeded, bootstrap.Options{Logger: &logger})
	require.NoError(t, err)
	require.NoError(t, first.Manager.Variables.Set(ctx, variable.ScopeGlobal, "region", "eu"))
	first.Shutdown()

	second := newApp(t, seeded)
	v, _ := second.Manager.Variables.Get("region")
	assert.Equal(t, "eu", v, "stored value should win over the seed")
}

func TestBootstrap_HTTPServer(t *testing.T) {
	cfg := parse(t, `
database:
  driver: memory
metrics:
  enabled: true
endpoints:
  - key: fixture
    url: /unused
    mock:
      ok: true
runtime:
  mock_mode: true
`)

	a := newApp(t, cfg)
	require.NoError(t, a.Hydrate(context.Background()))

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/call/fixture", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "apicore_calls_total")
}

func TestBootstrap_RedisCache(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"v":1}`))
	}))
	defer upstream.Close()

	mr := miniredis.RunT(t)
	cfg := parse(t, `
database:
  driver: memory
cache:
  backend: redis
  address: "`+mr.Addr()+`"
transports:
  default:
    base_url: "`+upstream.URL+`"
endpoints:
  - key: cached
    url: /cached
    cacheTime: 60000
`)

	a := newApp(t, cfg)
	require.NoError(t, a.Hydrate(context.Background()))

	for i := 0; i < 3; i++ {
		env, err := a.Manager.Call(context.Background(), "cached", nil, call.Options{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"v": 1.0}, env.Data)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.NotEmpty(t, mr.Keys())
}

func TestBootstrap_RedisUnavailable(t *testing.T) {
	cfg := parse(t, `
database:
  driver: memory
cache:
  backend: redis
  address: "127.0.0.1:1"
`)

	logger := zerolog.Nop()
	_, err := bootstrap.New(cfg, bootstrap.Options{Logger: &logger})
	assert.Error(t, err)
}

func TestBootstrap_ReloadReappliesSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apicore.yaml")
	write := func(url string, mock bool) {
		content := "database:\n  driver: memory\nruntime:\n  mock_mode: " + map[bool]string{true: "true", false: "false"}[mock] +
			"\nendpoints:\n  - key: users\n    url: " + url + "\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("/v1/users", false)

	h, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)

	logger := zerolog.Nop()
	a, err := bootstrap.NewFromHolder(h, bootstrap.Options{Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown() })
	require.NoError(t, a.Hydrate(context.Background()))

	e, ok := a.Manager.Registry.Get("users")
	require.True(t, ok)
	assert.Equal(t, "/v1/users", e.URL)
	assert.False(t, a.Manager.Proxy.MockMode())

	write("/v2/users", true)
	require.NoError(t, h.Reload())

	e, _ = a.Manager.Registry.Get("users")
	assert.Equal(t, "/v2/users", e.URL)
	assert.True(t, a.Manager.Proxy.MockMode())
}

func TestBootstrap_ShutdownWaitsForPersistence(t *testing.T) {
	cfg := parse(t, "database:\n  driver: memory\n")
	a := newApp(t, cfg)
	require.NoError(t, a.Hydrate(context.Background()))

	done := make(chan struct{})
	go func() {
		a.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
