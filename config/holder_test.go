package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/apicore/config"
	"github.com/rs/zerolog"
)

type reloadRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *reloadRecorder) ObserveReload(err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func (r *reloadRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ok, r.failed
}

func TestHolder_Get(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))

	cfg := h.Get()
	if cfg == nil {
		t.Fatal("Get returned nil")
	}
	seeds, _ := cfg.EndpointSeeds()
	if len(seeds) != 1 || seeds[0].URL != "/users" {
		t.Errorf("seeds = %+v", seeds)
	}
	if !filepath.IsAbs(h.Path()) {
		t.Errorf("Path() = %s, want absolute", h.Path())
	}
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))
	rec := &reloadRecorder{}
	h.SetObserver(rec)

	var mu sync.Mutex
	var received []string
	h.OnChange(func(cfg *config.Config) {
		seeds, _ := cfg.EndpointSeeds()
		mu.Lock()
		received = append(received, seeds[0].URL)
		mu.Unlock()
	})

	rewrite(t, h.Path(), seededConfig("/v2/users"))
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if len(received) != 1 || received[0] != "/v2/users" {
		t.Errorf("listener saw %v", received)
	}
	mu.Unlock()

	if ok, failed := rec.counts(); ok != 1 || failed != 0 {
		t.Errorf("observer counts = %d/%d, want 1/0", ok, failed)
	}
}

func TestHolder_ReloadInvalidKeepsConfig(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))
	rec := &reloadRecorder{}
	h.SetObserver(rec)

	called := false
	h.OnChange(func(*config.Config) { called = true })

	rewrite(t, h.Path(), "endpoints:\n  - key: users\n")
	if err := h.Reload(); err == nil {
		t.Fatal("Reload should fail for an endpoint without url")
	}

	seeds, _ := h.Get().EndpointSeeds()
	if seeds[0].URL != "/users" {
		t.Errorf("URL = %s, old config should be kept", seeds[0].URL)
	}
	if called {
		t.Error("listeners must not run after a failed reload")
	}
	if ok, failed := rec.counts(); ok != 0 || failed != 1 {
		t.Errorf("observer counts = %d/%d, want 0/1", ok, failed)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	rewrite(t, h.Path(), seededConfig("/watched"))

	// A write can surface as several events; wait for the final content.
	deadline := time.Now().Add(2 * time.Second)
	for {
		seeds, _ := h.Get().EndpointSeeds()
		if len(seeds) == 1 && seeds[0].URL == "/watched" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("file watcher did not reload, seeds = %+v", seeds)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHolder_StopIsIdempotent(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := newHolder(t, seededConfig("/users"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := make(map[string]bool)
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	if !reloadable["endpoints"] || !reloadable["runtime.mock_mode"] {
		t.Errorf("ReloadableFields = %v", config.ReloadableFields())
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s is listed as both reloadable and non-reloadable", f)
		}
	}
}

// Helpers

func seededConfig(url string) string {
	return `
database:
  driver: memory
endpoints:
  - key: users
    url: "` + url + `"
`
}

func newHolder(t *testing.T, content string) *config.Holder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, content)

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
