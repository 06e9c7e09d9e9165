package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/apicore/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.CallsTotal == nil {
		t.Error("CallsTotal is nil")
	}
	if m.CacheLookups == nil {
		t.Error("CacheLookups is nil")
	}
	if m.Retries == nil {
		t.Error("Retries is nil")
	}
	if m.PersistenceWrites == nil {
		t.Error("PersistenceWrites is nil")
	}
	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
}

func TestObserveCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveCall("ping", "success", 20*time.Millisecond)
	m.ObserveCall("ping", "cached", time.Millisecond)
	m.ObserveCall("users", "error", time.Second)

	f := gather(t, reg, "apicore_calls_total")
	if f == nil {
		t.Fatal("apicore_calls_total metric not found")
	}
	if len(f.GetMetric()) != 3 {
		t.Errorf("expected 3 metric series, got %d", len(f.GetMetric()))
	}

	if gather(t, reg, "apicore_call_duration_seconds") == nil {
		t.Error("apicore_call_duration_seconds metric not found")
	}
}

func TestObserveCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveCache("ping", true)
	m.ObserveCache("ping", true)
	m.ObserveCache("ping", false)

	f := gather(t, reg, "apicore_cache_lookups_total")
	if f == nil {
		t.Fatal("apicore_cache_lookups_total metric not found")
	}

	values := map[string]float64{}
	for _, metric := range f.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "result" {
				values[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if values["hit"] != 2 || values["miss"] != 1 {
		t.Errorf("cache lookups = %v, want hit=2 miss=1", values)
	}
}

func TestObserveRetryAndPersistence(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveRetry("flaky")
	m.ObserveRetry("flaky")
	m.ObservePersistence(true)
	m.ObservePersistence(false)

	f := gather(t, reg, "apicore_retries_total")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatal("expected one retries series")
	}
	if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}

	f = gather(t, reg, "apicore_registry_persistence_writes_total")
	if f == nil || len(f.GetMetric()) != 2 {
		t.Fatal("expected two persistence series")
	}
}

func TestObserveReload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	at := time.Unix(1700000000, 0)
	m.ObserveReload(nil, at)
	m.ObserveReload(errors.New("bad yaml"), at)

	f := gather(t, reg, "apicore_config_last_reload_timestamp")
	if f == nil {
		t.Fatal("apicore_config_last_reload_timestamp metric not found")
	}
	if got := f.GetMetric()[0].GetGauge().GetValue(); got != 1700000000 {
		t.Errorf("last reload = %v", got)
	}
	if f := gather(t, reg, "apicore_config_reload_errors_total"); f == nil || f.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Error("expected one reload error")
	}
}
