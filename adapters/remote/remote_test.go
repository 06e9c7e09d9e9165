package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/apicore/domain/endpoint"
	json "github.com/goccy/go-json"
)

// =============================================================================
// Client Tests (remote.go)
// =============================================================================

func TestNewClient_DefaultTimeout(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "https://config.example.com"})
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", client.httpClient.Timeout)
	}
	if client.baseURL != "https://config.example.com" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
}

func TestClientRequest_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Tenant"); got != "acme" {
			t.Errorf("X-Tenant = %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		APIKey:  "secret",
		Headers: map[string]string{"X-Tenant": "acme"},
	})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.Request(context.Background(), "GET", "/x", nil, &out); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !out.OK {
		t.Error("expected ok=true")
	}
}

func TestClientRequest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	err := client.Request(context.Background(), "GET", "/missing", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q should mention status", err)
	}
}

func TestClientRequest_EnvelopeError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		message   string
		temporary bool
	}{
		{"envelope", http.StatusConflict, `{"success":false,"error":"stale revision"}`, "stale revision", false},
		{"plain text", http.StatusBadGateway, "upstream down", "upstream down", true},
		{"empty", http.StatusTooManyRequests, "", "Too Many Requests", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{BaseURL: server.URL + "/"})
			err := client.Put(context.Background(), "/endpoints", map[string]any{}, nil)

			se, ok := err.(*StatusError)
			if !ok {
				t.Fatalf("error = %T %v, want *StatusError", err, err)
			}
			if se.StatusCode != tt.status || se.Message != tt.message {
				t.Errorf("StatusError = %d %q, want %d %q", se.StatusCode, se.Message, tt.status, tt.message)
			}
			if se.Path != "/endpoints" || se.Method != http.MethodPut {
				t.Errorf("request = %s %s", se.Method, se.Path)
			}
			if se.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", se.Temporary(), tt.temporary)
			}
		})
	}
}

// =============================================================================
// EndpointStore Tests (endpoints.go)
// =============================================================================

func TestEndpointStore_GetAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/endpoints" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{
			"success": true,
			"data": {
				"ping": {"url": "https://api.example.com/ping", "cacheTime": 1000},
				"users": {
					"key": "users",
					"url": "https://api.example.com/users/{id}",
					"method": "post",
					"timeout": "2500",
					"retries": "2",
					"status": "disabled",
					"headers": {"X-App": "core"},
					"createdAt": "2024-01-02T03:04:05Z"
				}
			}
		}`))
	}))
	defer server.Close()

	store := NewEndpointStore(NewClient(ClientConfig{BaseURL: server.URL}))
	got, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	ping := got["ping"]
	if ping.Key != "ping" {
		t.Errorf("ping key = %q, want key filled from map", ping.Key)
	}
	if ping.CacheTime != time.Second {
		t.Errorf("ping CacheTime = %v, want 1s", ping.CacheTime)
	}

	users := got["users"]
	if users.Timeout != 2500*time.Millisecond {
		t.Errorf("users Timeout = %v", users.Timeout)
	}
	if users.Retries != 2 {
		t.Errorf("users Retries = %d", users.Retries)
	}
	if users.Status != endpoint.StatusDisabled {
		t.Errorf("users Status = %q", users.Status)
	}
	if users.Headers["X-App"] != "core" {
		t.Errorf("users Headers = %v", users.Headers)
	}
	if users.CreatedAt.IsZero() {
		t.Error("users CreatedAt should be parsed")
	}
}

func TestEndpointStore_GetAllNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	store := NewEndpointStore(NewClient(ClientConfig{BaseURL: server.URL}))
	got, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestEndpointStore_GetAllUnsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "locked"}`))
	}))
	defer server.Close()

	store := NewEndpointStore(NewClient(ClientConfig{BaseURL: server.URL}))
	if _, err := store.GetAll(context.Background()); err == nil {
		t.Fatal("expected error for success=false")
	}
}

func TestEndpointStore_Save(t *testing.T) {
	var received map[string]map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Method = %q, want PUT", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	store := NewEndpointStore(NewClient(ClientConfig{BaseURL: server.URL}))
	ping := endpoint.New("ping", "https://api.example.com/ping")
	ping.CacheTime = time.Second

	if err := store.Save(context.Background(), endpoint.Collection{"ping": ping}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := received["ping"]
	if rec["url"] != "https://api.example.com/ping" {
		t.Errorf("url = %v", rec["url"])
	}
	if rec["cacheTime"] != float64(1000) {
		t.Errorf("cacheTime = %v, want 1000", rec["cacheTime"])
	}
	if rec["timeout"] != float64(15000) {
		t.Errorf("timeout = %v, want 15000", rec["timeout"])
	}
}

func TestEndpointStore_SaveRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := NewEndpointStore(NewClient(ClientConfig{BaseURL: server.URL}))
	if err := store.Save(context.Background(), endpoint.Collection{}); err == nil {
		t.Fatal("expected error")
	}
}
