package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/apicore/adapters/memory"
	"github.com/artpar/apicore/app"
	"github.com/artpar/apicore/domain/variable"
	"github.com/rs/zerolog"
)

func newTestVariableService() (*app.VariableService, *memory.VariableStore) {
	store := memory.NewVariableStore()
	host := variable.HostInfo{Mode: "development", BaseURL: "https://api.example.com", Platform: "linux", Timestamp: baseTime}
	return app.NewVariableService(store, host, zerolog.Nop()), store
}

func TestVariables_Precedence(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()

	svc.Set(ctx, variable.ScopeGlobal, "tenant", "global-tenant")
	svc.Set(ctx, variable.ScopeSession, "tenant", "session-tenant")

	if v, _ := svc.Get("tenant"); v != "session-tenant" {
		t.Errorf("Get() = %v, want session value", v)
	}

	svc.Remove(ctx, variable.ScopeSession, "tenant")
	if v, _ := svc.Get("tenant"); v != "global-tenant" {
		t.Errorf("Get() after session removal = %v, want global value", v)
	}
}

func TestVariables_UserBeatsGlobal(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()

	svc.Set(ctx, variable.ScopeGlobal, "theme", "light")
	svc.Set(ctx, variable.ScopeUser, "theme", "dark")

	if v, _ := svc.Get("theme"); v != "dark" {
		t.Errorf("Get() = %v, want user value", v)
	}
}

func TestVariables_FalsyValueWins(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()

	svc.Set(ctx, variable.ScopeGlobal, "limit", 50)
	svc.Set(ctx, variable.ScopeSession, "limit", 0)

	v, ok := svc.Get("limit")
	if !ok || v != 0 {
		t.Errorf("Get() = %v, %v; a defined zero should win", v, ok)
	}
}

func TestVariables_EnvScope(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()

	if v, _ := svc.GetIn(variable.ScopeEnv, "baseUrl"); v != "https://api.example.com" {
		t.Errorf("env baseUrl = %v", v)
	}
	if v, _ := svc.Get("isDevelopment"); v != true {
		t.Errorf("isDevelopment = %v, want true", v)
	}
	if v, _ := svc.Get("clientType"); v != "server" {
		t.Errorf("clientType = %v, want server", v)
	}

	if err := svc.Set(ctx, variable.ScopeEnv, "mode", "x"); !errors.Is(err, app.ErrImmutableScope) {
		t.Errorf("Set env = %v, want ErrImmutableScope", err)
	}
	if err := svc.Remove(ctx, variable.ScopeEnv, "mode"); !errors.Is(err, app.ErrImmutableScope) {
		t.Errorf("Remove env = %v, want ErrImmutableScope", err)
	}
	if err := svc.Clear(ctx, variable.ScopeEnv); !errors.Is(err, app.ErrImmutableScope) {
		t.Errorf("Clear env = %v, want ErrImmutableScope", err)
	}

	// Other scopes shadow env.
	svc.Set(ctx, variable.ScopeGlobal, "mode", "override")
	if v, _ := svc.Get("mode"); v != "override" {
		t.Errorf("Get(mode) = %v, want override", v)
	}
}

func TestVariables_SetValidation(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()

	if err := svc.Set(ctx, variable.ScopeGlobal, "", 1); err == nil {
		t.Error("expected error for empty name")
	}
	if err := svc.Set(ctx, variable.Scope("tenant"), "a", 1); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestVariables_DurableScopesWriteThrough(t *testing.T) {
	svc, store := newTestVariableService()
	ctx := context.Background()

	svc.Set(ctx, variable.ScopeGlobal, "region", "eu")
	svc.Set(ctx, variable.ScopeUser, "lang", "de")
	svc.Set(ctx, variable.ScopeSession, "token", "t")

	global, _ := store.Load(ctx, variable.ScopeGlobal)
	if global["region"] != "eu" {
		t.Errorf("stored global = %v", global)
	}
	user, _ := store.Load(ctx, variable.ScopeUser)
	if user["lang"] != "de" {
		t.Errorf("stored user = %v", user)
	}
	session, _ := store.Load(ctx, variable.ScopeSession)
	if len(session) != 0 {
		t.Errorf("session variables must not be stored, got %v", session)
	}

	svc.Clear(ctx, variable.ScopeGlobal)
	global, _ = store.Load(ctx, variable.ScopeGlobal)
	if len(global) != 0 {
		t.Errorf("stored global after Clear = %v", global)
	}
}

func TestVariables_Load(t *testing.T) {
	store := memory.NewVariableStore()
	ctx := context.Background()
	store.Set(ctx, variable.ScopeGlobal, "region", "us")
	store.Set(ctx, variable.ScopeUser, "lang", "fr")

	svc := app.NewVariableService(store, variable.HostInfo{}, zerolog.Nop())
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if v, _ := svc.Get("region"); v != "us" {
		t.Errorf("region = %v", v)
	}
	if v, _ := svc.GetIn(variable.ScopeUser, "lang"); v != "fr" {
		t.Errorf("lang = %v", v)
	}
}

func TestVariables_WithoutStore(t *testing.T) {
	svc := app.NewVariableService(nil, variable.HostInfo{}, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Load(ctx); err != nil {
		t.Errorf("Load error: %v", err)
	}
	if err := svc.Set(ctx, variable.ScopeGlobal, "a", 1); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if v, _ := svc.Get("a"); v != 1 {
		t.Errorf("Get() = %v", v)
	}
}

func TestVariables_EndSession(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()
	svc.Set(ctx, variable.ScopeSession, "token", "t")
	svc.Set(ctx, variable.ScopeGlobal, "region", "eu")

	svc.EndSession()

	if _, ok := svc.Get("token"); ok {
		t.Error("session variable survived EndSession")
	}
	if _, ok := svc.Get("region"); !ok {
		t.Error("global variable dropped by EndSession")
	}
	if len(svc.All(variable.ScopeSession)) != 0 {
		t.Error("All(session) should be empty")
	}
}

func TestVariables_Replace(t *testing.T) {
	svc, _ := newTestVariableService()
	ctx := context.Background()
	svc.Set(ctx, variable.ScopeGlobal, "org", "acme")
	svc.Set(ctx, variable.ScopeSession, "page", 2)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single", "/orgs/${org}", "/orgs/acme"},
		{"number", "page=${page}", "page=2"},
		{"env", "${baseUrl}/v1", "https://api.example.com/v1"},
		{"unresolved", "${missing}/x", "${missing}/x"},
		{"multiple", "${org}-${org}", "acme-acme"},
		{"none", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.ReplaceVariables(tt.in); got != tt.want {
				t.Errorf("ReplaceVariables(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVariables_ReplaceObject(t *testing.T) {
	svc, _ := newTestVariableService()
	svc.Set(context.Background(), variable.ScopeGlobal, "org", "acme")

	in := map[string]any{
		"path":  "/orgs/${org}",
		"limit": 10,
		"tags":  []any{"${org}", true},
		"inner": map[string]any{"name": "${org}"},
	}
	got := svc.ReplaceObjectVariables(in).(map[string]any)

	if got["path"] != "/orgs/acme" {
		t.Errorf("path = %v", got["path"])
	}
	if got["limit"] != 10 {
		t.Errorf("limit = %v, non-strings must be untouched", got["limit"])
	}
	if tags := got["tags"].([]any); tags[0] != "acme" || tags[1] != true {
		t.Errorf("tags = %v", tags)
	}
	if inner := got["inner"].(map[string]any); inner["name"] != "acme" {
		t.Errorf("inner = %v", inner)
	}
	if in["path"] != "/orgs/${org}" {
		t.Error("input was modified")
	}
}
