package variable

import (
	"testing"
	"time"
)

func lookupFrom(m map[string]any) Lookup {
	return func(name string) (any, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestReplace(t *testing.T) {
	lookup := lookupFrom(map[string]any{
		"org":   "acme",
		"page":  2,
		"empty": "",
		"flag":  false,
		"ids":   []any{1.0, 2.0},
	})

	tests := []struct {
		in   string
		want string
	}{
		{"/orgs/${org}", "/orgs/acme"},
		{"${page}", "2"},
		{"[${empty}]", "[]"},
		{"${flag}", "false"},
		{"${ids}", "[1,2]"},
		{"${missing}", "${missing}"},
		{"${org}/${missing}/${org}", "acme/${missing}/acme"},
		{"$org {org} ${}", "$org {org} ${}"},
		{"no tokens", "no tokens"},
	}

	for _, tt := range tests {
		if got := Replace(tt.in, lookup); got != tt.want {
			t.Errorf("Replace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if Replace("${org}", nil) != "${org}" {
		t.Error("nil lookup should leave tokens")
	}
}

func TestReplaceObject(t *testing.T) {
	lookup := lookupFrom(map[string]any{"org": "acme"})
	in := map[string]any{
		"s":       "${org}",
		"n":       1,
		"list":    []any{"${org}", 2},
		"strs":    []string{"${org}"},
		"headers": map[string]string{"X-Org": "${org}"},
		"nested":  map[string]any{"deep": []any{map[string]any{"v": "${org}"}}},
	}

	out := ReplaceObject(in, lookup).(map[string]any)

	if out["s"] != "acme" || out["n"] != 1 {
		t.Errorf("out = %v", out)
	}
	if l := out["list"].([]any); l[0] != "acme" || l[1] != 2 {
		t.Errorf("list = %v", l)
	}
	if out["strs"].([]string)[0] != "acme" {
		t.Errorf("strs = %v", out["strs"])
	}
	if out["headers"].(map[string]string)["X-Org"] != "acme" {
		t.Errorf("headers = %v", out["headers"])
	}
	deep := out["nested"].(map[string]any)["deep"].([]any)[0].(map[string]any)
	if deep["v"] != "acme" {
		t.Errorf("deep = %v", deep)
	}
	if in["s"] != "${org}" {
		t.Error("input modified")
	}
}

func TestReplaceParams(t *testing.T) {
	if ReplaceParams(nil, nil) != nil {
		t.Error("nil params should stay nil")
	}
	got := ReplaceParams(map[string]any{"a": "${x}"}, lookupFrom(map[string]any{"x": 1}))
	if got["a"] != "1" {
		t.Errorf("ReplaceParams = %v", got)
	}
}

func TestParseScope(t *testing.T) {
	for _, s := range []string{"global", "user", "session", "env"} {
		if _, err := ParseScope(s); err != nil {
			t.Errorf("ParseScope(%q) error: %v", s, err)
		}
	}
	if _, err := ParseScope("tenant"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestScopeProperties(t *testing.T) {
	tests := []struct {
		scope   Scope
		mutable bool
		durable bool
	}{
		{ScopeGlobal, true, true},
		{ScopeUser, true, true},
		{ScopeSession, true, false},
		{ScopeEnv, false, false},
	}
	for _, tt := range tests {
		if tt.scope.Mutable() != tt.mutable || tt.scope.Durable() != tt.durable {
			t.Errorf("%s: Mutable=%v Durable=%v", tt.scope, tt.scope.Mutable(), tt.scope.Durable())
		}
	}

	order := Precedence()
	want := []Scope{ScopeSession, ScopeUser, ScopeGlobal, ScopeEnv}
	if len(order) != len(want) {
		t.Fatalf("Precedence() = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Precedence() = %v, want %v", order, want)
			break
		}
	}

	order[0] = ScopeEnv
	if Precedence()[0] != ScopeSession {
		t.Error("mutating the returned slice changed the resolution order")
	}
}

func TestHostEnv(t *testing.T) {
	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	env := HostInfo{
		Mode:        "development",
		BaseURL:     "https://api.example.com",
		Platform:    "ios",
		Arch:        "arm64",
		ScreenWidth: 390,
		Timestamp:   ts,
	}.Env()

	if env["isDevelopment"] != true || env["isProduction"] != false {
		t.Errorf("mode flags = %v/%v", env["isDevelopment"], env["isProduction"])
	}
	if env["clientType"] != "mobile" || env["isMobile"] != true {
		t.Errorf("client = %v", env["clientType"])
	}
	if env["baseUrl"] != "https://api.example.com" || env["screenWidth"] != 390 {
		t.Errorf("env = %v", env)
	}
	if env["timestamp"] != ts.UnixMilli() {
		t.Errorf("timestamp = %v", env["timestamp"])
	}

	defaults := HostInfo{}.Env()
	if defaults["mode"] != "production" || defaults["platform"] == "" {
		t.Errorf("defaults = %v", defaults)
	}
}

func TestClassify(t *testing.T) {
	for platform, want := range map[string]string{
		"android": "mobile",
		"darwin":  "desktop",
		"js":      "browser",
		"linux":   "server",
	} {
		if got := Classify(platform); got != want {
			t.Errorf("Classify(%q) = %q, want %q", platform, got, want)
		}
	}
}
