package call

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		raw         any
		wantSuccess bool
		wantData    string
		wantError   string
		wantMessage string
	}{
		{"nil", nil, true, "", "", ""},
		{"scalar", "pong", true, "pong", "", ""},
		{"array", []any{1.0, 2.0}, true, "[1,2]", "", ""},
		{"object without success", map[string]any{"id": 1.0}, true, `{"id":1}`, "", ""},
		{"envelope", map[string]any{"success": true, "data": []any{"a"}}, true, `["a"]`, "", ""},
		{"envelope with message", map[string]any{"success": true, "data": "x", "message": "ok"}, true, "x", "", "ok"},
		{"failure", map[string]any{"success": false, "error": "denied"}, false, "", "denied", ""},
		{"failure with object error", map[string]any{"success": false, "error": map[string]any{"code": 7.0}}, false, "", `{"code":7}`, ""},
		{"lifted keys", map[string]any{"success": true, "id": 3.0, "name": "a"}, true, `{"id":3,"name":"a"}`, "", ""},
		{"truthy success", map[string]any{"success": 1.0, "data": "x"}, true, "x", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Normalize(tt.raw)
			if env.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", env.Success, tt.wantSuccess)
			}
			if got := Stringify(env.Data); got != tt.wantData {
				t.Errorf("Data = %q, want %q", got, tt.wantData)
			}
			if env.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", env.Error, tt.wantError)
			}
			if env.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", env.Message, tt.wantMessage)
			}
		})
	}
}

func TestNormalizeKeepsExtraKeysAsMeta(t *testing.T) {
	env := Normalize(map[string]any{"success": true, "data": []any{}, "total": 10.0})
	if env.Meta["total"] != 10.0 {
		t.Errorf("Meta = %v, want total", env.Meta)
	}
}

func TestWrap(t *testing.T) {
	env := Wrap(map[string]any{"success": false, "x": 1})
	if !env.Success {
		t.Error("Wrap must not lift a success key from plain data")
	}

	in := Envelope{Success: false, Error: "e"}
	if got := Wrap(in); got.Error != "e" || got.Success {
		t.Errorf("Wrap(Envelope) = %+v", got)
	}
	if got := Wrap(&in); got.Error != "e" {
		t.Errorf("Wrap(*Envelope) = %+v", got)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{`{"a":1}`, `{"a":1}`},
		{`[true]`, `[true]`},
		{`not json`, `not json`},
	}
	for _, tt := range tests {
		if got := Stringify(DecodeBody([]byte(tt.body))); got != tt.want {
			t.Errorf("DecodeBody(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"0", true},
		{0, false},
		{0.0, false},
		{math.NaN(), false},
		{2.5, true},
		{int64(-1), true},
		{json.Number("0"), false},
		{[]any{}, true},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("users", map[string]any{"page": 1, "q": "x"})
	b := CacheKey("users", map[string]any{"q": "x", "page": 1})
	if a != b {
		t.Errorf("key order changed the cache key: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, CachePrefix("users")) {
		t.Errorf("%q missing prefix", a)
	}
	if CacheKey("users", nil) != "users:{}" {
		t.Errorf("CacheKey(nil) = %q", CacheKey("users", nil))
	}
	if CacheKey("users", map[string]any{"page": 2}) == CacheKey("users", map[string]any{"page": 1}) {
		t.Error("different params share a key")
	}
	if strings.HasPrefix(CacheKey("a:b", nil), CachePrefix("a")) {
		t.Errorf("%q falls under the prefix of endpoint a", CacheKey("a:b", nil))
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Transport("users", 502, cause)

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(Transport, ErrTransport) = false")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("transport error matched timeout")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if CodeOf(err) != CodeTransportError || StatusOf(err) != 502 {
		t.Errorf("CodeOf/StatusOf = %q/%d", CodeOf(err), StatusOf(err))
	}
	if want := "users: transport error (status 502): dial tcp: refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if CodeOf(cause) != "" || StatusOf(cause) != 0 {
		t.Error("plain errors have no code or status")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{Transport("a", 0, nil), true},
		{Timeout("a", nil), true},
		{NotFound("a"), false},
		{Disabled("a"), false},
		{Validation("a", "bad"), false},
	}
	for _, tt := range tests {
		if got := tt.err.Retryable(); got != tt.want {
			t.Errorf("%s Retryable() = %v, want %v", tt.err.Code, got, tt.want)
		}
	}
}

func TestOptionsOver(t *testing.T) {
	base := Options{
		Timeout:   Duration(time.Second),
		Retries:   Int(1),
		Headers:   map[string]string{"A": "1", "B": "1"},
		ShowError: Bool(false),
	}
	item := Options{
		Retries: Int(3),
		Headers: map[string]string{"B": "2"},
		UseMock: true,
	}

	got := item.Over(base)
	if *got.Timeout != time.Second {
		t.Errorf("Timeout = %v, want base value", *got.Timeout)
	}
	if *got.Retries != 3 {
		t.Errorf("Retries = %d, want item value", *got.Retries)
	}
	if got.Headers["A"] != "1" || got.Headers["B"] != "2" {
		t.Errorf("Headers = %v", got.Headers)
	}
	if got.Notify() {
		t.Error("ShowError false should carry over")
	}
	if !got.UseMock {
		t.Error("UseMock lost")
	}
	if base.Headers["B"] != "1" {
		t.Error("base headers mutated")
	}
}

func TestNotify(t *testing.T) {
	if !(Options{}).Notify() {
		t.Error("nil ShowError should notify")
	}
	if (Options{ShowError: Bool(false)}).Notify() {
		t.Error("ShowError false should not notify")
	}
}

func TestDiagnosticJSON(t *testing.T) {
	data, err := json.Marshal(Diagnostic{Success: true, Status: 200, Data: "ok", ResponseTime: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var out map[string]any
	json.Unmarshal(data, &out)
	if out["responseTime"] != 1500.0 {
		t.Errorf("responseTime = %v, want 1500", out["responseTime"])
	}
	if out["status"] != 200.0 || out["data"] != "ok" {
		t.Errorf("json = %s", data)
	}
}

func TestBatchResultJSON(t *testing.T) {
	data, err := json.Marshal(BatchResult{Key: "a", Err: NotFound("a")})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var out map[string]any
	json.Unmarshal(data, &out)
	if out["code"] != string(CodeConfigNotFound) || out["success"] != false {
		t.Errorf("json = %s", data)
	}
}
