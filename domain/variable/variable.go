// Package variable provides variable scopes, scope precedence and the
// ${name} template resolver used to parameterize call params.
package variable

import (
	"fmt"
	"regexp"

	"github.com/artpar/apicore/domain/call"
)

// Scope is the bucket a variable lives in.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeUser    Scope = "user"
	ScopeSession Scope = "session"
	ScopeEnv     Scope = "env"
)

var precedence = [...]Scope{ScopeSession, ScopeUser, ScopeGlobal, ScopeEnv}

// Precedence returns the resolution order for unscoped lookups, highest
// first. The slice is a fresh copy.
func Precedence() []Scope {
	out := make([]Scope, len(precedence))
	copy(out, precedence[:])
	return out
}

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeUser, ScopeSession, ScopeEnv:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown variable scope %q", s)
}

// Mutable reports whether variables in the scope can be changed after startup.
func (s Scope) Mutable() bool {
	return s != ScopeEnv
}

// Durable reports whether the scope outlives the runtime session.
func (s Scope) Durable() bool {
	return s == ScopeGlobal || s == ScopeUser
}

// Variable is a named value in a scope.
type Variable struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Scope Scope  `json:"scope"`
}

// Lookup resolves a variable name. ok reports whether the name is defined,
// independent of whether the value is falsy.
type Lookup func(name string) (value any, ok bool)

var tokenRe = regexp.MustCompile(`\$\{([^{}]+)\}`)

// Replace substitutes ${name} tokens in s. Tokens that do not resolve are
// left verbatim.
func Replace(s string, lookup Lookup) string {
	if lookup == nil {
		return s
	}
	return tokenRe.ReplaceAllStringFunc(s, func(token string) string {
		name := token[2 : len(token)-1]
		v, ok := lookup(name)
		if !ok {
			return token
		}
		return call.Stringify(v)
	})
}

// ReplaceObject walks maps and slices and substitutes tokens in every string
// leaf. Other leaf types are returned untouched. The input is not modified.
func ReplaceObject(v any, lookup Lookup) any {
	switch t := v.(type) {
	case string:
		return Replace(t, lookup)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ReplaceObject(item, lookup)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, item := range t {
			out[k] = Replace(item, lookup)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ReplaceObject(item, lookup)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = Replace(item, lookup)
		}
		return out
	}
	return v
}

// ReplaceParams is ReplaceObject specialized to call params.
func ReplaceParams(params map[string]any, lookup Lookup) map[string]any {
	if params == nil {
		return nil
	}
	return ReplaceObject(params, lookup).(map[string]any)
}
