package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/endpoint"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// HookService evaluates endpoint capability hooks: Go hooks first, then the
// declarative expr-lang expressions carried by the definition.
type HookService struct {
	// Compiled program cache
	cache   map[string]*vm.Program
	cacheMu sync.RWMutex

	// Expr environment options with custom functions
	envOptions []expr.Option
}

// NewHookService creates a hook service with custom Expr functions.
func NewHookService() *HookService {
	s := &HookService{
		cache: make(map[string]*vm.Program),
	}

	s.envOptions = []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("coalesce", func(params ...any) (any, error) {
			for _, p := range params {
				if p != nil && p != "" {
					return p, nil
				}
			}
			return nil, nil
		}),
		expr.Function("pick", func(params ...any) (any, error) {
			if len(params) < 1 {
				return nil, fmt.Errorf("pick requires an object")
			}
			obj, ok := params[0].(map[string]any)
			if !ok {
				return params[0], nil
			}
			out := make(map[string]any, len(params)-1)
			for _, k := range params[1:] {
				key := call.Stringify(k)
				if v, ok := obj[key]; ok {
					out[key] = v
				}
			}
			return out, nil
		}),
		expr.Function("omit", func(params ...any) (any, error) {
			if len(params) < 1 {
				return nil, fmt.Errorf("omit requires an object")
			}
			obj, ok := params[0].(map[string]any)
			if !ok {
				return params[0], nil
			}
			out := make(map[string]any, len(obj))
			for k, v := range obj {
				out[k] = v
			}
			for _, k := range params[1:] {
				delete(out, call.Stringify(k))
			}
			return out, nil
		}),
		expr.Function("truthy", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("truthy requires 1 argument")
			}
			return call.Truthy(params[0]), nil
		}),
	}

	return s
}

// Validate runs the endpoint's validation hooks against call params.
func (s *HookService) Validate(e endpoint.Endpoint, params map[string]any) error {
	if e.Hooks.Validate != nil {
		if err := e.Hooks.Validate(params); err != nil {
			return call.Validation(e.Key, err.Error())
		}
	}
	if e.ValidateExpr == "" {
		return nil
	}
	ok, err := s.EvalBool(e.ValidateExpr, map[string]any{"params": params})
	if err != nil {
		return call.Validation(e.Key, err.Error())
	}
	if !ok {
		return call.Validation(e.Key, "params rejected by "+e.ValidateExpr)
	}
	return nil
}

// Transform runs the endpoint's transform hooks over response data.
func (s *HookService) Transform(e endpoint.Endpoint, params map[string]any, data any) (any, error) {
	var err error
	if e.Hooks.Transform != nil {
		if data, err = e.Hooks.Transform(data); err != nil {
			return nil, fmt.Errorf("transform hook: %w", err)
		}
	}
	if e.TransformExpr != "" {
		if data, err = s.Eval(e.TransformExpr, map[string]any{"data": data, "params": params}); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Mock produces the endpoint's mock data: generator hook, then expression,
// then literal.
func (s *HookService) Mock(e endpoint.Endpoint, params map[string]any) (any, error) {
	switch {
	case e.Hooks.Mock != nil:
		return e.Hooks.Mock(params)
	case e.MockExpr != "":
		return s.Eval(e.MockExpr, map[string]any{"params": params})
	case e.Mock != nil:
		return e.Mock, nil
	}
	return nil, errors.New("endpoint has no mock data")
}

// EvalBool evaluates an expression that must produce a boolean.
func (s *HookService) EvalBool(expression string, env map[string]any) (bool, error) {
	result, err := s.Eval(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", expression, result)
	}
	return b, nil
}

// Eval evaluates an expression against env.
func (s *HookService) Eval(expression string, env map[string]any) (any, error) {
	program, err := s.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run expression: %w", err)
	}

	return result, nil
}

// Compile checks that an expression compiles, caching the program.
func (s *HookService) Compile(expression string) error {
	_, err := s.getOrCompile(expression)
	return err
}

// getOrCompile returns a cached compiled program or compiles a new one.
func (s *HookService) getOrCompile(expression string) (*vm.Program, error) {
	s.cacheMu.RLock()
	program, ok := s.cache[expression]
	s.cacheMu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, s.envOptions...)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[expression] = program
	s.cacheMu.Unlock()

	return program, nil
}

// ClearCache clears the compiled program cache.
func (s *HookService) ClearCache() {
	s.cacheMu.Lock()
	s.cache = make(map[string]*vm.Program)
	s.cacheMu.Unlock()
}
