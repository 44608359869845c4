//go:build js_eval

package fragments

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const engineJS = "js"

type jsTypeResolver struct {
	cfg        resolverConfig
	expression string
	program    *goja.Program
}

// NewJSTypeResolver compiles a JavaScript expression into a TypeResolver.
// Payload fields are visible as globals next to payload, declared and
// typeKey.
func NewJSTypeResolver(expression string, opts ...ResolverOption) (TypeResolver, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, wrapEvaluationError(engineJS, expression, "", fmt.Errorf("expression must not be empty"))
	}
	r := &jsTypeResolver{cfg: applyResolverOptions(opts), expression: expression}
	program, err := r.loadOrCompile()
	if err != nil {
		return nil, err
	}
	r.program = program
	return r, nil
}

func (r *jsTypeResolver) ResolveType(payload map[string]any, declared, typeKey string) (string, error) {
	started := time.Now()
	vm := goja.New()
	for key, value := range payloadEnvironment(payload, declared, typeKey) {
		if err := vm.Set(key, value); err != nil {
			return "", wrapEvaluationError(engineJS, r.expression, declared, err)
		}
	}
	if r.cfg.registry != nil {
		_ = vm.Set("call", func(name string, arguments ...any) (any, error) {
			return r.cfg.registry.Call(name, arguments...)
		})
		for _, name := range r.cfg.registry.Names() {
			fn := name
			_ = vm.Set(fn, func(arguments ...any) (any, error) {
				return r.cfg.registry.Call(fn, arguments...)
			})
		}
	}
	value, err := vm.RunProgram(r.program)
	if err != nil {
		err = wrapEvaluationError(engineJS, r.expression, declared, err)
		r.cfg.logEvaluation(engineJS, r.expression, declared, started, err)
		return "", err
	}
	name, err := resolvedName(engineJS, r.expression, declared, value.Export())
	r.cfg.logEvaluation(engineJS, r.expression, declared, started, err)
	return name, err
}

func (r *jsTypeResolver) loadOrCompile() (*goja.Program, error) {
	if cached, ok := r.cfg.cached(engineJS, r.expression); ok {
		if program, ok := cached.(*goja.Program); ok {
			return program, nil
		}
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", r.expression), false)
	if err != nil {
		return nil, wrapEvaluationError(engineJS, r.expression, "", err)
	}
	r.cfg.store(engineJS, r.expression, program)
	return program, nil
}

// JSResolverAvailable reports whether the binary was built with js_eval.
func JSResolverAvailable() bool {
	return true
}
