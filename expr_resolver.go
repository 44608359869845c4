package fragments

import (
	"fmt"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

const engineExpr = "expr"

// exprTypeResolver resolves fragment types with github.com/expr-lang/expr.
// Payload fields are visible as top-level variables.
type exprTypeResolver struct {
	cfg        resolverConfig
	expression string
	program    *exprvm.Program
}

// NewExprTypeResolver compiles expression into a TypeResolver.
//
//	kind == "dog" ? "dog" : declared
func NewExprTypeResolver(expression string, opts ...ResolverOption) (TypeResolver, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, wrapEvaluationError(engineExpr, expression, "", fmt.Errorf("expression must not be empty"))
	}
	r := &exprTypeResolver{cfg: applyResolverOptions(opts), expression: expression}
	program, err := r.loadOrCompile()
	if err != nil {
		return nil, err
	}
	r.program = program
	return r, nil
}

func (r *exprTypeResolver) ResolveType(payload map[string]any, declared, typeKey string) (string, error) {
	started := time.Now()
	result, err := exprlang.Run(r.program, r.environment(payload, declared, typeKey))
	if err != nil {
		err = wrapEvaluationError(engineExpr, r.expression, declared, err)
		r.cfg.logEvaluation(engineExpr, r.expression, declared, started, err)
		return "", err
	}
	name, err := resolvedName(engineExpr, r.expression, declared, result)
	r.cfg.logEvaluation(engineExpr, r.expression, declared, started, err)
	return name, err
}

func (r *exprTypeResolver) loadOrCompile() (*exprvm.Program, error) {
	if cached, ok := r.cfg.cached(engineExpr, r.expression); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return program, nil
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range r.cfg.registry.Names() {
		options = append(options, exprlang.Function(name, r.registryFunction(name)))
	}
	program, err := exprlang.Compile(r.expression, options...)
	if err != nil {
		return nil, wrapEvaluationError(engineExpr, r.expression, "", err)
	}
	r.cfg.store(engineExpr, r.expression, program)
	return program, nil
}

func (r *exprTypeResolver) environment(payload map[string]any, declared, typeKey string) map[string]any {
	env := payloadEnvironment(payload, declared, typeKey)
	if r.cfg.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return r.cfg.registry.Call(name, arguments...)
		}
	}
	return env
}

func (r *exprTypeResolver) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return r.cfg.registry.Call(name, arguments...)
	}
}
