package fragments

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

const engineCEL = "cel"

type celTypeResolver struct {
	cfg        resolverConfig
	expression string
	program    celgo.Program
}

// NewCELTypeResolver compiles a CEL expression into a TypeResolver. The
// expression sees payload as a map plus the declared and typeKey strings.
//
//	has(payload.kind) ? string(payload.kind) : declared
func NewCELTypeResolver(expression string, opts ...ResolverOption) (TypeResolver, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, wrapEvaluationError(engineCEL, expression, "", fmt.Errorf("expression must not be empty"))
	}
	r := &celTypeResolver{cfg: applyResolverOptions(opts), expression: expression}
	program, err := r.loadOrCompile()
	if err != nil {
		return nil, err
	}
	r.program = program
	return r, nil
}

func (r *celTypeResolver) ResolveType(payload map[string]any, declared, typeKey string) (string, error) {
	started := time.Now()
	if payload == nil {
		payload = map[string]any{}
	}
	out, _, err := r.program.Eval(map[string]any{
		"payload":  payload,
		"declared": declared,
		"typeKey":  typeKey,
	})
	if err != nil {
		err = wrapEvaluationError(engineCEL, r.expression, declared, err)
		r.cfg.logEvaluation(engineCEL, r.expression, declared, started, err)
		return "", err
	}
	var result any
	if out.Type() != types.NullType {
		result = out.Value()
	}
	name, err := resolvedName(engineCEL, r.expression, declared, result)
	r.cfg.logEvaluation(engineCEL, r.expression, declared, started, err)
	return name, err
}

func (r *celTypeResolver) loadOrCompile() (celgo.Program, error) {
	if cached, ok := r.cfg.cached(engineCEL, r.expression); ok {
		if program, ok := cached.(celgo.Program); ok {
			return program, nil
		}
	}
	env, err := r.buildEnv()
	if err != nil {
		return nil, wrapEvaluationError(engineCEL, r.expression, "", err)
	}
	ast, issues := env.Compile(r.expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError(engineCEL, r.expression, "", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError(engineCEL, r.expression, "", err)
	}
	r.cfg.store(engineCEL, r.expression, program)
	return program, nil
}

func (r *celTypeResolver) buildEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("payload", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("declared", celgo.StringType),
		celgo.Variable("typeKey", celgo.StringType),
	}
	if r.cfg.registry != nil {
		opts = append(opts, celgo.Function("call",
			celgo.Overload("call_string_list",
				[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
				celgo.DynType,
				celgo.BinaryBinding(r.callBinding),
			),
		))
	}
	return celgo.NewEnv(opts...)
}

// callBinding dispatches call(name, [args...]) to the function registry.
func (r *celTypeResolver) callBinding(nameVal, argsVal ref.Val) ref.Val {
	name, ok := nameVal.Value().(string)
	if !ok {
		return types.NewErr("fragments: call name must be string")
	}
	native, err := argsVal.ConvertToNative(reflect.TypeOf([]any{}))
	if err != nil {
		return types.NewErr("fragments: call arguments: %v", err)
	}
	args, _ := native.([]any)
	result, err := r.cfg.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}
