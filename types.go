package fragments

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TypeResolver picks the concrete model for a fragment payload. declared is
// the attribute's element type; typeKey is empty unless the attribute is
// polymorphic. An empty result means declared.
type TypeResolver interface {
	ResolveType(payload map[string]any, declared, typeKey string) (string, error)
}

// TypeResolverFunc adapts a function to TypeResolver.
type TypeResolverFunc func(payload map[string]any, declared, typeKey string) (string, error)

// ResolveType implements TypeResolver.
func (fn TypeResolverFunc) ResolveType(payload map[string]any, declared, typeKey string) (string, error) {
	if fn == nil {
		return declared, nil
	}
	return fn(payload, declared, typeKey)
}

// DefaultTypeResolver reads the type name from payload[typeKey] and falls
// back to the declared type when the key is missing or empty.
func DefaultTypeResolver() TypeResolver {
	return TypeResolverFunc(resolveFromTypeKey)
}

func resolveFromTypeKey(payload map[string]any, declared, typeKey string) (string, error) {
	if typeKey == "" {
		return declared, nil
	}
	raw, ok := payload[typeKey]
	if !ok || raw == nil {
		return declared, nil
	}
	name, ok := raw.(string)
	if !ok {
		return "", invalidAssignment("type key %q must hold a string, got %T", typeKey, raw)
	}
	if name = strings.TrimSpace(name); name == "" {
		return declared, nil
	}
	return name, nil
}

// ProgramCache stores compiled resolver programs keyed by engine and
// expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

type syncProgramCache struct {
	programs sync.Map
}

// NewProgramCache returns a ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &syncProgramCache{}
}

func (c *syncProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *syncProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// ResolverOption configures the expression-backed type resolvers.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
	logger   zerolog.Logger
}

// ResolverWithProgramCache shares compiled programs between resolvers.
func ResolverWithProgramCache(cache ProgramCache) ResolverOption {
	return func(cfg *resolverConfig) {
		cfg.cache = cache
	}
}

// ResolverWithFunctionRegistry exposes the registry's functions to
// expressions.
func ResolverWithFunctionRegistry(registry *FunctionRegistry) ResolverOption {
	return func(cfg *resolverConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

// ResolverWithLogger logs every evaluation at debug level.
func ResolverWithLogger(logger zerolog.Logger) ResolverOption {
	return func(cfg *resolverConfig) {
		cfg.logger = logger
	}
}

func applyResolverOptions(opts []ResolverOption) resolverConfig {
	cfg := resolverConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg resolverConfig) cached(engine, expression string) (any, bool) {
	if cfg.cache == nil {
		return nil, false
	}
	return cfg.cache.Get(engine + ":" + expression)
}

func (cfg resolverConfig) store(engine, expression string, program any) {
	if cfg.cache != nil {
		cfg.cache.Set(engine+":"+expression, program)
	}
}

func (cfg resolverConfig) logEvaluation(engine, expression, declared string, started time.Time, err error) {
	event := cfg.logger.Debug()
	if err != nil {
		event = cfg.logger.Warn().Err(err)
	}
	event.Str("engine", engine).
		Str("expr", expression).
		Str("declared", declared).
		Dur("duration", time.Since(started)).
		Msg("type resolver evaluated")
}

// payloadEnvironment exposes the payload fields at the top level next to
// payload, declared and typeKey.
func payloadEnvironment(payload map[string]any, declared, typeKey string) map[string]any {
	env := make(map[string]any, len(payload)+3)
	for key, value := range payload {
		env[key] = value
	}
	env["payload"] = payload
	env["declared"] = declared
	env["typeKey"] = typeKey
	return env
}

// resolvedName converts an expression result into a model name.
func resolvedName(engine, expression, declared string, result any) (string, error) {
	switch value := result.(type) {
	case nil:
		return declared, nil
	case string:
		if value = strings.TrimSpace(value); value == "" {
			return declared, nil
		}
		return value, nil
	default:
		return "", wrapEvaluationError(engine, expression, declared, fmt.Errorf("expected string result, got %T", result))
	}
}
