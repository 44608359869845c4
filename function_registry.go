package fragments

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

var (
	// ErrUnknownFunction indicates a resolver expression calling a helper that
	// was never registered.
	ErrUnknownFunction = errors.New("fragments: unknown function")
	// ErrInvalidFunction indicates a helper that cannot be exposed to resolver
	// expressions.
	ErrInvalidFunction = errors.New("fragments: invalid function")
)

// reservedNames are bound by every resolver environment and cannot be
// shadowed by helpers.
var reservedNames = map[string]struct{}{
	"payload":  {},
	"declared": {},
	"typekey":  {},
	"call":     {},
}

// Function is a helper callable from type resolver expressions. It receives
// the evaluated arguments and usually returns a model name.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers shared by the expr, CEL and JS type
// resolvers. Names are case-insensitive identifiers, so every engine can
// expose them as globals.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name. Names must be identifiers, must not collide
// with the resolver environment and may be registered once.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	key := strings.ToLower(strings.TrimSpace(name))
	switch {
	case fn == nil:
		return fmt.Errorf("%w: %q is nil", ErrInvalidFunction, name)
	case !isIdentifier(key):
		return fmt.Errorf("%w: %q is not an identifier", ErrInvalidFunction, name)
	}
	if _, reserved := reservedNames[key]; reserved {
		return fmt.Errorf("%w: %q is reserved by the resolver environment", ErrInvalidFunction, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidFunction, name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a copy that can be extended without affecting r. Resolvers
// keep a clone so later registrations do not change compiled expressions.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the helper registered under name. Failures name the helper.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	var fn Function
	if r != nil {
		r.mu.RLock()
		fn = r.functions[strings.ToLower(strings.TrimSpace(name))]
		r.mu.RUnlock()
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	result, err := fn(args...)
	if err != nil {
		return nil, fmt.Errorf("fragments: function %q: %w", name, err)
	}
	return result, nil
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MustRegister is Register that panics on error. It returns r for chaining.
func (r *FunctionRegistry) MustRegister(name string, fn Function) *FunctionRegistry {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
	return r
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		if c == '_' || unicode.IsLetter(c) || (i > 0 && unicode.IsDigit(c)) {
			continue
		}
		return false
	}
	return true
}
