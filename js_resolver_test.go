//go:build js_eval

package fragments

import "testing"

func TestJSResolverPicksModels(t *testing.T) {
	if !JSResolverAvailable() {
		t.Fatalf("expected js resolver to be available")
	}
	resolver, err := NewJSTypeResolver(`payload.kind === "lion" ? "lion" : declared`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := resolver.ResolveType(map[string]any{"kind": "lion"}, "animal", "")
	if err != nil || got != "lion" {
		t.Fatalf("expected lion, got %q (%v)", got, err)
	}
	got, err = resolver.ResolveType(map[string]any{}, "animal", "")
	if err != nil || got != "animal" {
		t.Fatalf("expected declared type, got %q (%v)", got, err)
	}
}

func TestJSResolverCallsRegisteredFunctions(t *testing.T) {
	registry := NewFunctionRegistry().MustRegister("species", func(args ...any) (any, error) {
		return "elephant", nil
	})
	resolver, err := NewJSTypeResolver(`species(payload.kind)`, ResolverWithFunctionRegistry(registry))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := resolver.ResolveType(map[string]any{"kind": "x"}, "animal", "")
	if err != nil || got != "elephant" {
		t.Fatalf("expected elephant, got %q (%v)", got, err)
	}
}
