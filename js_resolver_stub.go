//go:build !js_eval

package fragments

import "fmt"

// NewJSTypeResolver is unavailable without the js_eval build tag.
func NewJSTypeResolver(expression string, opts ...ResolverOption) (TypeResolver, error) {
	_ = applyResolverOptions(opts)
	return nil, wrapEvaluationError("js", expression, "", fmt.Errorf("js resolver requires the js_eval build tag"))
}

// JSResolverAvailable reports whether the binary was built with js_eval.
func JSResolverAvailable() bool {
	return false
}
