package fragments

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-fragments/layering"
)

// ResolveDefault computes the default value for an unset fragment-backed
// attribute. Literal defaults are deep copied so instances never alias.
func ResolveDefault(attr Attribute) (any, error) {
	var value any
	switch {
	case attr.defaultFunc != nil:
		value = attr.defaultFunc()
	case attr.hasDefault:
		value = attr.defaultValue
	case attr.Kind.IsArray():
		return []any{}, nil
	default:
		return nil, nil
	}

	if value == nil {
		return nil, nil
	}

	switch {
	case attr.Kind.IsArray():
		items, ok := asSlice(value)
		if !ok {
			return nil, fmt.Errorf("%w: default for %s must be an array, got %s", ErrShapeMismatch, attr.Name, shapeOf(value))
		}
		return layering.Clone(items), nil
	case attr.Kind == KindFragment:
		payload, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: default for %s must be an object, got %s", ErrShapeMismatch, attr.Name, shapeOf(value))
		}
		return layering.Clone(payload), nil
	default:
		return layering.Clone(value), nil
	}
}

// asSlice normalizes any slice or array into []any without copying nested
// values.
func asSlice(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return []any{}, true
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func shapeOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case *Fragment:
		return "fragment"
	case *StatefulArray, *FragmentArray:
		return "array"
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
