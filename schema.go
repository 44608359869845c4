package fragments

import (
	"fmt"
	"sort"
	"strings"
)

// FieldDescriptor describes one attribute path reachable from a model.
type FieldDescriptor struct {
	Path        string `json:"path" yaml:"path"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Tag         string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Polymorphic bool   `json:"polymorphic,omitempty" yaml:"polymorphic,omitempty"`
}

// Describe flattens the attributes of modelName, descending into fragment
// element types. Array element paths carry a "[]" suffix and recursive
// models are described once per path.
func (s *Store) Describe(modelName string) ([]FieldDescriptor, error) {
	model, err := s.ModelFor(modelName)
	if err != nil {
		return nil, err
	}
	return s.describe(model, "", map[string]bool{}), nil
}

func (s *Store) describe(model *Model, prefix string, visiting map[string]bool) []FieldDescriptor {
	visiting[model.Name] = true
	defer delete(visiting, model.Name)

	var fields []FieldDescriptor
	for _, attr := range s.attributesOf(model) {
		path := joinPath(prefix, attr.Name)
		fields = append(fields, FieldDescriptor{
			Path:        path,
			Kind:        attr.Kind,
			Type:        attr.ElementType,
			Tag:         attr.Tag,
			Polymorphic: attr.Polymorphic,
		})
		if attr.Kind != KindFragment && attr.Kind != KindFragmentArray {
			continue
		}
		child, err := s.ModelFor(attr.ElementType)
		if err != nil || visiting[child.Name] {
			continue
		}
		if attr.Kind == KindFragmentArray {
			path += "[]"
		}
		fields = append(fields, s.describe(child, path, visiting)...)
	}
	return fields
}

// SnapshotDescriptors infers descriptors from a plain payload such as the
// result of Record.Snapshot.
func SnapshotDescriptors(value any) []FieldDescriptor {
	descriptors := deriveFieldDescriptors(value, "")
	if descriptors == nil {
		return []FieldDescriptor{}
	}
	return descriptors
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return []FieldDescriptor{{Path: prefix, Kind: KindFragment, Type: "map[string]any"}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		kind := KindArray
		if len(typed) > 0 {
			elementType = typeName(typed[0])
			if _, ok := typed[0].(map[string]any); ok {
				kind = KindFragmentArray
			}
		}
		return []FieldDescriptor{{Path: prefix, Kind: kind, Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Kind: KindAttr, Type: typeName(typed)}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
