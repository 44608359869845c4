package fragments

import "strings"

// Kind identifies how an attribute stores its value.
type Kind string

const (
	// KindAttr is a plain scalar attribute kept in the tiered attribute storage.
	KindAttr Kind = "attr"
	// KindFragment holds a single fragment.
	KindFragment Kind = "fragment"
	// KindFragmentArray holds an ordered array of fragments.
	KindFragmentArray Kind = "fragment-array"
	// KindArray holds an ordered array of primitive values.
	KindArray Kind = "array"
	// KindOwner is a read-only accessor returning a fragment's owner.
	KindOwner Kind = "owner"
)

// DefaultTypeKey is the payload field used to resolve polymorphic fragments
// when no explicit type key is configured.
const DefaultTypeKey = "type"

// IsFragment reports whether the kind is backed by fragment storage rather
// than the generic attribute tiers.
func (k Kind) IsFragment() bool {
	switch k {
	case KindFragment, KindFragmentArray, KindArray:
		return true
	default:
		return false
	}
}

// IsArray reports whether values of this kind are sequences.
func (k Kind) IsArray() bool {
	return k == KindFragmentArray || k == KindArray
}

// Attribute is the registration metadata attached to a model for one
// declared property.
type Attribute struct {
	Name        string
	Kind        Kind
	ElementType string
	Polymorphic bool
	TypeKey     string
	Tag         string

	defaultValue any
	defaultFunc  func() any
	hasDefault   bool
	resolver     TypeResolver
}

// AttributeOption configures optional attribute metadata.
type AttributeOption func(*Attribute)

// WithDefault sets a literal default value. The value is deep copied every
// time it is used, so sharing one literal across attributes is safe. A nil
// value is a present default of nil.
func WithDefault(value any) AttributeOption {
	return func(attr *Attribute) {
		attr.defaultValue = value
		attr.defaultFunc = nil
		attr.hasDefault = true
	}
}

// WithDefaultFunc sets a function invoked to produce the default value.
func WithDefaultFunc(fn func() any) AttributeOption {
	return func(attr *Attribute) {
		if fn == nil {
			return
		}
		attr.defaultFunc = fn
		attr.defaultValue = nil
		attr.hasDefault = true
	}
}

// WithPolymorphic allows payloads to select a descendant of the declared type
// through the type key field.
func WithPolymorphic() AttributeOption {
	return func(attr *Attribute) {
		attr.Polymorphic = true
	}
}

// WithTypeKey sets the payload field consulted for polymorphic fragments and
// enables polymorphism.
func WithTypeKey(key string) AttributeOption {
	return func(attr *Attribute) {
		attr.Polymorphic = true
		attr.TypeKey = strings.TrimSpace(key)
	}
}

// WithTypeResolver injects a custom type resolver for this attribute.
func WithTypeResolver(resolver TypeResolver) AttributeOption {
	return func(attr *Attribute) {
		attr.resolver = resolver
	}
}

// Attr declares a scalar attribute.
func Attr(name string) Attribute {
	return newAttribute(name, KindAttr, "", nil)
}

// FragmentAttr declares an attribute holding a single fragment of modelName.
// Without a default the attribute reads as nil.
func FragmentAttr(name, modelName string, opts ...AttributeOption) Attribute {
	return newAttribute(name, KindFragment, modelName, opts)
}

// FragmentArrayAttr declares an attribute holding an array of fragments of
// modelName. Without a default the attribute reads as an empty array.
func FragmentArrayAttr(name, modelName string, opts ...AttributeOption) Attribute {
	return newAttribute(name, KindFragmentArray, modelName, opts)
}

// ArrayAttr declares an attribute holding an array of primitive values.
// elementType is informational and may be empty.
func ArrayAttr(name, elementType string, opts ...AttributeOption) Attribute {
	attr := newAttribute(name, KindArray, elementType, opts)
	// primitive arrays never resolve types
	attr.Polymorphic = false
	attr.TypeKey = ""
	attr.resolver = nil
	attr.Tag = typeTag(attr)
	return attr
}

// OwnerAttr declares a read-only attribute that returns the owner of the
// fragment it is read from.
func OwnerAttr(name string) Attribute {
	return newAttribute(name, KindOwner, "", nil)
}

func newAttribute(name string, kind Kind, elementType string, opts []AttributeOption) Attribute {
	attr := Attribute{
		Name:        strings.TrimSpace(name),
		Kind:        kind,
		ElementType: strings.TrimSpace(elementType),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&attr)
		}
	}
	if attr.Polymorphic && attr.TypeKey == "" {
		attr.TypeKey = DefaultTypeKey
	}
	attr.Tag = typeTag(attr)
	return attr
}

// HasDefault reports whether a default value or function was configured.
func (a Attribute) HasDefault() bool {
	return a.hasDefault
}

// typeTag derives a unique storage tag for the combination of kind, element
// type and polymorphism configuration.
func typeTag(attr Attribute) string {
	tag := string(attr.Kind)
	if attr.ElementType != "" {
		tag += "$" + attr.ElementType
	}
	if attr.Polymorphic {
		tag += "$" + attr.TypeKey
	}
	return tag
}

// Model describes a record or fragment type and its declared attributes.
type Model struct {
	Name    string
	Extends string

	attrs []Attribute
	index map[string]int
}

// ModelOption configures a model on construction.
type ModelOption func(*Model)

// Extends marks the model as a descendant of parent, which makes it
// acceptable wherever parent fragments are expected.
func Extends(parent string) ModelOption {
	return func(m *Model) {
		m.Extends = strings.TrimSpace(parent)
	}
}

// NewModel builds a model from its attributes. Later attributes replace
// earlier ones with the same name.
func NewModel(name string, attrs ...Attribute) *Model {
	return NewModelWith(name, nil, attrs...)
}

// NewModelWith builds a model applying opts before the attributes.
func NewModelWith(name string, opts []ModelOption, attrs ...Attribute) *Model {
	m := &Model{
		Name:  strings.TrimSpace(name),
		index: make(map[string]int, len(attrs)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	for _, attr := range attrs {
		if attr.Name == "" {
			continue
		}
		if i, ok := m.index[attr.Name]; ok {
			m.attrs[i] = attr
			continue
		}
		m.index[attr.Name] = len(m.attrs)
		m.attrs = append(m.attrs, attr)
	}
	return m
}

// Attribute returns the attribute declared under name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	if m == nil {
		return Attribute{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return Attribute{}, false
	}
	return m.attrs[i], true
}

// Attributes returns the declared attributes in declaration order.
func (m *Model) Attributes() []Attribute {
	if m == nil || len(m.attrs) == 0 {
		return nil
	}
	out := make([]Attribute, len(m.attrs))
	copy(out, m.attrs)
	return out
}
