// Package schema loads fragment model definitions from YAML documents and
// registers them with a fragments.Store.
package schema

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	fragments "github.com/goliatone/go-fragments"
	"gopkg.in/yaml.v3"
)

// Document is the top level of a schema file.
type Document struct {
	Models []ModelSpec `yaml:"models" validate:"required,min=1,dive"`
}

// ModelSpec declares one model.
type ModelSpec struct {
	Name       string          `yaml:"name" validate:"required"`
	Extends    string          `yaml:"extends,omitempty"`
	Attributes []AttributeSpec `yaml:"attributes" validate:"dive"`
}

// AttributeSpec declares one attribute of a model.
type AttributeSpec struct {
	Name        string        `yaml:"name" validate:"required"`
	Kind        string        `yaml:"kind" validate:"required,oneof=attr fragment fragment-array array owner"`
	Type        string        `yaml:"type,omitempty" validate:"required_if=Kind fragment,required_if=Kind fragment-array"`
	Polymorphic bool          `yaml:"polymorphic,omitempty"`
	TypeKey     string        `yaml:"type_key,omitempty"`
	Default     any           `yaml:"default,omitempty"`
	Resolver    *ResolverSpec `yaml:"resolver,omitempty"`
}

// ResolverSpec selects an expression resolver for a polymorphic attribute.
type ResolverSpec struct {
	Engine     string `yaml:"engine" validate:"required,oneof=expr cel js"`
	Expression string `yaml:"expression" validate:"required"`
}

// Loader parses and validates schema documents.
type Loader struct {
	validate *validator.Validate
	resolver []fragments.ResolverOption
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithValidator replaces the default validator instance.
func WithValidator(validate *validator.Validate) LoaderOption {
	return func(l *Loader) {
		if validate != nil {
			l.validate = validate
		}
	}
}

// WithResolverOptions passes opts to every expression resolver the loader
// builds.
func WithResolverOptions(opts ...fragments.ResolverOption) LoaderOption {
	return func(l *Loader) {
		l.resolver = append(l.resolver, opts...)
	}
}

// NewLoader builds a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{validate: validator.New()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if len(l.resolver) == 0 {
		l.resolver = []fragments.ResolverOption{fragments.ResolverWithProgramCache(fragments.NewProgramCache())}
	}
	return l
}

// LoadFile reads and parses the schema at path.
func (l *Loader) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return l.Parse(data)
}

// Parse decodes and validates a YAML schema document.
func (l *Loader) Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema YAML: %w", err)
	}
	if err := l.Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks doc against the struct rules and rejects duplicate model
// or attribute names.
func (l *Loader) Validate(doc *Document) error {
	if doc == nil {
		return errors.New("schema: nil document")
	}
	if err := l.validate.Struct(doc); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var errs []error
	models := map[string]struct{}{}
	for _, model := range doc.Models {
		if _, dup := models[model.Name]; dup {
			errs = append(errs, fmt.Errorf("schema: duplicate model %q", model.Name))
		}
		models[model.Name] = struct{}{}

		attrs := map[string]struct{}{}
		for _, attr := range model.Attributes {
			if _, dup := attrs[attr.Name]; dup {
				errs = append(errs, fmt.Errorf("schema: duplicate attribute %s.%s", model.Name, attr.Name))
			}
			attrs[attr.Name] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

// Build turns doc into models ready for registration.
func (l *Loader) Build(doc *Document) ([]*fragments.Model, error) {
	if doc == nil {
		return nil, errors.New("schema: nil document")
	}
	models := make([]*fragments.Model, 0, len(doc.Models))
	for _, spec := range doc.Models {
		attrs := make([]fragments.Attribute, 0, len(spec.Attributes))
		for _, attrSpec := range spec.Attributes {
			attr, err := l.attribute(attrSpec)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", spec.Name, attrSpec.Name, err)
			}
			attrs = append(attrs, attr)
		}
		var opts []fragments.ModelOption
		if spec.Extends != "" {
			opts = append(opts, fragments.Extends(spec.Extends))
		}
		models = append(models, fragments.NewModelWith(spec.Name, opts, attrs...))
	}
	return models, nil
}

// Register builds doc and registers the models with store, then validates
// the store so dangling type references fail early.
func (l *Loader) Register(store *fragments.Store, doc *Document) error {
	models, err := l.Build(doc)
	if err != nil {
		return err
	}
	if err := store.Register(models...); err != nil {
		return err
	}
	return store.Validate()
}

func (l *Loader) attribute(spec AttributeSpec) (fragments.Attribute, error) {
	var opts []fragments.AttributeOption
	if spec.Default != nil {
		opts = append(opts, fragments.WithDefault(normalize(spec.Default)))
	}
	if spec.TypeKey != "" {
		opts = append(opts, fragments.WithTypeKey(spec.TypeKey))
	} else if spec.Polymorphic {
		opts = append(opts, fragments.WithPolymorphic())
	}
	if spec.Resolver != nil {
		resolver, err := l.resolverFor(*spec.Resolver)
		if err != nil {
			return fragments.Attribute{}, err
		}
		opts = append(opts, fragments.WithTypeResolver(resolver))
	}

	switch fragments.Kind(spec.Kind) {
	case fragments.KindAttr:
		return fragments.Attr(spec.Name), nil
	case fragments.KindFragment:
		return fragments.FragmentAttr(spec.Name, spec.Type, opts...), nil
	case fragments.KindFragmentArray:
		return fragments.FragmentArrayAttr(spec.Name, spec.Type, opts...), nil
	case fragments.KindArray:
		return fragments.ArrayAttr(spec.Name, spec.Type, opts...), nil
	case fragments.KindOwner:
		return fragments.OwnerAttr(spec.Name), nil
	default:
		return fragments.Attribute{}, fmt.Errorf("unknown kind %q", spec.Kind)
	}
}

func (l *Loader) resolverFor(spec ResolverSpec) (fragments.TypeResolver, error) {
	switch spec.Engine {
	case "expr":
		return fragments.NewExprTypeResolver(spec.Expression, l.resolver...)
	case "cel":
		return fragments.NewCELTypeResolver(spec.Expression, l.resolver...)
	case "js":
		return fragments.NewJSTypeResolver(spec.Expression, l.resolver...)
	default:
		return nil, fmt.Errorf("unknown resolver engine %q", spec.Engine)
	}
}

// normalize rewrites YAML decoded values into the map[string]any and []any
// shapes the store expects.
func normalize(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	default:
		return value
	}
}
