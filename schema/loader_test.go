package schema

import (
	"path/filepath"
	"strings"
	"testing"

	fragments "github.com/goliatone/go-fragments"
)

func TestLoadFileRegistersModels(t *testing.T) {
	loader := NewLoader()
	doc, err := loader.LoadFile(filepath.Join("testdata", "zoo.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	store := fragments.NewStore()
	if err := loader.Register(store, doc); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := strings.Join(store.Models(), ",")
	if got != "animal,lion,zoo" {
		t.Fatalf("unexpected models %s", got)
	}

	zoo, err := store.ModelFor("zoo")
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	star, ok := zoo.Attribute("star")
	if !ok || star.Kind != fragments.KindFragment || !star.Polymorphic || star.TypeKey != "kind" {
		t.Fatalf("unexpected star attribute %+v", star)
	}
	tags, _ := zoo.Attribute("tags")
	if !tags.HasDefault() {
		t.Fatalf("expected tags default")
	}
}

func TestRegisteredSchemaResolvesTypes(t *testing.T) {
	loader := NewLoader()
	doc, err := loader.LoadFile(filepath.Join("testdata", "zoo.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store := fragments.NewStore()
	if err := loader.Register(store, doc); err != nil {
		t.Fatalf("register: %v", err)
	}

	record, err := store.Push("zoo", "1", map[string]any{
		"name":    "Central",
		"star":    map[string]any{"kind": "lion", "name": "Leo"},
		"animals": []any{map[string]any{"kind": "lion", "name": "Nala"}, map[string]any{"name": "Zed"}},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	star, err := record.Fragment("star")
	if err != nil {
		t.Fatalf("star: %v", err)
	}
	if star.ModelName() != "lion" {
		t.Fatalf("expected lion star, got %s", star.ModelName())
	}

	animals, err := record.FragmentArray("animals")
	if err != nil {
		t.Fatalf("animals: %v", err)
	}
	if animals.Len() != 2 {
		t.Fatalf("expected 2 animals, got %d", animals.Len())
	}
	if animals.FragmentAt(0).ModelName() != "lion" || animals.FragmentAt(1).ModelName() != "animal" {
		t.Fatalf("unexpected animal types %s %s", animals.FragmentAt(0).ModelName(), animals.FragmentAt(1).ModelName())
	}

	tags, err := record.Array("tags")
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if tags.Len() != 1 || tags.At(0) != "open" {
		t.Fatalf("unexpected tags %v", tags.Objects())
	}
	if record.IsDirty() {
		t.Fatalf("expected clean record after push")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "empty",
			yaml: "models: []",
			want: "invalid schema",
		},
		{
			name: "unknown kind",
			yaml: "models:\n  - name: a\n    attributes:\n      - name: x\n        kind: blob\n",
			want: "oneof",
		},
		{
			name: "fragment without type",
			yaml: "models:\n  - name: a\n    attributes:\n      - name: x\n        kind: fragment\n",
			want: "required_if",
		},
		{
			name: "duplicate model",
			yaml: "models:\n  - name: a\n  - name: a\n",
			want: "duplicate model",
		},
		{
			name: "duplicate attribute",
			yaml: "models:\n  - name: a\n    attributes:\n      - name: x\n        kind: attr\n      - name: x\n        kind: attr\n",
			want: "duplicate attribute",
		},
		{
			name: "bad resolver engine",
			yaml: "models:\n  - name: a\n    attributes:\n      - name: x\n        kind: fragment\n        type: a\n        resolver:\n          engine: lua\n          expression: x\n",
			want: "oneof",
		},
	}

	loader := NewLoader()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterReportsDanglingTypes(t *testing.T) {
	loader := NewLoader()
	doc, err := loader.Parse([]byte("models:\n  - name: a\n    attributes:\n      - name: x\n        kind: fragment\n        type: missing\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := loader.Register(fragments.NewStore(), doc); err == nil {
		t.Fatalf("expected dangling type error")
	}
}

func TestNormalizeConvertsNestedMaps(t *testing.T) {
	got := normalize(map[string]any{
		"list": []any{map[any]any{"k": 1}},
	})
	list := got.(map[string]any)["list"].([]any)
	if _, ok := list[0].(map[string]any); !ok {
		t.Fatalf("expected map[string]any, got %T", list[0])
	}
}
