package fragments

import (
	"errors"
	"testing"

	"github.com/goliatone/go-fragments/pkg/activity"
)

func personModels() []*Model {
	return []*Model{
		NewModel("person",
			Attr("title"),
			FragmentAttr("name", "name"),
			FragmentArrayAttr("addresses", "address"),
			ArrayAttr("titles", "string"),
		),
		NewModel("name",
			Attr("first"),
			Attr("last"),
			FragmentArrayAttr("prefixes", "prefix"),
			OwnerAttr("person"),
		),
		NewModel("prefix", Attr("name")),
		NewModel("address",
			Attr("street"),
			Attr("city"),
			OwnerAttr("person"),
		),
	}
}

func zooModels() []*Model {
	return []*Model{
		NewModel("zoo",
			Attr("name"),
			FragmentAttr("star", "animal", WithTypeKey("$type")),
			FragmentArrayAttr("animals", "animal", WithPolymorphic()),
		),
		NewModel("animal", Attr("name")),
		NewModelWith("lion", []ModelOption{Extends("animal")}, Attr("hasManes")),
		NewModelWith("elephant", []ModelOption{Extends("animal")}, Attr("trunkLength")),
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store := NewStore(opts...)
	models := append(personModels(), zooModels()...)
	if err := store.Register(models...); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return store
}

func pushPerson(t *testing.T, store *Store, id string) *Record {
	t.Helper()
	record, err := store.Push("person", id, map[string]any{
		"title": "Lord",
		"name": map[string]any{
			"first":    "Tyrion",
			"last":     "Lannister",
			"prefixes": []any{map[string]any{"name": "Hand"}},
		},
		"addresses": []any{
			map[string]any{"street": "1 Red Keep", "city": "King's Landing"},
			map[string]any{"street": "Casterly Rock", "city": "Lannisport"},
		},
		"titles": []any{"Hand of the King", "Master of Coin"},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	return record
}

func mustFragment(t *testing.T, owner interface {
	Fragment(string) (*Fragment, error)
}, key string) *Fragment {
	t.Helper()
	fragment, err := owner.Fragment(key)
	if err != nil {
		t.Fatalf("fragment %s: %v", key, err)
	}
	return fragment
}

func mustFragmentArray(t *testing.T, owner interface {
	FragmentArray(string) (*FragmentArray, error)
}, key string) *FragmentArray {
	t.Helper()
	array, err := owner.FragmentArray(key)
	if err != nil {
		t.Fatalf("fragment array %s: %v", key, err)
	}
	return array
}

func mustArray(t *testing.T, owner interface {
	Array(string) (*StatefulArray, error)
}, key string) *StatefulArray {
	t.Helper()
	array, err := owner.Array(key)
	if err != nil {
		t.Fatalf("array %s: %v", key, err)
	}
	return array
}

func mustGet(t *testing.T, owner interface {
	Get(string) (any, error)
}, key string) any {
	t.Helper()
	value, err := owner.Get(key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	return value
}

func mustSet(t *testing.T, owner interface {
	Set(string, any) error
}, key string, value any) {
	t.Helper()
	if err := owner.Set(key, value); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func expectErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func countVerb(capture *activity.CaptureHook, verb string) int {
	count := 0
	for _, v := range capture.Verbs() {
		if v == verb {
			count++
		}
	}
	return count
}
