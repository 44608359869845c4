package fragments

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	store := newTestStore(t)
	record := pushPerson(t, store, "1")
	name := mustFragment(t, record, "name")
	addresses := mustFragmentArray(t, record, "addresses")
	titles := mustArray(t, record, "titles")

	var nilFragment *Fragment
	var nilArray *StatefulArray

	cases := []struct {
		name   string
		value  any
		want   string
		length int
	}{
		{name: "nil", value: nil, want: "null"},
		{name: "null variant", value: Null{}, want: "null"},
		{name: "nil fragment", value: nilFragment, want: "null"},
		{name: "nil array", value: nilArray, want: "null"},
		{name: "object", value: map[string]any{"first": "Jaime"}, want: "object"},
		{name: "raw object", value: RawObject{"first": "Jaime"}, want: "object"},
		{name: "fragment", value: name, want: "name fragment"},
		{name: "empty fragment instance", value: FragmentInstance{}, want: "null"},
		{name: "fragment instance", value: FragmentInstance{Fragment: name}, want: "name fragment"},
		{name: "slice", value: []any{1, 2, 3}, want: "array", length: 3},
		{name: "typed slice", value: []string{"a", "b"}, want: "array", length: 2},
		{name: "stateful array", value: titles, want: "array", length: 2},
		{name: "fragment array", value: addresses, want: "array", length: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Classify(tc.value)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got := describeInput(in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if items, ok := in.(RawArray); ok && len(items) != tc.length {
				t.Fatalf("expected %d items, got %d", tc.length, len(items))
			}
		})
	}
}

func TestClassifyRejectsScalars(t *testing.T) {
	for _, value := range []any{"text", 42, true, struct{}{}} {
		_, err := Classify(value)
		if !errors.Is(err, ErrInvalidAssignment) {
			t.Fatalf("expected ErrInvalidAssignment for %T, got %v", value, err)
		}
	}
}

func TestClassifyArraySnapshotsContents(t *testing.T) {
	store := newTestStore(t)
	record := pushPerson(t, store, "1")
	titles := mustArray(t, record, "titles")

	in, _ := Classify(titles)
	items := in.(RawArray)
	items[0] = "changed"
	if titles.At(0) != "Hand of the King" {
		t.Fatalf("expected classification to copy array contents, got %v", titles.At(0))
	}
}
