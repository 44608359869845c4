package fragments

import (
	"testing"

	"github.com/goliatone/go-fragments/pkg/activity"
)

func TestFragmentArraySetObjectsAndRollback(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")
	original := addresses.Fragments()

	if err := addresses.SetObjects([]any{map[string]any{"street": "Winterfell"}}); err != nil {
		t.Fatalf("set objects: %v", err)
	}
	if addresses.Len() != 1 || !person.IsDirty() {
		t.Fatalf("expected one dirty element, got len=%d dirty=%v", addresses.Len(), person.IsDirty())
	}
	if addresses.FragmentAt(0) != original[0] {
		t.Fatalf("expected the payload to reuse the fragment at the same index")
	}

	person.Rollback()
	if person.IsDirty() || addresses.IsDirty() {
		t.Fatalf("expected clean state after rollback")
	}
	if addresses.Len() != 2 {
		t.Fatalf("expected two elements after rollback, got %d", addresses.Len())
	}
	for i, fragment := range addresses.Fragments() {
		if fragment != original[i] {
			t.Fatalf("expected original instance at %d", i)
		}
	}
	if got := mustGet(t, original[0], "street"); got != "1 Red Keep" {
		t.Fatalf("expected rolled back street, got %v", got)
	}
}

func TestFragmentArrayWriteReusesFragmentsByPosition(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")
	first := addresses.FragmentAt(0)

	mustSet(t, person, "addresses", []any{
		map[string]any{"city": "Oldtown"},
		map[string]any{"city": "Highgarden"},
	})

	if got := mustFragmentArray(t, person, "addresses"); got != addresses {
		t.Fatalf("expected the live container to be reused")
	}
	if addresses.FragmentAt(0) != first {
		t.Fatalf("expected positional reuse")
	}
	if got := mustGet(t, first, "city"); got != "Oldtown" {
		t.Fatalf("expected city=Oldtown, got %v", got)
	}
	if got := mustGet(t, first, "street"); got != "1 Red Keep" {
		t.Fatalf("expected street to survive a partial payload, got %v", got)
	}
}

func TestFragmentArrayInsertDoesNotReuseExplicitInstances(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")
	original := addresses.Fragments()

	if err := addresses.InsertAt(0, map[string]any{"street": "The Wall"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if addresses.Len() != 3 {
		t.Fatalf("expected three elements, got %d", addresses.Len())
	}
	if addresses.FragmentAt(0) == original[0] {
		t.Fatalf("expected a new fragment for the inserted payload")
	}
	if addresses.FragmentAt(1) != original[0] || addresses.FragmentAt(2) != original[1] {
		t.Fatalf("expected existing fragments to shift right")
	}
	if got := mustGet(t, original[0], "street"); got != "1 Red Keep" {
		t.Fatalf("expected shifted fragment untouched, got %v", got)
	}
	if owner := addresses.FragmentAt(0).Owner(); owner != Owner(person) {
		t.Fatalf("expected inserted fragment to be owned by the record")
	}
}

func TestFragmentArrayAppendThenRemoveIsClean(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")

	if err := addresses.Append(map[string]any{"street": "Dragonstone"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !person.IsDirty() {
		t.Fatalf("expected append to dirty the owner")
	}
	if err := addresses.RemoveAt(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if person.IsDirty() {
		t.Fatalf("expected removing the appended element to clean the owner")
	}
}

func TestFragmentArrayRejectsInvalidElementsAtomically(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")
	name := mustFragment(t, person, "name")

	cases := []struct {
		name  string
		items []any
	}{
		{name: "string", items: []any{map[string]any{"street": "ok"}, "nope"}},
		{name: "wrong model", items: []any{name}},
		{name: "nested array", items: []any{[]any{"x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectErrorIs(t, addresses.Append(tc.items...), ErrInvalidAssignment)
			if addresses.Len() != 2 {
				t.Fatalf("expected rejected append to leave two elements, got %d", addresses.Len())
			}
			if person.IsDirty() {
				t.Fatalf("expected rejected append to leave the owner clean")
			}
		})
	}
}

func TestFragmentArrayRejectsInvalidReusedPayloadAtomically(t *testing.T) {
	capture := &activity.CaptureHook{}
	store := newTestStore(t, WithActivityHooks(capture))
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")
	first, second := addresses.FragmentAt(0), addresses.FragmentAt(1)

	err := addresses.SetObjects([]any{
		map[string]any{"street": "Winterfell"},
		map[string]any{"person": "nope"},
	})
	expectErrorIs(t, err, ErrInvalidAssignment)

	if got := mustGet(t, first, "street"); got != "1 Red Keep" {
		t.Fatalf("expected first element untouched, got %v", got)
	}
	if addresses.FragmentAt(0) != first || addresses.FragmentAt(1) != second {
		t.Fatalf("expected elements to keep their positions")
	}
	if first.IsDirty() || addresses.IsDirty() || person.IsDirty() {
		t.Fatalf("expected rejected write to leave everything clean")
	}
	if got := countVerb(capture, activity.VerbFragmentDirtied); got != 0 {
		t.Fatalf("expected no dirtied events, got %d", got)
	}
}

func TestSetPropertiesRejectsNestedArrayPayloadAtomically(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	name := mustFragment(t, person, "name")
	prefix := mustFragmentArray(t, name, "prefixes").FragmentAt(0)

	err := person.SetProperties(map[string]any{
		"title": "Imp",
		"addresses": []any{
			map[string]any{"street": "Winterfell"},
			map[string]any{"person": "nope"},
		},
		"name": map[string]any{
			"first":    "Jaime",
			"prefixes": []any{map[string]any{"name": "Ser"}},
		},
	})
	expectErrorIs(t, err, ErrInvalidAssignment)

	if got := mustGet(t, person, "title"); got != "Lord" {
		t.Fatalf("expected title untouched, got %v", got)
	}
	if got := mustGet(t, name, "first"); got != "Tyrion" {
		t.Fatalf("expected name untouched, got %v", got)
	}
	if got := mustGet(t, prefix, "name"); got != "Hand" {
		t.Fatalf("expected prefix untouched, got %v", got)
	}
	if got := mustGet(t, mustFragmentArray(t, person, "addresses").FragmentAt(0), "street"); got != "1 Red Keep" {
		t.Fatalf("expected first address untouched, got %v", got)
	}
	if person.IsDirty() {
		t.Fatalf("expected rejected update to leave the record clean")
	}
}

func TestFragmentArrayTreatsEmptyInstanceAsNull(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	addresses := mustFragmentArray(t, person, "addresses")

	if err := addresses.SetObjects([]any{FragmentInstance{}, map[string]any{"street": "Winterfell"}}); err != nil {
		t.Fatalf("set objects: %v", err)
	}
	if addresses.Len() != 2 || addresses.FragmentAt(0) != nil {
		t.Fatalf("expected a nil first element, got %v", addresses.Objects())
	}

	mustSet(t, person, "name", FragmentInstance{})
	if got := mustGet(t, person, "name"); got != nil {
		t.Fatalf("expected nil name, got %v", got)
	}
}

func TestFragmentArrayElementEditDirtiesOwner(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	address := mustFragmentArray(t, person, "addresses").FragmentAt(1)

	mustSet(t, address, "city", "Lannisport Harbour")
	if _, ok := person.ChangedAttributes()["addresses"]; !ok {
		t.Fatalf("expected addresses in changed attributes")
	}
	mustSet(t, address, "city", "Lannisport")
	if person.IsDirty() {
		t.Fatalf("expected revert to clean the owner")
	}
}

func TestFragmentArrayTransferBetweenRecords(t *testing.T) {
	store := newTestStore(t)
	first := pushPerson(t, store, "1")
	second, err := store.CreateRecord("person", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	source := mustFragmentArray(t, first, "addresses")

	mustSet(t, second, "addresses", source)

	target := mustFragmentArray(t, second, "addresses")
	if target.Len() != 2 {
		t.Fatalf("expected two elements, got %d", target.Len())
	}
	for _, fragment := range target.Fragments() {
		if fragment.Owner() != Owner(second) || fragment.OwnerKey() != "addresses" {
			t.Fatalf("expected elements to be rebound to the second record")
		}
	}
	if !second.IsDirty() {
		t.Fatalf("expected second record to be dirty")
	}
	if source.Len() != 0 || len(source.Canonical()) != 0 {
		t.Fatalf("expected the first record to let go of moved elements, got %d", source.Len())
	}
	first.Rollback()
	if source.Len() != 0 || target.Len() != 2 {
		t.Fatalf("expected rollback of the first record to leave moved elements alone")
	}
}

func TestFragmentArrayElementMovesBetweenOwners(t *testing.T) {
	store := newTestStore(t)
	first := pushPerson(t, store, "1")
	second, err := store.CreateRecord("person", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	source := mustFragmentArray(t, first, "addresses")
	moved, kept := source.FragmentAt(0), source.FragmentAt(1)
	target := mustFragmentArray(t, second, "addresses")

	if err := target.Append(moved); err != nil {
		t.Fatalf("append: %v", err)
	}
	if source.Len() != 1 || source.FragmentAt(0) != kept {
		t.Fatalf("expected moved element to leave the source array, got %v", source.Objects())
	}
	if moved.Owner() != Owner(second) {
		t.Fatalf("expected second record to own the moved element")
	}

	first.Rollback()
	if source.Len() != 1 || source.FragmentAt(0) != kept {
		t.Fatalf("expected rollback to keep the moved element out, got %v", source.Objects())
	}
	if moved.Owner() != Owner(second) || target.FragmentAt(0) != moved {
		t.Fatalf("expected the moved element to stay with the second record")
	}
}

func TestPrimitiveArrayDirtyTracking(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	titles := mustArray(t, person, "titles")

	if err := titles.Append("Warden of the West"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !person.IsDirty() || !titles.IsDirty() {
		t.Fatalf("expected append to dirty the array and owner")
	}
	if err := titles.RemoveAt(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if person.IsDirty() {
		t.Fatalf("expected equal contents to be clean")
	}

	mustSet(t, person, "titles", []string{"Hand of the King", "Master of Coin"})
	if person.IsDirty() {
		t.Fatalf("expected a typed slice with equal values to be clean")
	}
	if got := mustArray(t, person, "titles"); got != titles {
		t.Fatalf("expected array writes to keep the container")
	}

	mustSet(t, person, "titles", []any{"Imp"})
	person.Rollback()
	if titles.Len() != 2 || titles.At(0) != "Hand of the King" || person.IsDirty() {
		t.Fatalf("expected rollback to restore titles, got %v", titles.Objects())
	}
}

func TestPrimitiveArrayRejectsFragments(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	titles := mustArray(t, person, "titles")

	expectErrorIs(t, titles.Append(mustFragment(t, person, "name")), ErrInvalidAssignment)
	expectErrorIs(t, person.Set("titles", map[string]any{"a": 1}), ErrInvalidAssignment)
	if titles.Len() != 2 {
		t.Fatalf("expected titles untouched, got %v", titles.Objects())
	}
}

func TestPrimitiveArrayClonesElements(t *testing.T) {
	store := NewStore().MustRegister(NewModel("doc", ArrayAttr("rows", "")))
	doc, err := store.CreateRecord("doc", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	row := map[string]any{"a": 1}
	mustSet(t, doc, "rows", []any{row})
	row["a"] = 2

	rows := mustArray(t, doc, "rows")
	if got := rows.At(0).(map[string]any)["a"]; got != 1 {
		t.Fatalf("expected stored element to be a copy, got %v", got)
	}
}

func TestArrayIndexErrors(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	titles := mustArray(t, person, "titles")

	expectErrorIs(t, titles.InsertAt(5, "x"), ErrInvalidAssignment)
	expectErrorIs(t, titles.RemoveAt(-1), ErrInvalidAssignment)
	if titles.At(10) != nil {
		t.Fatalf("expected nil for out of range index")
	}
}

func TestPrimitiveArrayCanonicalIsIndependent(t *testing.T) {
	store := newTestStore(t)
	person, err := store.Push("person", "1", map[string]any{
		"titles": []any{map[string]any{"k": 1}},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	titles := mustArray(t, person, "titles")

	titles.At(0).(map[string]any)["k"] = 2
	if got := titles.Canonical()[0].(map[string]any)["k"]; got != 1 {
		t.Fatalf("expected canonical k=1, got %v", got)
	}
	if !titles.IsDirty() {
		t.Fatalf("expected in-place element edit to dirty the array")
	}

	titles.Rollback()
	if got := titles.At(0).(map[string]any)["k"]; got != 1 {
		t.Fatalf("expected rollback to restore k=1, got %v", got)
	}
	titles.At(0).(map[string]any)["k"] = 3
	if got := titles.Canonical()[0].(map[string]any)["k"]; got != 1 {
		t.Fatalf("expected rollback to copy canonical elements, got %v", got)
	}
	titles.Rollback()

	if err := titles.Append("Warden"); err != nil {
		t.Fatalf("append: %v", err)
	}
	person.WillCommit()
	if err := person.DidCommit(nil); err != nil {
		t.Fatalf("did commit: %v", err)
	}
	titles.At(0).(map[string]any)["k"] = 4
	if got := titles.Canonical()[0].(map[string]any)["k"]; got != 1 {
		t.Fatalf("expected commit to copy live elements, got %v", got)
	}
}

func TestArraySetNullAndRollback(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	titles := mustArray(t, person, "titles")

	mustSet(t, person, "titles", nil)
	if got := mustGet(t, person, "titles"); got != nil {
		t.Fatalf("expected nil titles, got %v", got)
	}
	if !person.IsDirty() {
		t.Fatalf("expected clearing an array to dirty the owner")
	}

	person.Rollback()
	if got := mustArray(t, person, "titles"); got != titles {
		t.Fatalf("expected rollback to restore the container")
	}
	if person.IsDirty() {
		t.Fatalf("expected clean owner after rollback")
	}
}

func TestArraySetupDataReplacesCanonical(t *testing.T) {
	store := newTestStore(t)
	person := pushPerson(t, store, "1")
	titles := mustArray(t, person, "titles")

	if err := titles.Append("Imp"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := titles.SetupData([]any{"Imp"}); err != nil {
		t.Fatalf("setup data: %v", err)
	}
	if titles.IsDirty() || person.IsDirty() {
		t.Fatalf("expected new canonical contents to be clean")
	}
	if got := titles.Canonical(); len(got) != 1 || got[0] != "Imp" {
		t.Fatalf("unexpected canonical %v", got)
	}
}

func TestEmptyArraysByDefault(t *testing.T) {
	store := newTestStore(t)
	person, err := store.CreateRecord("person", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addresses := mustFragmentArray(t, person, "addresses")
	if addresses == nil || addresses.Len() != 0 {
		t.Fatalf("expected empty fragment array")
	}
	titles := mustArray(t, person, "titles")
	if titles == nil || titles.Len() != 0 {
		t.Fatalf("expected empty primitive array")
	}
	if addresses.Owner() != Owner(person) || addresses.Key() != "addresses" {
		t.Fatalf("expected array to know its owner and key")
	}
	if name := mustFragment(t, person, "name"); name != nil {
		t.Fatalf("expected nil fragment without default")
	}
}
