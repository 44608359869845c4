package fragments

import (
	"fmt"

	"github.com/goliatone/go-fragments/layering"
)

// container is implemented by StatefulArray and FragmentArray.
type container interface {
	base() *StatefulArray
}

// elementPolicy turns raw items into stored elements. canonical is true for
// ingestion and false for writes. Implementations validate every item before
// changing anything.
type elementPolicy interface {
	check(a *StatefulArray, items []any) error
	prepare(a *StatefulArray, items []any, canonical bool) ([]any, error)
}

// StatefulArray is an ordered container of primitive values that tracks its
// canonical contents next to its live contents.
type StatefulArray struct {
	owner Owner
	key   string
	attr  Attribute

	self     container
	elements elementPolicy

	canonical []any
	current   []any
}

func newStatefulArray(owner Owner, attr Attribute) *StatefulArray {
	a := &StatefulArray{}
	a.init(owner, attr)
	a.self = a
	return a
}

func (a *StatefulArray) init(owner Owner, attr Attribute) {
	a.owner = owner
	a.key = attr.Name
	a.attr = attr
	a.canonical = []any{}
	a.current = []any{}
}

func (a *StatefulArray) base() *StatefulArray {
	return a
}

// Owner returns the record or fragment holding the array.
func (a *StatefulArray) Owner() Owner {
	return a.owner
}

// Key returns the attribute holding the array.
func (a *StatefulArray) Key() string {
	return a.key
}

// Len returns the number of live elements.
func (a *StatefulArray) Len() int {
	return len(a.current)
}

// At returns the live element at i, or nil when i is out of range.
func (a *StatefulArray) At(i int) any {
	if i < 0 || i >= len(a.current) {
		return nil
	}
	return a.current[i]
}

// Objects returns a copy of the live elements.
func (a *StatefulArray) Objects() []any {
	out := make([]any, len(a.current))
	copy(out, a.current)
	return out
}

// Canonical returns a copy of the canonical elements.
func (a *StatefulArray) Canonical() []any {
	return a.copyElements(a.canonical)
}

// copyElements copies items between the canonical and live contents.
// Primitive elements are deep copied; fragments keep their identity.
func (a *StatefulArray) copyElements(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		if a.elements == nil {
			item = layering.Clone(item)
		}
		out[i] = item
	}
	return out
}

// SetupData replaces both canonical and live contents from canonical data.
func (a *StatefulArray) SetupData(items []any) error {
	if err := a.setupData(items); err != nil {
		return err
	}
	a.notify()
	return nil
}

// SetObjects replaces the live contents. Canonical contents are untouched.
func (a *StatefulArray) SetObjects(items []any) error {
	if err := a.setObjects(items); err != nil {
		return err
	}
	a.notify()
	return nil
}

// Append adds items to the end of the live contents.
func (a *StatefulArray) Append(items ...any) error {
	next := make([]any, 0, len(a.current)+len(items))
	next = append(next, a.current...)
	next = append(next, items...)
	return a.SetObjects(next)
}

// InsertAt inserts item before position i.
func (a *StatefulArray) InsertAt(i int, item any) error {
	if i < 0 || i > len(a.current) {
		return fmt.Errorf("%w: index %d out of range [0,%d]", ErrInvalidAssignment, i, len(a.current))
	}
	next := make([]any, 0, len(a.current)+1)
	next = append(next, a.current[:i]...)
	next = append(next, item)
	next = append(next, a.current[i:]...)
	return a.SetObjects(next)
}

// RemoveAt removes the element at position i.
func (a *StatefulArray) RemoveAt(i int) error {
	if i < 0 || i >= len(a.current) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidAssignment, i, len(a.current))
	}
	next := make([]any, 0, len(a.current)-1)
	next = append(next, a.current[:i]...)
	next = append(next, a.current[i+1:]...)
	return a.SetObjects(next)
}

// Clear empties the live contents.
func (a *StatefulArray) Clear() error {
	return a.SetObjects([]any{})
}

// IsDirty reports whether the live contents differ from canonical ones in
// length, order or any element. Fragment elements also count as changed when
// they are dirty themselves.
func (a *StatefulArray) IsDirty() bool {
	if a == nil {
		return false
	}
	if len(a.current) != len(a.canonical) {
		return true
	}
	for i, item := range a.current {
		if a.elements == nil {
			if !layering.Equal(item, a.canonical[i]) {
				return true
			}
			continue
		}
		if item != a.canonical[i] || isDirtyValue(item) {
			return true
		}
	}
	return false
}

// Rollback cascades into fragment elements, restores the canonical contents
// and signals the owner.
func (a *StatefulArray) Rollback() {
	a.rollback(true)
}

func (a *StatefulArray) rollback(notify bool) {
	seen := map[*Fragment]struct{}{}
	for _, items := range [][]any{a.current, a.canonical} {
		for _, item := range items {
			fragment, ok := item.(*Fragment)
			if !ok || fragment == nil {
				continue
			}
			if _, done := seen[fragment]; done {
				continue
			}
			seen[fragment] = struct{}{}
			fragment.rollback(false)
		}
	}
	a.current = a.Canonical()
	for _, item := range a.current {
		if fragment, ok := item.(*Fragment); ok && fragment != nil {
			fragment.bind(a.owner, a.key)
		}
	}
	if notify {
		a.notify()
	}
}

func (a *StatefulArray) setupData(items []any) error {
	prepared, err := a.prepare(items, true)
	if err != nil {
		return err
	}
	a.canonical = prepared
	a.current = a.Canonical()
	return nil
}

func (a *StatefulArray) setObjects(items []any) error {
	prepared, err := a.prepare(items, false)
	if err != nil {
		return err
	}
	a.current = prepared
	return nil
}

// check validates items as a write without touching the array or its
// elements.
func (a *StatefulArray) check(items []any) error {
	if a.elements != nil {
		return a.elements.check(a, items)
	}
	for i, item := range items {
		switch item.(type) {
		case *Fragment, *StatefulArray, *FragmentArray:
			return invalidAssignment("%s holds primitive values, got %s at index %d", a.key, shapeOf(item), i)
		}
	}
	return nil
}

func (a *StatefulArray) prepare(items []any, canonical bool) ([]any, error) {
	if a.elements != nil {
		return a.elements.prepare(a, items, canonical)
	}
	if err := a.check(items); err != nil {
		return nil, err
	}
	return a.copyElements(items), nil
}

// drop removes fragment from the live and canonical contents and reports
// whether it was held.
func (a *StatefulArray) drop(fragment *Fragment) bool {
	var dropped bool
	a.current, dropped = without(a.current, fragment)
	var fromCanonical bool
	a.canonical, fromCanonical = without(a.canonical, fragment)
	return dropped || fromCanonical
}

func without(items []any, fragment *Fragment) ([]any, bool) {
	out := items[:0:0]
	for _, item := range items {
		if held, ok := item.(*Fragment); ok && held == fragment {
			continue
		}
		out = append(out, item)
	}
	if len(out) == len(items) {
		return items, false
	}
	return out, true
}

func (a *StatefulArray) commit(phase commitPhase) {
	for _, item := range a.current {
		commitValue(item, phase)
	}
	if phase == phaseDidCommit {
		a.canonical = a.copyElements(a.current)
	}
}

// notify lets the owner re-evaluate the attribute, as long as this array is
// still its live value.
func (a *StatefulArray) notify() {
	if a.owner == nil {
		return
	}
	d := a.owner.storage()
	s, ok := d.slots[a.key]
	if !ok || !s.ready || s.live != any(a.self) {
		return
	}
	d.reconcile(a.key)
}
