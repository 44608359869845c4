package fragments

import "fmt"

// Fragment is a nested, change-tracked value object. It is reachable through
// exactly one attribute of its owner at a time.
type Fragment struct {
	model    *Model
	store    *Store
	owner    Owner
	ownerKey string
	data     *modelData
}

func (s *Store) newFragment(model *Model) *Fragment {
	f := &Fragment{model: model, store: s}
	f.data = newModelData(f, model, s)
	f.data.onChange = f.notifyOwner
	return f
}

// ModelName returns the concrete model of the fragment.
func (f *Fragment) ModelName() string {
	if f == nil || f.model == nil {
		return ""
	}
	return f.model.Name
}

// Model returns the fragment's model.
func (f *Fragment) Model() *Model {
	return f.model
}

// Owner returns the record or fragment currently holding f, or nil.
func (f *Fragment) Owner() Owner {
	return f.owner
}

// OwnerKey returns the attribute of the owner through which f is reachable.
func (f *Fragment) OwnerKey() string {
	return f.ownerKey
}

// Get reads an attribute. Fragment-backed attributes are created on first
// read.
func (f *Fragment) Get(key string) (any, error) {
	return f.data.get(key)
}

// Set writes an attribute and signals the owner when dirtiness changes.
func (f *Fragment) Set(key string, value any) error {
	return f.data.set(key, value)
}

// SetProperties applies a partial update. Every value is checked before any
// is written.
func (f *Fragment) SetProperties(props map[string]any) error {
	return f.data.setProperties(props)
}

// Fragment reads a single-fragment attribute.
func (f *Fragment) Fragment(key string) (*Fragment, error) {
	return f.data.fragment(key)
}

// FragmentArray reads a fragment array attribute.
func (f *Fragment) FragmentArray(key string) (*FragmentArray, error) {
	return f.data.fragmentArray(key)
}

// Array reads a primitive array attribute.
func (f *Fragment) Array(key string) (*StatefulArray, error) {
	return f.data.array(key)
}

// IsDirty reports whether any attribute, nested fragments included, differs
// from canonical data.
func (f *Fragment) IsDirty() bool {
	return f != nil && f.data.isDirty()
}

// ChangedAttributes returns the modified attributes with their canonical and
// live values.
func (f *Fragment) ChangedAttributes() map[string]Change {
	return f.data.changedAttributes()
}

// Rollback discards local modifications, cascading into nested fragments,
// and tells the owner.
func (f *Fragment) Rollback() {
	f.rollback(true)
}

func (f *Fragment) rollback(notify bool) {
	f.data.rollback()
	if notify {
		f.notifyOwner()
	}
}

// Snapshot renders the live attribute values as a plain payload.
func (f *Fragment) Snapshot() (map[string]any, error) {
	return f.data.snapshot()
}

func (f *Fragment) String() string {
	if f.owner == nil {
		return fmt.Sprintf("<fragment %s>", f.ModelName())
	}
	return fmt.Sprintf("<fragment %s owned by %s.%s>", f.ModelName(), f.owner.ModelName(), f.ownerKey)
}

func (f *Fragment) storage() *modelData {
	return f.data
}

// notifyOwner lets the owner re-evaluate the attribute holding f.
func (f *Fragment) notifyOwner() {
	if f.owner == nil || f.ownerKey == "" {
		return
	}
	f.owner.storage().reconcile(f.ownerKey)
}
