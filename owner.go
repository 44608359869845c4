package fragments

import "fmt"

// Owner is anything that can hold fragments: a Record or a parent Fragment.
// The interface is sealed; fragment storage reaches the owner's attribute
// tiers through it.
type Owner interface {
	ModelName() string
	IsDirty() bool
	storage() *modelData
}

// BindOwner stamps target with a back reference to owner under key. Binding
// is idempotent and the last bind wins; a fragment never has two owners, and
// the attribute that held it before lets go of it.
func BindOwner(target any, owner Owner, key string) (*Fragment, error) {
	fragment, ok := target.(*Fragment)
	if !ok || fragment == nil {
		return nil, fmt.Errorf("%w: cannot bind owner to %s", ErrInvalidTarget, shapeOf(target))
	}
	fragment.bind(owner, key)
	return fragment, nil
}

// OwnerOf returns the current owner of target, which must be a fragment.
func OwnerOf(target any) (Owner, error) {
	fragment, ok := target.(*Fragment)
	if !ok || fragment == nil {
		return nil, fmt.Errorf("%w: owner is only available on fragments, got %s", ErrInvalidTarget, shapeOf(target))
	}
	return fragment.Owner(), nil
}

// bind moves f under owner. The previous owner stops holding f, both as its
// live value and as its canonical one.
func (f *Fragment) bind(owner Owner, key string) {
	if f.owner == owner && f.ownerKey == key {
		return
	}
	previous, previousKey := f.owner, f.ownerKey
	f.owner = owner
	f.ownerKey = key
	if owner == nil {
		f.ownerKey = ""
	}
	if previous != nil {
		previous.storage().release(previousKey, f)
	}
}
