package fragments

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-fragments/layering"
)

// modelData is the attribute storage behind one record or fragment. Scalar
// keys live in the generic Attributes tiers; fragment-backed keys are
// intercepted into slots, and their dirtiness is mirrored into the tiers
// through the dirty and reset signals.
type modelData struct {
	owner Owner
	model *Model
	store *Store
	attrs *Attributes
	slots map[string]*slot

	// onChange runs after the storage changed in a way the owner's own
	// owner may need to observe.
	onChange func()
}

// slot tracks one fragment-backed attribute. canonical is the instance built
// from canonical data; live is what reads return.
type slot struct {
	attr      Attribute
	raw       any
	pending   bool
	ready     bool
	canonical any
	live      any
}

func newModelData(owner Owner, model *Model, store *Store) *modelData {
	return &modelData{
		owner: owner,
		model: model,
		store: store,
		attrs: NewAttributes(),
		slots: map[string]*slot{},
	}
}

func (d *modelData) modelName() string {
	if d.model == nil {
		return ""
	}
	return d.model.Name
}

func (d *modelData) attribute(key string) Attribute {
	if attr, ok := d.store.attributeOf(d.model, key); ok {
		return attr
	}
	return Attr(key)
}

func (d *modelData) slot(attr Attribute) *slot {
	s, ok := d.slots[attr.Name]
	if !ok {
		s = &slot{attr: attr}
		d.slots[attr.Name] = s
	}
	return s
}

func (d *modelData) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}

func (d *modelData) get(key string) (any, error) {
	attr := d.attribute(key)
	switch {
	case attr.Kind == KindOwner:
		fragment, ok := d.owner.(*Fragment)
		if !ok {
			return nil, attributeError("get", d.modelName(), key, fmt.Errorf("%w: owner attributes can only be read on fragments", ErrInvalidTarget))
		}
		if owner := fragment.Owner(); owner != nil {
			return owner, nil
		}
		return nil, nil
	case attr.Kind.IsFragment():
		s, err := d.setup(attr)
		if err != nil {
			return nil, attributeError("get", d.modelName(), key, err)
		}
		return s.live, nil
	default:
		value, _ := d.attrs.Get(key)
		return value, nil
	}
}

func (d *modelData) set(key string, value any) error {
	attr := d.attribute(key)
	var err error
	switch {
	case attr.Kind == KindOwner:
		err = fmt.Errorf("%w: owner attributes are read-only", ErrInvalidAssignment)
	case attr.Kind == KindFragment:
		err = d.setFragment(attr, value)
	case attr.Kind.IsArray():
		err = d.setArray(attr, value)
	default:
		if d.attrs.Set(key, value) {
			d.changed()
		}
	}
	return attributeError("set", d.modelName(), key, err)
}

func (d *modelData) fragment(key string) (*Fragment, error) {
	if attr := d.attribute(key); attr.Kind != KindFragment {
		return nil, attributeError("get", d.modelName(), key, fmt.Errorf("%w: %s is a %s attribute", ErrInvalidTarget, key, attr.Kind))
	}
	value, err := d.get(key)
	if err != nil {
		return nil, err
	}
	fragment, _ := value.(*Fragment)
	return fragment, nil
}

func (d *modelData) fragmentArray(key string) (*FragmentArray, error) {
	if attr := d.attribute(key); attr.Kind != KindFragmentArray {
		return nil, attributeError("get", d.modelName(), key, fmt.Errorf("%w: %s is a %s attribute", ErrInvalidTarget, key, attr.Kind))
	}
	value, err := d.get(key)
	if err != nil {
		return nil, err
	}
	array, _ := value.(*FragmentArray)
	return array, nil
}

func (d *modelData) array(key string) (*StatefulArray, error) {
	if attr := d.attribute(key); attr.Kind != KindArray {
		return nil, attributeError("get", d.modelName(), key, fmt.Errorf("%w: %s is a %s attribute", ErrInvalidTarget, key, attr.Kind))
	}
	value, err := d.get(key)
	if err != nil {
		return nil, err
	}
	array, _ := value.(*StatefulArray)
	return array, nil
}

// setProperties applies props in key order after checking every value has a
// shape its attribute accepts.
func (d *modelData) setProperties(props map[string]any) error {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if err := d.checkProperties(props); err != nil {
		return err
	}
	for _, key := range keys {
		if err := d.set(key, props[key]); err != nil {
			return err
		}
	}
	return nil
}

// checkProperties validates props without writing them. It descends into the
// fragments and arrays a write would update in place.
func (d *modelData) checkProperties(props map[string]any) error {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := d.checkValue(d.attribute(key), props[key]); err != nil {
			return attributeError("set", d.modelName(), key, err)
		}
	}
	return nil
}

func (d *modelData) checkValue(attr Attribute, value any) error {
	if err := d.checkWrite(attr, value); err != nil {
		return err
	}
	if !attr.Kind.IsFragment() {
		return nil
	}
	in, err := Classify(value)
	if err != nil {
		return err
	}
	s, err := d.setup(attr)
	if err != nil {
		return err
	}
	switch typed := in.(type) {
	case RawObject:
		if current, ok := s.live.(*Fragment); ok && current != nil {
			return current.data.checkProperties(typed)
		}
		_, err := d.resolveType(attr, typed)
		return err
	case RawArray:
		target, _ := s.live.(container)
		if target == nil {
			target = d.newContainer(attr)
		}
		return target.base().check(typed)
	}
	return nil
}

func (d *modelData) checkWrite(attr Attribute, value any) error {
	switch {
	case attr.Kind == KindOwner:
		return fmt.Errorf("%w: owner attributes are read-only", ErrInvalidAssignment)
	case !attr.Kind.IsFragment():
		return nil
	}
	in, err := Classify(value)
	if err != nil {
		return err
	}
	switch typed := in.(type) {
	case Null:
		return nil
	case RawArray:
		if attr.Kind == KindFragment {
			return invalidAssignment("%s accepts an object, a %s fragment or nil, got array", attr.Name, attr.ElementType)
		}
	case RawObject:
		if attr.Kind.IsArray() {
			return invalidAssignment("%s accepts an array or nil, got object", attr.Name)
		}
	case FragmentInstance:
		if attr.Kind.IsArray() {
			return invalidAssignment("%s accepts an array or nil, got %s", attr.Name, describeInput(typed))
		}
		if typed.Fragment != nil && !d.store.isA(typed.Fragment.model, attr.ElementType) {
			return invalidAssignment("%s accepts %s fragments, got %s", attr.Name, attr.ElementType, describeInput(typed))
		}
	}
	return nil
}

// setup hydrates the slot on first access from the pending ingestion payload
// or the attribute default.
func (d *modelData) setup(attr Attribute) (*slot, error) {
	s := d.slot(attr)
	if s.ready {
		return s, nil
	}
	raw := s.raw
	if !s.pending {
		value, err := ResolveDefault(attr)
		if err != nil {
			return nil, err
		}
		raw = value
	}
	instance, err := d.build(attr, raw, nil)
	if err != nil {
		return nil, err
	}
	s.canonical = instance
	s.live = instance
	s.ready = true
	s.pending = false
	s.raw = nil
	return s, nil
}

// build turns canonical raw data into a fragment or container, hydrating
// existing in place when it is compatible.
func (d *modelData) build(attr Attribute, raw any, existing any) (any, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case *Fragment:
		if attr.Kind != KindFragment || !d.store.isA(value.model, attr.ElementType) {
			return nil, invalidAssignment("%s cannot hold a %s fragment", attr.Name, value.ModelName())
		}
		value.bind(d.owner, attr.Name)
		return value, nil
	case *StatefulArray:
		return d.adoptArray(attr, value.self, value)
	case *FragmentArray:
		return d.adoptArray(attr, value, &value.StatefulArray)
	}

	if attr.Kind == KindFragment {
		payload, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidAssignment("%s expects an object, got %s", attr.Name, shapeOf(raw))
		}
		model, err := d.resolveType(attr, payload)
		if err != nil {
			return nil, err
		}
		if current, ok := existing.(*Fragment); ok && current != nil && current.model == model {
			if err := current.data.setupData(payload); err != nil {
				return nil, err
			}
			return current, nil
		}
		return d.createFragment(attr, model, payload)
	}

	items, ok := asSlice(raw)
	if !ok {
		return nil, invalidAssignment("%s expects an array, got %s", attr.Name, shapeOf(raw))
	}
	target, _ := existing.(container)
	if target == nil {
		target = d.newContainer(attr)
	}
	if err := target.base().setupData(items); err != nil {
		return nil, err
	}
	return target, nil
}

func (d *modelData) adoptArray(attr Attribute, outer any, array *StatefulArray) (any, error) {
	if (attr.Kind == KindFragmentArray) != (array.elements != nil) || !attr.Kind.IsArray() {
		return nil, invalidAssignment("%s cannot hold a %s", attr.Name, shapeOf(outer))
	}
	if previous := array.owner; previous != nil && (previous != d.owner || array.key != attr.Name) {
		previous.storage().release(array.key, outer)
	}
	array.owner = d.owner
	array.key = attr.Name
	array.attr = attr
	for _, item := range array.current {
		if fragment, ok := item.(*Fragment); ok && fragment != nil {
			fragment.bind(d.owner, attr.Name)
		}
	}
	return outer, nil
}

func (d *modelData) resolveType(attr Attribute, payload map[string]any) (*Model, error) {
	resolver := attr.resolver
	if resolver == nil {
		resolver = DefaultTypeResolver()
	}
	typeKey := ""
	if attr.Polymorphic {
		typeKey = attr.TypeKey
	}
	name, err := resolver.ResolveType(payload, attr.ElementType, typeKey)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = attr.ElementType
	}
	model, err := d.store.ResolveType(name)
	if err != nil {
		return nil, err
	}
	if !d.store.isA(model, attr.ElementType) {
		return nil, invalidAssignment("%s accepts %s fragments, payload resolved to %s", attr.Name, attr.ElementType, name)
	}
	return model, nil
}

// createFragment builds a fragment owned by this storage under attr and
// hydrates it with payload as canonical data.
func (d *modelData) createFragment(attr Attribute, model *Model, payload map[string]any) (*Fragment, error) {
	fragment := d.store.newFragment(model)
	if err := fragment.data.setupData(payload); err != nil {
		return nil, err
	}
	fragment.bind(d.owner, attr.Name)
	return fragment, nil
}

func (d *modelData) newContainer(attr Attribute) container {
	if attr.Kind == KindFragmentArray {
		return newFragmentArray(d.owner, attr)
	}
	return newStatefulArray(d.owner, attr)
}

func (d *modelData) setFragment(attr Attribute, value any) error {
	in, err := Classify(value)
	if err != nil {
		return err
	}
	if err := d.checkWrite(attr, in); err != nil {
		return err
	}
	s, err := d.setup(attr)
	if err != nil {
		return err
	}

	var next *Fragment
	switch typed := in.(type) {
	case Null:
	case FragmentInstance:
		next = typed.Fragment
	case RawObject:
		if current, ok := s.live.(*Fragment); ok && current != nil {
			return current.SetProperties(map[string]any(typed))
		}
		model, err := d.resolveType(attr, typed)
		if err != nil {
			return err
		}
		if next, err = d.createFragment(attr, model, typed); err != nil {
			return err
		}
	default:
		return invalidAssignment("%s accepts an object, a %s fragment or nil, got %s", attr.Name, attr.ElementType, describeInput(in))
	}

	if next == nil {
		s.live = nil
	} else {
		next.bind(d.owner, attr.Name)
		s.live = next
	}
	d.reconcile(attr.Name)
	return nil
}

func (d *modelData) setArray(attr Attribute, value any) error {
	in, err := Classify(value)
	if err != nil {
		return err
	}
	s, err := d.setup(attr)
	if err != nil {
		return err
	}

	switch typed := in.(type) {
	case Null:
		s.live = nil
	case RawArray:
		current, _ := s.live.(container)
		if current == nil {
			current = d.newContainer(attr)
		}
		if err := current.base().setObjects(typed); err != nil {
			return err
		}
		s.live = current
	default:
		return invalidAssignment("%s accepts an array or nil, got %s", attr.Name, describeInput(in))
	}
	d.reconcile(attr.Name)
	return nil
}

// release drops value from the slot of key after it moved to another owner.
// Fragments held by the slot's arrays are removed from them too.
func (d *modelData) release(key string, value any) {
	s, ok := d.slots[key]
	if !ok || !s.ready {
		return
	}
	released := false
	if s.live == value {
		s.live = nil
		released = true
	}
	if s.canonical == value {
		s.canonical = nil
		released = true
	}
	if fragment, ok := value.(*Fragment); ok {
		for _, held := range []any{s.live, s.canonical} {
			if c, ok := held.(container); ok && c != nil && c.base().drop(fragment) {
				released = true
			}
		}
	}
	if released {
		d.reconcile(key)
	}
}

// reconcile compares the live value of key against its canonical instance
// and emits the matching signal.
func (d *modelData) reconcile(key string) {
	s, ok := d.slots[key]
	if !ok || !s.ready {
		return
	}
	if s.live != s.canonical || isDirtyValue(s.live) {
		fragmentDidDirty(d.owner, key, s.live)
		return
	}
	fragmentDidReset(d.owner, key)
}

// setupData is the ingestion hook: fragment-backed keys are intercepted
// before the generic tiers see the payload.
func (d *modelData) setupData(payload map[string]any) error {
	scalars := make(map[string]any, len(payload))
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attr := d.attribute(key)
		switch {
		case attr.Kind == KindOwner:
		case attr.Kind.IsFragment():
			if err := d.ingest(attr, payload[key]); err != nil {
				return attributeError("setup", d.modelName(), key, err)
			}
		default:
			scalars[key] = payload[key]
		}
	}
	if len(scalars) > 0 {
		d.attrs.SetupData(scalars)
		d.changed()
	}
	return nil
}

func (d *modelData) ingest(attr Attribute, raw any) error {
	s := d.slot(attr)
	if !s.ready {
		s.raw = layering.Clone(raw)
		s.pending = true
		return nil
	}

	previous := s.canonical
	following := s.live == previous
	next, err := d.build(attr, layering.Clone(raw), previous)
	if err != nil {
		return err
	}
	s.canonical = next
	if following {
		s.live = next
	}
	d.reconcile(attr.Name)
	return nil
}

// rollback restores every slot to its canonical instance, cascading into
// owned fragments before discarding local modifications.
func (d *modelData) rollback() []string {
	for _, key := range d.slotKeys() {
		s := d.slots[key]
		if !s.ready {
			continue
		}
		rollbackValue(s.canonical)
		s.live = s.canonical
	}
	return d.attrs.Rollback()
}

func (d *modelData) willCommit() {
	d.attrs.WillCommit()
	for _, key := range d.slotKeys() {
		if s := d.slots[key]; s.ready {
			commitValue(s.live, phaseWillCommit)
		}
	}
}

func (d *modelData) didCommit(payload map[string]any) error {
	d.promote()
	if len(payload) > 0 {
		if err := d.setupData(payload); err != nil {
			return err
		}
	}
	d.reconcileAll()
	return nil
}

// promote makes the live values canonical, nested fragments and arrays first.
func (d *modelData) promote() {
	for _, key := range d.slotKeys() {
		s := d.slots[key]
		delete(d.attrs.inFlight, key)
		if !s.ready {
			continue
		}
		commitValue(s.live, phaseDidCommit)
		s.canonical = s.live
	}
	d.attrs.DidCommit(nil)
}

func (d *modelData) reconcileAll() {
	for _, key := range d.slotKeys() {
		d.reconcile(key)
	}
}

func (d *modelData) saveWasRejected() {
	d.attrs.SaveWasRejected()
	for _, key := range d.slotKeys() {
		s := d.slots[key]
		if !s.ready {
			continue
		}
		commitValue(s.live, phaseRejected)
		d.reconcile(key)
	}
}

func (d *modelData) reset() {
	d.attrs.Reset()
	d.slots = map[string]*slot{}
}

func (d *modelData) isDirty() bool {
	return d.attrs.HasChanges()
}

func (d *modelData) changedAttributes() map[string]Change {
	changes := d.attrs.Changed()
	for key, change := range changes {
		if s, ok := d.slots[key]; ok && s.ready {
			changes[key] = Change{Old: s.canonical, New: s.live}
			continue
		}
		changes[key] = change
	}
	return changes
}

// snapshot renders the live values as a plain payload.
func (d *modelData) snapshot() (map[string]any, error) {
	out := map[string]any{}
	for key, value := range d.attrs.data {
		out[key] = layering.Clone(value)
	}
	for key, value := range d.attrs.inFlight {
		out[key] = layering.Clone(value)
	}
	for key, value := range d.attrs.current {
		out[key] = layering.Clone(value)
	}
	for _, attr := range d.store.attributesOf(d.model) {
		if !attr.Kind.IsFragment() {
			continue
		}
		s, err := d.setup(attr)
		if err != nil {
			return nil, attributeError("snapshot", d.modelName(), attr.Name, err)
		}
		value, err := snapshotValue(s.live)
		if err != nil {
			return nil, err
		}
		out[attr.Name] = value
	}
	return out, nil
}

func (d *modelData) slotKeys() []string {
	keys := make([]string, 0, len(d.slots))
	for key := range d.slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type commitPhase int

const (
	phaseWillCommit commitPhase = iota
	phaseDidCommit
	phaseRejected
)

func isDirtyValue(value any) bool {
	switch typed := value.(type) {
	case *Fragment:
		return typed != nil && typed.IsDirty()
	case container:
		return typed != nil && typed.base().IsDirty()
	default:
		return false
	}
}

func rollbackValue(value any) {
	switch typed := value.(type) {
	case *Fragment:
		if typed != nil {
			typed.rollback(false)
		}
	case container:
		if typed != nil {
			typed.base().rollback(false)
		}
	}
}

func commitValue(value any, phase commitPhase) {
	switch typed := value.(type) {
	case *Fragment:
		if typed == nil {
			return
		}
		switch phase {
		case phaseWillCommit:
			typed.data.willCommit()
		case phaseDidCommit:
			typed.data.promote()
			typed.data.reconcileAll()
		case phaseRejected:
			typed.data.saveWasRejected()
		}
	case container:
		if typed != nil {
			typed.base().commit(phase)
		}
	}
}

func snapshotValue(value any) (any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case *Fragment:
		if typed == nil {
			return nil, nil
		}
		return typed.Snapshot()
	case container:
		if typed == nil {
			return nil, nil
		}
		items := typed.base().current
		out := make([]any, len(items))
		for i, item := range items {
			rendered, err := snapshotValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return layering.Clone(value), nil
	}
}
