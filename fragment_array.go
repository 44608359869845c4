package fragments

// FragmentArray is a StatefulArray whose elements are fragments owned by the
// array's owner under the array's key.
type FragmentArray struct {
	StatefulArray
}

func newFragmentArray(owner Owner, attr Attribute) *FragmentArray {
	fa := &FragmentArray{}
	fa.init(owner, attr)
	fa.self = fa
	fa.elements = fragmentElements{}
	return fa
}

// Fragments returns the live elements typed as fragments. Nil elements stay
// nil.
func (fa *FragmentArray) Fragments() []*Fragment {
	out := make([]*Fragment, len(fa.current))
	for i, item := range fa.current {
		out[i], _ = item.(*Fragment)
	}
	return out
}

// FragmentAt returns the fragment at i, or nil.
func (fa *FragmentArray) FragmentAt(i int) *Fragment {
	fragment, _ := fa.At(i).(*Fragment)
	return fragment
}

type fragmentElements struct{}

type preparedElement struct {
	payload  map[string]any
	instance *Fragment
	model    *Model
	reuse    *Fragment
}

func (fragmentElements) check(a *StatefulArray, items []any) error {
	_, err := planElements(a, items, false)
	return err
}

func (fragmentElements) prepare(a *StatefulArray, items []any, canonical bool) ([]any, error) {
	plan, err := planElements(a, items, canonical)
	if err != nil {
		return nil, err
	}
	d := a.owner.storage()
	out := make([]any, len(items))
	for i, step := range plan {
		switch {
		case step.instance != nil:
			step.instance.bind(a.owner, a.key)
			out[i] = step.instance
		case step.reuse != nil:
			var err error
			if canonical {
				err = step.reuse.data.setupData(step.payload)
			} else {
				err = step.reuse.SetProperties(step.payload)
			}
			if err != nil {
				return nil, err
			}
			out[i] = step.reuse
		case step.payload != nil:
			fragment, err := d.createFragment(a.attr, step.model, step.payload)
			if err != nil {
				return nil, err
			}
			out[i] = fragment
		}
	}
	return out, nil
}

// planElements classifies items, resolves their models and picks the live
// fragments to update in place. For writes, payloads aimed at reused
// fragments are checked as well, so applying the plan cannot fail halfway.
func planElements(a *StatefulArray, items []any, canonical bool) ([]preparedElement, error) {
	d := a.owner.storage()
	explicit := map[*Fragment]struct{}{}
	for _, item := range items {
		if fragment, ok := item.(*Fragment); ok && fragment != nil {
			explicit[fragment] = struct{}{}
		}
	}

	plan := make([]preparedElement, len(items))
	reused := map[*Fragment]struct{}{}
	for i, item := range items {
		in, err := Classify(item)
		if err != nil {
			return nil, err
		}
		switch typed := in.(type) {
		case Null:
		case FragmentInstance:
			if !d.store.isA(typed.Fragment.model, a.attr.ElementType) {
				return nil, invalidAssignment("%s accepts %s fragments, got %s at index %d", a.key, a.attr.ElementType, describeInput(typed), i)
			}
			plan[i].instance = typed.Fragment
		case RawObject:
			model, err := d.resolveType(a.attr, typed)
			if err != nil {
				return nil, err
			}
			plan[i].payload = typed
			plan[i].model = model
			existing, ok := a.At(i).(*Fragment)
			if !ok || existing == nil || existing.model != model {
				continue
			}
			_, taken := explicit[existing]
			_, done := reused[existing]
			if taken || done {
				continue
			}
			if !canonical {
				if err := existing.data.checkProperties(typed); err != nil {
					return nil, err
				}
			}
			plan[i].reuse = existing
			reused[existing] = struct{}{}
		default:
			return nil, invalidAssignment("%s accepts objects or %s fragments, got %s at index %d", a.key, a.attr.ElementType, describeInput(in), i)
		}
	}
	return plan, nil
}
