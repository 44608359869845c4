package fragments

import "fmt"

// Input is the closed set of values an attribute write can carry. Only the
// variants declared in this file implement it.
type Input interface {
	isInput()
}

// Null clears the attribute.
type Null struct{}

// RawObject is a plain payload for a single fragment.
type RawObject map[string]any

// RawArray is a sequence of payloads, fragments or primitive values.
type RawArray []any

// FragmentInstance carries an existing fragment to adopt.
type FragmentInstance struct {
	Fragment *Fragment
}

func (Null) isInput()             {}
func (RawObject) isInput()        {}
func (RawArray) isInput()         {}
func (FragmentInstance) isInput() {}

// Classify maps an arbitrary write value onto the Input variants. Arrays held
// by another attribute are classified by their current contents, and a
// FragmentInstance without a fragment is Null.
func Classify(value any) (Input, error) {
	switch typed := value.(type) {
	case nil:
		return Null{}, nil
	case FragmentInstance:
		if typed.Fragment == nil {
			return Null{}, nil
		}
		return typed, nil
	case Input:
		return typed, nil
	case *Fragment:
		if typed == nil {
			return Null{}, nil
		}
		return FragmentInstance{Fragment: typed}, nil
	case map[string]any:
		return RawObject(typed), nil
	case *StatefulArray:
		if typed == nil {
			return Null{}, nil
		}
		return RawArray(typed.Objects()), nil
	case *FragmentArray:
		if typed == nil {
			return Null{}, nil
		}
		return RawArray(typed.Objects()), nil
	}
	if items, ok := asSlice(value); ok {
		return RawArray(items), nil
	}
	return nil, invalidAssignment("unsupported value of type %T", value)
}

func describeInput(in Input) string {
	switch typed := in.(type) {
	case Null:
		return "null"
	case RawObject:
		return "object"
	case RawArray:
		return "array"
	case FragmentInstance:
		return fmt.Sprintf("%s fragment", typed.Fragment.ModelName())
	default:
		return fmt.Sprintf("%T", in)
	}
}
