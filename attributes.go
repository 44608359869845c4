package fragments

import (
	"sort"

	"github.com/goliatone/go-fragments/layering"
)

// Change pairs the canonical value of a key with its current value.
type Change struct {
	Old any
	New any
}

// Attributes is the three-tier attribute storage shared by records and
// fragments: canonical data accepted from the store, values in flight to the
// persistence adapter, and local modifications.
type Attributes struct {
	data     map[string]any
	inFlight map[string]any
	current  map[string]any
}

// NewAttributes returns empty storage.
func NewAttributes() *Attributes {
	a := &Attributes{}
	a.Reset()
	return a
}

// Get returns the live value of key, looking at local modifications, then
// in-flight values, then canonical data.
func (a *Attributes) Get(key string) (any, bool) {
	if value, ok := a.current[key]; ok {
		return value, true
	}
	if value, ok := a.inFlight[key]; ok {
		return value, true
	}
	value, ok := a.data[key]
	return value, ok
}

// Original returns the value key would revert to on rollback.
func (a *Attributes) Original(key string) (any, bool) {
	if value, ok := a.inFlight[key]; ok {
		return value, true
	}
	value, ok := a.data[key]
	return value, ok
}

// Has reports whether key is present on any tier.
func (a *Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set records value as a local modification and reports whether the live
// value changed. A value equal to the original drops the modification.
func (a *Attributes) Set(key string, value any) bool {
	old, _ := a.Get(key)
	if layering.Equal(old, value) {
		return false
	}
	a.current[key] = value
	if original, ok := a.Original(key); ok && layering.Equal(original, value) {
		delete(a.current, key)
	}
	return true
}

// SetModified unconditionally marks key as modified with value.
func (a *Attributes) SetModified(key string, value any) {
	a.current[key] = value
}

// ClearModified drops any local modification of key.
func (a *Attributes) ClearModified(key string) {
	delete(a.current, key)
}

// IsModified reports whether key carries a local modification.
func (a *Attributes) IsModified(key string) bool {
	_, ok := a.current[key]
	return ok
}

// HasChanges reports whether any key is locally modified.
func (a *Attributes) HasChanges() bool {
	return len(a.current) > 0
}

// Changed returns the modified and in-flight keys with their canonical and
// live values.
func (a *Attributes) Changed() map[string]Change {
	diff := make(map[string]Change, len(a.inFlight)+len(a.current))
	for key, value := range a.inFlight {
		diff[key] = Change{Old: a.data[key], New: value}
	}
	for key, value := range a.current {
		diff[key] = Change{Old: a.data[key], New: value}
	}
	return diff
}

// ChangedKeys returns the sorted keys reported by Changed.
func (a *Attributes) ChangedKeys() []string {
	changed := a.Changed()
	keys := make([]string, 0, len(changed))
	for key := range changed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SetupData merges canonical payload values and drops local modifications
// that now equal their canonical counterpart.
func (a *Attributes) SetupData(payload map[string]any) {
	for key, value := range payload {
		a.data[key] = layering.Clone(value)
		if current, ok := a.current[key]; ok && layering.Equal(current, value) {
			delete(a.current, key)
		}
	}
}

// WillCommit moves local modifications in flight.
func (a *Attributes) WillCommit() {
	for key, value := range a.current {
		a.inFlight[key] = value
	}
	a.current = map[string]any{}
}

// DidCommit promotes in-flight values, plus any payload returned by the
// adapter, to canonical data.
func (a *Attributes) DidCommit(payload map[string]any) {
	for key, value := range a.inFlight {
		a.data[key] = value
	}
	for key, value := range payload {
		a.data[key] = layering.Clone(value)
	}
	a.inFlight = map[string]any{}
}

// SaveWasRejected returns in-flight values to local modifications unless a
// newer modification was made meanwhile.
func (a *Attributes) SaveWasRejected() {
	for key, value := range a.inFlight {
		if _, ok := a.current[key]; !ok {
			a.current[key] = value
		}
	}
	a.inFlight = map[string]any{}
}

// Rollback discards local modifications and returns the affected keys.
func (a *Attributes) Rollback() []string {
	keys := make([]string, 0, len(a.current))
	for key := range a.current {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	a.current = map[string]any{}
	return keys
}

// Reset discards every tier.
func (a *Attributes) Reset() {
	a.data = map[string]any{}
	a.inFlight = map[string]any{}
	a.current = map[string]any{}
}
