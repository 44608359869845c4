package fragments

import (
	"context"

	"github.com/goliatone/go-fragments/pkg/activity"
	"github.com/goliatone/go-fragments/pkg/state"
)

// Record is a top-level model instance tracked by a Store. Its scalar
// attributes live in the tiered attribute storage; fragment-backed
// attributes are materialized lazily.
type Record struct {
	id    string
	model *Model
	store *Store
	isNew bool
	meta  state.Meta
	data  *modelData
}

func (s *Store) newRecord(model *Model, id string) *Record {
	r := &Record{id: id, model: model, store: s}
	r.data = newModelData(r, model, s)
	return r
}

// ID returns the record identifier.
func (r *Record) ID() string {
	return r.id
}

// ModelName returns the record's model name.
func (r *Record) ModelName() string {
	if r == nil || r.model == nil {
		return ""
	}
	return r.model.Name
}

// Model returns the record's model.
func (r *Record) Model() *Model {
	return r.model
}

// IsNew reports whether the record was created locally and never saved.
func (r *Record) IsNew() bool {
	return r.isNew
}

// Meta returns the persistence metadata of the last load or save.
func (r *Record) Meta() state.Meta {
	return r.meta
}

func (r *Record) Get(key string) (any, error) {
	return r.data.get(key)
}

func (r *Record) Set(key string, value any) error {
	return r.data.set(key, value)
}

// SetProperties applies a partial update. Every value is checked before any
// is written.
func (r *Record) SetProperties(props map[string]any) error {
	return r.data.setProperties(props)
}

func (r *Record) Fragment(key string) (*Fragment, error) {
	return r.data.fragment(key)
}

func (r *Record) FragmentArray(key string) (*FragmentArray, error) {
	return r.data.fragmentArray(key)
}

func (r *Record) Array(key string) (*StatefulArray, error) {
	return r.data.array(key)
}

// IsDirty reports whether any attribute has a local modification.
func (r *Record) IsDirty() bool {
	return r != nil && r.data.isDirty()
}

// ChangedAttributes returns the modified and in-flight attributes. Fragment
// attributes report the canonical instance as Old and the live value as New.
func (r *Record) ChangedAttributes() map[string]Change {
	return r.data.changedAttributes()
}

// Rollback cascades into owned fragments and arrays, then discards every
// local modification.
func (r *Record) Rollback() {
	keys := r.data.rollback()
	r.store.logger().Debug().
		Str("model", r.ModelName()).
		Str("id", r.id).
		Strs("keys", keys).
		Msg("record rolled back")
	r.store.emit(context.Background(), activity.BuildRecordRolledBackEvent(activity.FragmentEventInput{
		Model:    r.ModelName(),
		RecordID: r.id,
		Keys:     keys,
	}))
}

// WillCommit moves local modifications in flight, nested fragments included.
func (r *Record) WillCommit() {
	r.data.willCommit()
}

// DidCommit promotes in-flight values to canonical data and ingests payload,
// the attributes returned by the persistence layer, if any.
func (r *Record) DidCommit(payload map[string]any) error {
	if err := r.data.didCommit(payload); err != nil {
		return err
	}
	r.isNew = false
	return nil
}

// SaveWasRejected returns in-flight values to local modifications.
func (r *Record) SaveWasRejected() {
	r.data.saveWasRejected()
}

// Reset discards all attribute data and fragments.
func (r *Record) Reset() {
	r.data.reset()
}

// Snapshot renders the live attribute values as a plain payload.
func (r *Record) Snapshot() (map[string]any, error) {
	return r.data.snapshot()
}

func (r *Record) storage() *modelData {
	return r.data
}
