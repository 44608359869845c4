package fragments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-fragments/pkg/activity"
	"github.com/goliatone/go-fragments/pkg/state"
	"github.com/rs/zerolog"
)

// Store owns the model registry and the identity map of loaded records.
// Fragments created through a Store resolve their types against it.
type Store struct {
	mu      sync.RWMutex
	models  map[string]*Model
	records map[string]*Record

	cfg     storeConfig
	emitter *activity.Emitter
}

// NewStore builds an empty store.
func NewStore(opts ...Option) *Store {
	cfg := applyOptions(opts)
	return &Store{
		models:  map[string]*Model{},
		records: map[string]*Record{},
		cfg:     cfg,
		emitter: activity.NewEmitter(cfg.hooks, cfg.activity),
	}
}

// Register adds models to the registry. Names must be unique.
func (s *Store) Register(models ...*Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, model := range models {
		if model == nil || model.Name == "" {
			return fmt.Errorf("%w: model name must not be empty", ErrUnknownModel)
		}
		if _, exists := s.models[model.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, model.Name)
		}
		s.models[model.Name] = model
	}
	return nil
}

// MustRegister is Register that panics on error.
func (s *Store) MustRegister(models ...*Model) *Store {
	if err := s.Register(models...); err != nil {
		panic(err)
	}
	return s
}

// ModelFor returns the registered model called name.
func (s *Store) ModelFor(name string) (*Model, error) {
	s.mu.RLock()
	model, ok := s.models[strings.TrimSpace(name)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return model, nil
}

// ResolveType is the type lookup used when fragments are constructed.
func (s *Store) ResolveType(name string) (*Model, error) {
	return s.ModelFor(name)
}

// Models returns the registered model names in order.
func (s *Store) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every parent model and fragment element type is
// registered and that no inheritance chain loops.
func (s *Store) Validate() error {
	var errs []error
	for _, name := range s.Models() {
		model, _ := s.ModelFor(name)
		if _, err := s.lineage(model); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, attr := range model.Attributes() {
			if attr.Kind != KindFragment && attr.Kind != KindFragmentArray {
				continue
			}
			if _, err := s.ModelFor(attr.ElementType); err != nil {
				errs = append(errs, attributeError("validate", model.Name, attr.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// lineage returns model followed by its ancestors.
func (s *Store) lineage(model *Model) ([]*Model, error) {
	chain := []*Model{model}
	seen := map[string]struct{}{model.Name: {}}
	for current := model; current.Extends != ""; {
		parent, err := s.ModelFor(current.Extends)
		if err != nil {
			return nil, fmt.Errorf("%w: %s extends %s", ErrUnknownModel, current.Name, current.Extends)
		}
		if _, loop := seen[parent.Name]; loop {
			return nil, fmt.Errorf("%w: inheritance loop at %s", ErrUnknownModel, parent.Name)
		}
		seen[parent.Name] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// isA reports whether model is name or extends it. An empty name accepts
// any model.
func (s *Store) isA(model *Model, name string) bool {
	if model == nil {
		return false
	}
	if name == "" || model.Name == name {
		return true
	}
	chain, err := s.lineage(model)
	if err != nil {
		return false
	}
	for _, ancestor := range chain {
		if ancestor.Name == name {
			return true
		}
	}
	return false
}

// attributeOf looks key up on model and then its ancestors.
func (s *Store) attributeOf(model *Model, key string) (Attribute, bool) {
	if attr, ok := model.Attribute(key); ok || s == nil || model == nil || model.Extends == "" {
		return attr, ok
	}
	chain, err := s.lineage(model)
	if err != nil {
		return Attribute{}, false
	}
	for _, ancestor := range chain[1:] {
		if attr, ok := ancestor.Attribute(key); ok {
			return attr, true
		}
	}
	return Attribute{}, false
}

// attributesOf returns the attributes of model including inherited ones.
// Attributes declared closer to model win.
func (s *Store) attributesOf(model *Model) []Attribute {
	if s == nil || model == nil || model.Extends == "" {
		return model.Attributes()
	}
	chain, err := s.lineage(model)
	if err != nil {
		return model.Attributes()
	}
	var out []Attribute
	seen := map[string]struct{}{}
	for _, m := range chain {
		for _, attr := range m.Attributes() {
			if _, ok := seen[attr.Name]; ok {
				continue
			}
			seen[attr.Name] = struct{}{}
			out = append(out, attr)
		}
	}
	return out
}

// CreateRecord builds a new local record. props are applied as local
// modifications, so the record starts dirty when props is not empty.
func (s *Store) CreateRecord(modelName string, props map[string]any) (*Record, error) {
	model, err := s.ModelFor(modelName)
	if err != nil {
		return nil, err
	}
	record := s.newRecord(model, s.cfg.idGenerator())
	record.isNew = true
	if err := record.SetProperties(props); err != nil {
		return nil, err
	}
	s.track(record)
	return record, nil
}

// Push ingests canonical data for a record, creating it when unknown. Known
// records are rehydrated in place and keep their fragment identities.
func (s *Store) Push(modelName, id string, payload map[string]any) (*Record, error) {
	model, err := s.ModelFor(modelName)
	if err != nil {
		return nil, err
	}
	record, ok := s.Peek(modelName, id)
	if !ok {
		record = s.newRecord(model, id)
	}
	if err := record.data.setupData(payload); err != nil {
		return nil, err
	}
	if !ok {
		s.track(record)
	}
	return record, nil
}

// Peek returns a loaded record without touching persistence.
func (s *Store) Peek(modelName, id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey(modelName, id)]
	return record, ok
}

// CreateFragment builds an unowned fragment. props are applied as local
// modifications.
func (s *Store) CreateFragment(modelName string, props map[string]any) (*Fragment, error) {
	model, err := s.ModelFor(modelName)
	if err != nil {
		return nil, err
	}
	fragment := s.newFragment(model)
	if err := fragment.SetProperties(props); err != nil {
		return nil, err
	}
	return fragment, nil
}

// Save persists the record snapshot. In-flight attributes are promoted to
// canonical data on success and returned to local modifications on failure.
// Without a persistence adapter the commit is purely local.
func (s *Store) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidTarget)
	}
	snapshot, err := record.Snapshot()
	if err != nil {
		return err
	}

	record.WillCommit()
	input := activity.FragmentEventInput{Model: record.ModelName(), RecordID: record.ID()}
	if s.cfg.persistence != nil {
		ref := state.Ref{Model: record.ModelName(), ID: record.ID()}
		meta, err := s.cfg.persistence.Save(ctx, ref, snapshot, record.meta)
		if err != nil {
			record.SaveWasRejected()
			s.logger().Warn().Err(err).Str("model", ref.Model).Str("id", ref.ID).Msg("save rejected")
			s.emit(ctx, activity.BuildRecordSaveRejectedEvent(input))
			return err
		}
		record.meta = meta
		input.Metadata = map[string]any{"snapshot_id": meta.SnapshotID}
	}
	if err := record.DidCommit(nil); err != nil {
		return err
	}
	s.emit(ctx, activity.BuildRecordCommittedEvent(input))
	return nil
}

// Find returns the record from the identity map or loads it from the
// persistence adapter.
func (s *Store) Find(ctx context.Context, modelName, id string) (*Record, error) {
	if record, ok := s.Peek(modelName, id); ok {
		return record, nil
	}
	if s.cfg.persistence == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, modelName, id)
	}
	snapshot, meta, ok, err := s.cfg.persistence.Load(ctx, state.Ref{Model: modelName, ID: id})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, modelName, id)
	}
	record, err := s.Push(modelName, id, snapshot)
	if err != nil {
		return nil, err
	}
	record.meta = meta
	return record, nil
}

// Unload drops the record from the identity map.
func (s *Store) Unload(record *Record) {
	if record == nil {
		return
	}
	s.mu.Lock()
	delete(s.records, recordKey(record.ModelName(), record.ID()))
	s.mu.Unlock()
}

func (s *Store) track(record *Record) {
	s.mu.Lock()
	s.records[recordKey(record.ModelName(), record.ID())] = record
	s.mu.Unlock()
}

func (s *Store) logger() *zerolog.Logger {
	if s == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &s.cfg.logger
}

// emit forwards event to the configured hooks. Hook failures are logged.
func (s *Store) emit(ctx context.Context, event activity.Event) {
	if s == nil || !s.emitter.Enabled() {
		return
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger().Warn().Err(err).Str("verb", event.Verb).Msg("activity hook failed")
	}
}

func recordKey(modelName, id string) string {
	return modelName + "/" + id
}
