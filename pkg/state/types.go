package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// ErrInvalidRef is returned when a Ref cannot be rendered into a key.
var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies one persisted record snapshot.
type Ref struct {
	Model string
	ID    string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single record reference.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

type Mutator[T any] func(*T) error

// Identifier renders the deterministic storage key for r.
func (r Ref) Identifier() (string, error) {
	model := strings.TrimSpace(r.Model)
	id := strings.TrimSpace(r.ID)
	if model == "" {
		return "", fmt.Errorf("%w: model is required", ErrInvalidRef)
	}
	if id == "" {
		return "", fmt.Errorf("%w: id is required for model %q", ErrInvalidRef, model)
	}
	if strings.Contains(model, "/") {
		return "", fmt.Errorf("%w: model %q must not contain '/'", ErrInvalidRef, model)
	}
	return fmt.Sprintf("%s/%s", model, id), nil
}

// Mutate loads one snapshot, applies fn and saves the result. meta.ETag, when
// set, must match the loaded snapshot.
func Mutate[T any](ctx context.Context, store Store[T], ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, Meta{}, err
	}

	snapshot, loadedMeta, ok, err := store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %s/%s: %w", ref.Model, ref.ID, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return zero, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}

	savedMeta, err := store.Save(ctx, ref, snapshot, mergeMeta(loadedMeta, meta))
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %s/%s: %w", ref.Model, ref.ID, err)
	}
	return snapshot, savedMeta, nil
}

// stamp fills in the storage-owned fields of meta for a successful save.
func stamp(meta Meta, now time.Time) Meta {
	out := cloneMeta(meta)
	if out.SnapshotID == "" {
		out.SnapshotID = uuid.NewString()
	}
	out.ETag = uuid.NewString()
	out.UpdatedAt = now.UTC()
	return out
}

func checkETag(stored, incoming Meta, exists bool) error {
	if !exists || incoming.ETag == "" || stored.ETag == "" {
		return nil
	}
	if incoming.ETag != stored.ETag {
		return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, incoming.ETag, stored.ETag)
	}
	return nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
