package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event describes a record or fragment lifecycle occurrence. ObjectType
// carries the model name and ObjectID the record identifier. Fragment events
// name the attribute that changed under the "key" metadata entry; rollbacks
// list the discarded attributes under "keys".
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Key returns the attribute a fragment event refers to.
func (e Event) Key() string {
	key, _ := e.Metadata["key"].(string)
	return strings.TrimSpace(key)
}

// Keys returns the attributes listed by a rollback event.
func (e Event) Keys() []string {
	keys, _ := e.Metadata["keys"].([]string)
	return keys
}

// IsFragmentEvent reports whether the event concerns a single fragment-backed
// attribute rather than the whole record.
func (e Event) IsFragmentEvent() bool {
	return strings.HasPrefix(strings.TrimSpace(e.Verb), "fragment.")
}

// Deliverable reports whether a hook can act on the event: it needs a verb
// and the record it concerns, and fragment events also need their key.
func (e Event) Deliverable() bool {
	if e.Verb == "" || e.ObjectType == "" || e.ObjectID == "" {
		return false
	}
	return !e.IsFragmentEvent() || e.Key() != ""
}

// ActivityHook receives normalized events. Errors returned by hooks are
// logged by the store and never fail a mutation.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// With returns a copy of h extended with hooks, skipping nil entries.
func (h Hooks) With(hooks ...ActivityHook) Hooks {
	out := make(Hooks, 0, len(h)+len(hooks))
	out = append(out, h...)
	for _, hook := range hooks {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

// Notify normalizes the event once and hands every hook its own copy, so a
// hook editing metadata cannot leak into the next one. Undeliverable events
// are dropped. Hook failures are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if !normalized.Deliverable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, cloneEvent(normalized)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt
// when missing.
func NormalizeEvent(event Event) Event {
	normalized := cloneEvent(event)
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	if key := normalized.Key(); key != "" {
		normalized.Metadata["key"] = key
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneEvent(event Event) Event {
	event.Metadata = cloneMap(event.Metadata)
	if keys, ok := event.Metadata["keys"].([]string); ok {
		event.Metadata["keys"] = append([]string{}, keys...)
	}
	return event
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
