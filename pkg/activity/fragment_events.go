package activity

import (
	"sort"
	"strings"
	"time"
)

// Verbs emitted by fragment-backed records.
const (
	VerbFragmentDirtied    = "fragment.dirtied"
	VerbFragmentReset      = "fragment.reset"
	VerbRecordRolledBack   = "record.rolled_back"
	VerbRecordCommitted    = "record.committed"
	VerbRecordSaveRejected = "record.save_rejected"
)

// FragmentEventInput describes the common fields for record and fragment
// lifecycle events.
type FragmentEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Model      string
	RecordID   string
	Key        string
	Keys       []string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildFragmentDirtiedEvent reports that the fragment-backed attribute Key of
// a record became dirty.
func BuildFragmentDirtiedEvent(input FragmentEventInput) Event {
	return buildFragmentEvent(VerbFragmentDirtied, input)
}

// BuildFragmentResetEvent reports that the attribute Key returned to its
// canonical state.
func BuildFragmentResetEvent(input FragmentEventInput) Event {
	return buildFragmentEvent(VerbFragmentReset, input)
}

// BuildRecordRolledBackEvent reports a rollback; Keys lists the attributes
// that were discarded.
func BuildRecordRolledBackEvent(input FragmentEventInput) Event {
	return buildFragmentEvent(VerbRecordRolledBack, input)
}

// BuildRecordCommittedEvent reports a successful save.
func BuildRecordCommittedEvent(input FragmentEventInput) Event {
	return buildFragmentEvent(VerbRecordCommitted, input)
}

// BuildRecordSaveRejectedEvent reports a save the persistence layer refused.
func BuildRecordSaveRejectedEvent(input FragmentEventInput) Event {
	return buildFragmentEvent(VerbRecordSaveRejected, input)
}

func buildFragmentEvent(verb string, input FragmentEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if key := strings.TrimSpace(input.Key); key != "" {
		metadata = ensureMetadata(metadata)
		metadata["key"] = key
	}
	if len(input.Keys) > 0 {
		keys := append([]string{}, input.Keys...)
		sort.Strings(keys)
		metadata = ensureMetadata(metadata)
		metadata["keys"] = keys
	}

	objectType := strings.TrimSpace(input.Model)
	if objectType == "" {
		objectType = "record"
	}
	objectID := strings.TrimSpace(input.RecordID)
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
