package fragments

import (
	"context"

	"github.com/goliatone/go-fragments/pkg/activity"
)

// fragmentDidDirty marks key as modified on the owner's attribute storage
// with value as the live value. Repeating the signal has no further effect.
func fragmentDidDirty(owner Owner, key string, value any) {
	d := owner.storage()
	was := d.attrs.IsModified(key)
	d.attrs.SetModified(key, value)
	if was {
		return
	}
	d.signal(activity.VerbFragmentDirtied, key)
	d.changed()
}

// fragmentDidReset drops any modification of key so it reads as canonical.
func fragmentDidReset(owner Owner, key string) {
	d := owner.storage()
	if !d.attrs.IsModified(key) {
		return
	}
	d.attrs.ClearModified(key)
	d.signal(activity.VerbFragmentReset, key)
	d.changed()
}

func (d *modelData) signal(verb, key string) {
	if d.store == nil {
		return
	}
	d.store.logger().Debug().
		Str("verb", verb).
		Str("model", d.modelName()).
		Str("key", key).
		Msg("fragment state changed")

	record, ok := d.owner.(*Record)
	if !ok {
		return
	}
	input := activity.FragmentEventInput{Model: record.ModelName(), RecordID: record.ID(), Key: key}
	switch verb {
	case activity.VerbFragmentDirtied:
		d.store.emit(context.Background(), activity.BuildFragmentDirtiedEvent(input))
	case activity.VerbFragmentReset:
		d.store.emit(context.Background(), activity.BuildFragmentResetEvent(input))
	}
}
