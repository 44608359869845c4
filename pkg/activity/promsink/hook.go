package promsink

import (
	"context"

	"github.com/goliatone/go-fragments/pkg/activity"
	"github.com/prometheus/client_golang/prometheus"
)

// Hook counts lifecycle events by verb and model. Fragment events missing
// their attribute key are not counted.
type Hook struct {
	events *prometheus.CounterVec
}

// New builds a hook whose counter lives under namespace and registers it with
// registerer. A nil registerer leaves the counter unregistered.
func New(namespace string, registerer prometheus.Registerer) (*Hook, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragment_events_total",
			Help:      "Total number of fragment lifecycle events",
		},
		[]string{"verb", "object_type"},
	)
	if registerer != nil {
		if err := registerer.Register(events); err != nil {
			return nil, err
		}
	}
	return &Hook{events: events}, nil
}

// Notify increments the counter for the event's verb and object type.
func (h *Hook) Notify(_ context.Context, event activity.Event) error {
	if h == nil || h.events == nil {
		return nil
	}
	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" {
		return nil
	}
	if normalized.IsFragmentEvent() && normalized.Key() == "" {
		return nil
	}
	h.events.WithLabelValues(normalized.Verb, normalized.ObjectType).Inc()
	return nil
}

// Collector exposes the underlying counter.
func (h *Hook) Collector() *prometheus.CounterVec {
	return h.events
}
