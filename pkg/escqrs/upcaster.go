package escqrs

import (
	"encoding/json"

	"escqrs/pkg/esdb"
)

// UpcastResult is one (type, metaData, payload) tuple produced by a rule.
type UpcastResult struct {
	Type     string
	MetaData MetaData
	Payload  json.RawMessage
}

// UpcasterRule transforms a tuple whose Type matches SourceType. It may
// emit zero, one, or many tuples to feed the next rule in the pipeline.
type UpcasterRule struct {
	SourceType string
	Upcast     func(rawEvent esdb.Event, metaData MetaData, payload json.RawMessage) ([]UpcastResult, error)
}

// EventUpcasters is the ordered pipeline of UpcasterRules applied to every
// sourced event before final conversion. Rules not matching the current
// tuple's type pass it through unchanged.
type EventUpcasters struct {
	rules []UpcasterRule
}

// NewEventUpcasters builds a pipeline from rules in application order.
func NewEventUpcasters(rules ...UpcasterRule) *EventUpcasters {
	return &EventUpcasters{rules: rules}
}

// Apply runs the pipeline over the seed tuple (the event's own type,
// metadata, and payload as read off the store), returning the tuples that
// survive to drive final conversion.
func (u *EventUpcasters) Apply(rawEvent esdb.Event, metaData MetaData, payload json.RawMessage) ([]UpcastResult, error) {
	tuples := []UpcastResult{{Type: rawEvent.Type, MetaData: metaData, Payload: payload}}
	if u == nil {
		return tuples, nil
	}
	for _, rule := range u.rules {
		next := make([]UpcastResult, 0, len(tuples))
		for _, t := range tuples {
			if t.Type != rule.SourceType {
				next = append(next, t)
				continue
			}
			emitted, err := rule.Upcast(rawEvent, t.MetaData, t.Payload)
			if err != nil {
				return nil, &FrameworkError{
					RouterError: RouterError{Op: "upcast", Err: err},
					Transient:   false,
				}
			}
			next = append(next, emitted...)
		}
		tuples = next
	}
	return tuples, nil
}
