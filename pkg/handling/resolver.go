package handling

import (
	"escqrs/pkg/esdb"
	"escqrs/pkg/escqrs"
)

// ResolvedEvent is one converted tuple a raw event expands to after
// upcasting: a single raw event may upcast to zero, one, or many logical
// events, each dispatched to handlers independently.
type ResolvedEvent struct {
	Event    any
	MetaData MetaData
}

// EventResolver converts a raw event's JSON data into the typed values
// passed to event handlers.
type EventResolver interface {
	Resolve(rawEvent esdb.Event) ([]ResolvedEvent, error)
}

// EscqrsEventResolver adapts an escqrs.EventReader (component C) to the
// EventResolver shape this package dispatches against.
type EscqrsEventResolver struct {
	reader *escqrs.EventReader
}

// NewEscqrsEventResolver wraps reader for use as a GroupConfig.Resolver.
func NewEscqrsEventResolver(reader *escqrs.EventReader) *EscqrsEventResolver {
	return &EscqrsEventResolver{reader: reader}
}

func (r *EscqrsEventResolver) Resolve(rawEvent esdb.Event) ([]ResolvedEvent, error) {
	var resolved []ResolvedEvent
	err := r.reader.ConsumeRaw(
		func(consumer func(esdb.Event) error) error { return consumer(rawEvent) },
		func(_ esdb.Event, upcasted func(func([]escqrs.UpcastedEvent) error) error) error {
			return upcasted(func(events []escqrs.UpcastedEvent) error {
				for _, ue := range events {
					event, metaData, err := ue.Convert()
					if err != nil {
						return err
					}
					resolved = append(resolved, ResolvedEvent{Event: event, MetaData: MetaData(metaData)})
				}
				return nil
			})
		},
	)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
