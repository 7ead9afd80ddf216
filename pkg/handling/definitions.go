// Package handling implements the event-handling processor: one
// processor per (group, partition), sourcing a long-running observe
// stream, partitioning by sequence key, and dispatching to registered
// event handlers with checkpointed, backoff-retried progress.
package handling

import (
	"reflect"

	"escqrs/pkg/esdb"
)

// eventHandlerFunc is the uniform internal shape every
// EventHandlerDefinition variant normalizes to, mirroring how
// escqrs.StateRebuildingHandlerDefinition collapses its five variants to
// one signature at registration time.
type eventHandlerFunc func(rawEvent esdb.Event, event any, metaData MetaData) error

// MetaData mirrors escqrs.MetaData as this package's own type;
// EscqrsEventResolver converts escqrs metadata into it.
type MetaData map[string]any

// EventHandlerDefinition binds one event type to a handler function for
// a given group.
type EventHandlerDefinition struct {
	EventType reflect.Type
	fn        eventHandlerFunc
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// NewEventHandler registers the (event) -> error variant.
func NewEventHandler[E any](fn func(event E) error) EventHandlerDefinition {
	return EventHandlerDefinition{
		EventType: typeOf[E](),
		fn: func(_ esdb.Event, event any, _ MetaData) error {
			typedEvent, _ := event.(E)
			return fn(typedEvent)
		},
	}
}

// NewEventHandlerWithMetaData registers the (event, metaData) -> error
// variant.
func NewEventHandlerWithMetaData[E any](fn func(event E, metaData MetaData) error) EventHandlerDefinition {
	return EventHandlerDefinition{
		EventType: typeOf[E](),
		fn: func(_ esdb.Event, event any, metaData MetaData) error {
			typedEvent, _ := event.(E)
			return fn(typedEvent, metaData)
		},
	}
}

// NewEventHandlerWithRaw registers the (rawEvent, event) -> error
// variant.
func NewEventHandlerWithRaw[E any](fn func(rawEvent esdb.Event, event E) error) EventHandlerDefinition {
	return EventHandlerDefinition{
		EventType: typeOf[E](),
		fn: func(rawEvent esdb.Event, event any, _ MetaData) error {
			typedEvent, _ := event.(E)
			return fn(rawEvent, typedEvent)
		},
	}
}

// NewEventHandlerFull registers the (rawEvent, event, metaData) -> error
// variant.
func NewEventHandlerFull[E any](fn func(rawEvent esdb.Event, event E, metaData MetaData) error) EventHandlerDefinition {
	return EventHandlerDefinition{
		EventType: typeOf[E](),
		fn: func(rawEvent esdb.Event, event any, metaData MetaData) error {
			typedEvent, _ := event.(E)
			return fn(rawEvent, typedEvent, metaData)
		},
	}
}
