package escqrs

import (
	"context"
	"reflect"

	"escqrs/pkg/esdb"
)

// stateRebuildFunc is the uniform internal shape every
// StateRebuildingHandlerDefinition variant is normalized to. The runtime
// switch over variants happens once, at registration time in the
// constructors below; dispatch never branches on shape again.
type stateRebuildFunc func(instance any, event any, metaData MetaData, subject string, rawEvent *esdb.Event) any

// StateRebuildingHandlerDefinition folds one event type into an instance
// for a given instance type. fn always receives the full parameter set;
// constructors below discard the ones a particular variant doesn't need.
type StateRebuildingHandlerDefinition struct {
	InstanceType reflect.Type
	EventType    reflect.Type
	fn           stateRebuildFunc
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// isNilInstance reports whether a state-rebuilding handler returned a nil
// instance, which is always treated as fatal.
func isNilInstance(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// NewStateRebuildingHandler registers the (instance, event) -> instance
// variant.
func NewStateRebuildingHandler[I any, E any](fn func(instance I, event E) I) StateRebuildingHandlerDefinition {
	return StateRebuildingHandlerDefinition{
		InstanceType: typeOf[I](),
		EventType:    typeOf[E](),
		fn: func(instance any, event any, _ MetaData, _ string, _ *esdb.Event) any {
			typedInstance, _ := instance.(I)
			typedEvent, _ := event.(E)
			return fn(typedInstance, typedEvent)
		},
	}
}

// NewStateRebuildingHandlerWithMetaData registers the (instance, event,
// metaData) -> instance variant.
func NewStateRebuildingHandlerWithMetaData[I any, E any](fn func(instance I, event E, metaData MetaData) I) StateRebuildingHandlerDefinition {
	return StateRebuildingHandlerDefinition{
		InstanceType: typeOf[I](),
		EventType:    typeOf[E](),
		fn: func(instance any, event any, metaData MetaData, _ string, _ *esdb.Event) any {
			typedInstance, _ := instance.(I)
			typedEvent, _ := event.(E)
			return fn(typedInstance, typedEvent, metaData)
		},
	}
}

// NewStateRebuildingHandlerWithSubject registers the (instance, event,
// subject) -> instance variant.
func NewStateRebuildingHandlerWithSubject[I any, E any](fn func(instance I, event E, subject string) I) StateRebuildingHandlerDefinition {
	return StateRebuildingHandlerDefinition{
		InstanceType: typeOf[I](),
		EventType:    typeOf[E](),
		fn: func(instance any, event any, _ MetaData, subject string, _ *esdb.Event) any {
			typedInstance, _ := instance.(I)
			typedEvent, _ := event.(E)
			return fn(typedInstance, typedEvent, subject)
		},
	}
}

// NewStateRebuildingHandlerWithMetaDataAndSubject registers the (instance,
// event, metaData, subject) -> instance variant.
func NewStateRebuildingHandlerWithMetaDataAndSubject[I any, E any](fn func(instance I, event E, metaData MetaData, subject string) I) StateRebuildingHandlerDefinition {
	return StateRebuildingHandlerDefinition{
		InstanceType: typeOf[I](),
		EventType:    typeOf[E](),
		fn: func(instance any, event any, metaData MetaData, subject string, _ *esdb.Event) any {
			typedInstance, _ := instance.(I)
			typedEvent, _ := event.(E)
			return fn(typedInstance, typedEvent, metaData, subject)
		},
	}
}

// NewStateRebuildingHandlerFull registers the variant that additionally
// receives the raw (pre-conversion) event; rawEvent is nil for events
// captured during the current command (nothing has been written yet).
func NewStateRebuildingHandlerFull[I any, E any](fn func(instance I, event E, metaData MetaData, subject string, rawEvent *esdb.Event) I) StateRebuildingHandlerDefinition {
	return StateRebuildingHandlerDefinition{
		InstanceType: typeOf[I](),
		EventType:    typeOf[E](),
		fn: func(instance any, event any, metaData MetaData, subject string, rawEvent *esdb.Event) any {
			typedInstance, _ := instance.(I)
			typedEvent, _ := event.(E)
			return fn(typedInstance, typedEvent, metaData, subject, rawEvent)
		},
	}
}

// commandHandlerFunc is the uniform internal shape every
// CommandHandlerDefinition variant normalizes to.
type commandHandlerFunc func(ctx context.Context, command any, instance any, metaData MetaData, publisher *CommandEventCapturer) (any, error)

// CommandHandlerDefinition resolves and invokes one command type.
// InstanceType is nil for the no-instance variant: the router then skips
// state rebuilding for this handler entirely (an empty relevant-rebuilder
// list).
type CommandHandlerDefinition struct {
	CommandType  reflect.Type
	InstanceType reflect.Type
	SourcingMode SourcingMode
	fn           commandHandlerFunc
}

// NewCommandHandler registers the (command, publisher) -> result variant:
// no state is rebuilt for this command.
func NewCommandHandler[C any](sourcingMode SourcingMode, fn func(ctx context.Context, command C, publisher *CommandEventCapturer) (any, error)) CommandHandlerDefinition {
	return CommandHandlerDefinition{
		CommandType:  typeOf[C](),
		SourcingMode: sourcingMode,
		fn: func(ctx context.Context, command any, _ any, _ MetaData, publisher *CommandEventCapturer) (any, error) {
			typedCommand, _ := command.(C)
			return fn(ctx, typedCommand, publisher)
		},
	}
}

// NewCommandHandlerWithInstance registers the (command, instance,
// publisher) -> result variant.
func NewCommandHandlerWithInstance[C any, I any](sourcingMode SourcingMode, fn func(ctx context.Context, command C, instance I, publisher *CommandEventCapturer) (any, error)) CommandHandlerDefinition {
	return CommandHandlerDefinition{
		CommandType:  typeOf[C](),
		InstanceType: typeOf[I](),
		SourcingMode: sourcingMode,
		fn: func(ctx context.Context, command any, instance any, _ MetaData, publisher *CommandEventCapturer) (any, error) {
			typedCommand, _ := command.(C)
			typedInstance, _ := instance.(I)
			return fn(ctx, typedCommand, typedInstance, publisher)
		},
	}
}

// NewCommandHandlerWithMetaData registers the (command, instance,
// metaData, publisher) -> result variant.
func NewCommandHandlerWithMetaData[C any, I any](sourcingMode SourcingMode, fn func(ctx context.Context, command C, instance I, metaData MetaData, publisher *CommandEventCapturer) (any, error)) CommandHandlerDefinition {
	return CommandHandlerDefinition{
		CommandType:  typeOf[C](),
		InstanceType: typeOf[I](),
		SourcingMode: sourcingMode,
		fn: func(ctx context.Context, command any, instance any, metaData MetaData, publisher *CommandEventCapturer) (any, error) {
			typedCommand, _ := command.(C)
			typedInstance, _ := instance.(I)
			return fn(ctx, typedCommand, typedInstance, metaData, publisher)
		},
	}
}
