package escqrs

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// EventTypeResolver is a bijection-like map between in-process event types
// and the string type tags stored on the wire.
type EventTypeResolver interface {
	// ResolveTag returns the tag for a concrete event instance's type.
	ResolveTag(event any) (string, error)
	// ResolveType returns the registered Go type for a wire tag.
	ResolveType(tag string) (reflect.Type, error)
}

// fullyQualifiedTypeResolver tags events with their Go package-qualified
// type name. The reverse direction still needs every possible event type
// registered up front, since Go cannot construct a type from a string at
// runtime.
type fullyQualifiedTypeResolver struct {
	byTag map[string]reflect.Type
}

// NewFullyQualifiedTypeResolver builds a resolver that tags events with
// their Go package path + type name, an alternative to the explicit
// type-to-tag mapping. eventTypes lists every event type that must be
// resolvable from a wire tag (typically every event type named in a
// StateRebuildingHandlerDefinition).
func NewFullyQualifiedTypeResolver(eventTypes ...reflect.Type) EventTypeResolver {
	byTag := make(map[string]reflect.Type, len(eventTypes))
	for _, t := range eventTypes {
		byTag[fullyQualifiedName(t)] = t
	}
	return &fullyQualifiedTypeResolver{byTag: byTag}
}

func fullyQualifiedName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

func (r *fullyQualifiedTypeResolver) ResolveTag(event any) (string, error) {
	return fullyQualifiedName(reflect.TypeOf(event)), nil
}

func (r *fullyQualifiedTypeResolver) ResolveType(tag string) (reflect.Type, error) {
	t, ok := r.byTag[tag]
	if !ok {
		return nil, &FrameworkError{
			RouterError: RouterError{Op: "resolveType", Err: fmt.Errorf("no event type registered for tag %q", tag)},
			Transient:   false,
		}
	}
	return t, nil
}

// configuredTypeResolver tags events using an explicit type->tag map.
// Resolving a concrete instance walks the map for a *unique* entry whose
// registered type is assignable from the instance's concrete type,
// raising on ambiguity or absence.
type configuredTypeResolver struct {
	tagByType map[reflect.Type]string
	typeByTag map[string]reflect.Type
}

// NewConfiguredTypeResolver builds a resolver from an explicit
// type-to-tag map, an alternative to the fully-qualified-name strategy.
func NewConfiguredTypeResolver(mapping map[reflect.Type]string) EventTypeResolver {
	tagByType := make(map[reflect.Type]string, len(mapping))
	typeByTag := make(map[string]reflect.Type, len(mapping))
	for t, tag := range mapping {
		tagByType[t] = tag
		typeByTag[tag] = t
	}
	return &configuredTypeResolver{tagByType: tagByType, typeByTag: typeByTag}
}

func (r *configuredTypeResolver) ResolveTag(event any) (string, error) {
	concrete := reflect.TypeOf(event)
	var matchTag string
	matches := 0
	for t, tag := range r.tagByType {
		if concrete == t || concrete.AssignableTo(t) {
			matchTag = tag
			matches++
		}
	}
	switch matches {
	case 0:
		return "", &FrameworkError{
			RouterError: RouterError{Op: "resolveTag", Err: fmt.Errorf("no tag registered assignable from %s", concrete)},
			Transient:   false,
		}
	case 1:
		return matchTag, nil
	default:
		return "", &FrameworkError{
			RouterError: RouterError{Op: "resolveTag", Err: fmt.Errorf("ambiguous tag for %s: %d assignable entries", concrete, matches)},
			Transient:   false,
		}
	}
}

func (r *configuredTypeResolver) ResolveType(tag string) (reflect.Type, error) {
	t, ok := r.typeByTag[tag]
	if !ok {
		return nil, &FrameworkError{
			RouterError: RouterError{Op: "resolveType", Err: fmt.Errorf("no event type registered for tag %q", tag)},
			Transient:   false,
		}
	}
	return t, nil
}

// eventEnvelope is the {metadata, payload} wire shape an
// EventDataMarshaller produces and consumes.
type eventEnvelope struct {
	MetaData MetaData        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// EventDataMarshaller converts between (payload, metaData) pairs and the
// {metadata, payload} JSON object stored as an event's data.
type EventDataMarshaller struct{}

// Marshal serializes payload+metaData into the wire envelope.
func (EventDataMarshaller) Marshal(payload any, metaData MetaData) (json.RawMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, &FrameworkError{
			RouterError: RouterError{Op: "marshal", Err: err},
			Transient:   false,
		}
	}
	envelope := eventEnvelope{MetaData: metaData, Payload: payloadBytes}
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, &FrameworkError{
			RouterError: RouterError{Op: "marshal", Err: err},
			Transient:   false,
		}
	}
	return out, nil
}

// Unmarshal decodes a wire envelope, placing the payload into a fresh
// value of goType and returning it alongside the metadata.
func (EventDataMarshaller) Unmarshal(data json.RawMessage, goType reflect.Type) (any, MetaData, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, &FrameworkError{
			RouterError: RouterError{Op: "unmarshal", Err: err},
			Transient:   false,
		}
	}
	target := reflect.New(goType)
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, target.Interface()); err != nil {
			return nil, nil, &FrameworkError{
				RouterError: RouterError{Op: "unmarshal", Err: err},
				Transient:   false,
			}
		}
	}
	return target.Elem().Interface(), envelope.MetaData, nil
}
