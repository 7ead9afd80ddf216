package escqrs

import (
	"encoding/json"

	"escqrs/pkg/esdb"
)

// EventReader drives a requestor (typically a closure over
// esdb.Client.Read or .Observe) and pushes each raw event through a
// three-stage callback shape: raw, upcasted, and converted. Callers pay
// only for the conversion stages they actually use.
type EventReader struct {
	resolver   EventTypeResolver
	upcasters  *EventUpcasters
	marshaller EventDataMarshaller
}

// NewEventReader builds a reader. upcasters may be nil (no upcasting).
func NewEventReader(resolver EventTypeResolver, upcasters *EventUpcasters) *EventReader {
	return &EventReader{resolver: resolver, upcasters: upcasters, marshaller: EventDataMarshaller{}}
}

// UpcastedEvent is one tuple surviving the upcaster pipeline. Convert
// performs the (deferred) final type resolution + unmarshal.
type UpcastedEvent struct {
	Raw      esdb.Event
	Type     string
	MetaData MetaData
	Payload  json.RawMessage

	reader *EventReader
}

// Convert resolves Type to a registered Go type and unmarshals Payload
// into it.
func (u UpcastedEvent) Convert() (event any, metaData MetaData, err error) {
	goType, err := u.reader.resolver.ResolveType(u.Type)
	if err != nil {
		return nil, nil, err
	}
	envelope, err := json.Marshal(eventEnvelope{MetaData: u.MetaData, Payload: u.Payload})
	if err != nil {
		return nil, nil, &FrameworkError{RouterError: RouterError{Op: "convert", Err: err}, Transient: false}
	}
	return u.reader.marshaller.Unmarshal(envelope, goType)
}

// Requestor drives one read/observe exchange, handing each event to
// consumer in stream order.
type Requestor func(consumer func(esdb.Event) error) error

// ConsumeRaw invokes requestor; for each raw event, rawCallback receives
// the raw event plus an upcasted func it may call (or not) to run the
// upcaster pipeline and obtain the tuples worth converting.
func (r *EventReader) ConsumeRaw(
	requestor Requestor,
	rawCallback func(rawEvent esdb.Event, upcasted func(fn func([]UpcastedEvent) error) error) error,
) error {
	return requestor(func(raw esdb.Event) error {
		return rawCallback(raw, func(fn func([]UpcastedEvent) error) error {
			initialMeta, initialPayload, err := splitEnvelope(raw.Data)
			if err != nil {
				return err
			}
			tuples, err := r.upcasters.Apply(raw, initialMeta, initialPayload)
			if err != nil {
				return err
			}
			upcasted := make([]UpcastedEvent, len(tuples))
			for i, t := range tuples {
				upcasted[i] = UpcastedEvent{Raw: raw, Type: t.Type, MetaData: t.MetaData, Payload: t.Payload, reader: r}
			}
			return fn(upcasted)
		})
	})
}

// ConsumeAsObject is the convenience wrapper that fully converts every
// event and yields (rawEvent, payload, metaData) to consumer.
func (r *EventReader) ConsumeAsObject(requestor Requestor, consumer func(rawEvent esdb.Event, payload any, metaData MetaData) error) error {
	return r.ConsumeRaw(requestor, func(raw esdb.Event, upcasted func(func([]UpcastedEvent) error) error) error {
		return upcasted(func(events []UpcastedEvent) error {
			for _, ue := range events {
				payload, metaData, err := ue.Convert()
				if err != nil {
					return err
				}
				if err := consumer(raw, payload, metaData); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func splitEnvelope(data json.RawMessage) (MetaData, json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, &FrameworkError{RouterError: RouterError{Op: "splitEnvelope", Err: err}, Transient: false}
	}
	return envelope.MetaData, envelope.Payload, nil
}
