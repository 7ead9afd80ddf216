package escqrs

import (
	"context"

	"escqrs/pkg/esdb"
)

// EventPublisher builds EventCandidates from CapturedEvents and forwards
// them to an esdb.Client in a single atomic write. Atomicity is delegated
// entirely to the store; the publisher itself is stateless.
type EventPublisher struct {
	client     esdb.Client
	source     string
	marshaller EventDataMarshaller
}

// NewEventPublisher builds a publisher. source is stamped onto every
// EventCandidate (the CloudEvents "source" field).
func NewEventPublisher(client esdb.Client, source string) *EventPublisher {
	return &EventPublisher{client: client, source: source, marshaller: EventDataMarshaller{}}
}

// Publish marshals each captured event and writes them all in one call
// with exactly the given preconditions. CapturedEvent.Preconditions is
// not read here; the router folds those into preconditions beforehand.
func (p *EventPublisher) Publish(ctx context.Context, resolver EventTypeResolver, captured []CapturedEvent, preconditions []esdb.Precondition) ([]esdb.Event, error) {
	candidates := make([]esdb.EventCandidate, len(captured))
	for i, ce := range captured {
		tag, err := resolver.ResolveTag(ce.Payload)
		if err != nil {
			return nil, err
		}
		data, err := p.marshaller.Marshal(ce.Payload, ce.MetaData)
		if err != nil {
			return nil, err
		}
		candidates[i] = esdb.EventCandidate{
			Source:  p.source,
			Subject: ce.Subject,
			Type:    tag,
			Data:    data,
		}
	}
	return p.client.Write(ctx, candidates, preconditions)
}
