package escqrs_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"escqrs/pkg/esdb"
	"escqrs/pkg/esdb/fake"
	"escqrs/pkg/escqrs"
)

// recordingClient wraps a fake.Client, capturing the preconditions passed
// to the most recent Write call so tests can assert on precondition
// synthesis without the fake store's own precondition enforcement
// masking a wrong-but-harmless precondition set.
type recordingClient struct {
	*fake.Client
	lastPreconditions []esdb.Precondition
}

func (c *recordingClient) Write(ctx context.Context, candidates []esdb.EventCandidate, preconditions []esdb.Precondition) ([]esdb.Event, error) {
	c.lastPreconditions = preconditions
	return c.Client.Write(ctx, candidates, preconditions)
}

// counter is a tiny rebuilt instance: the number of Incremented events
// seen for a subject.
type counter struct {
	Value int
}

type Incremented struct {
	By int
}

type IncrementCounter struct {
	subject   string
	condition escqrs.SubjectCondition
}

func (c IncrementCounter) Subject() string                    { return c.subject }
func (c IncrementCounter) Condition() escqrs.SubjectCondition { return c.condition }

func newRouter(client *fake.Client) *escqrs.CommandRouter {
	resolver := escqrs.NewFullyQualifiedTypeResolver(reflect.TypeOf(Incremented{}))
	config := escqrs.RouterConfig{
		Client:   client,
		Resolver: resolver,
		Source:   "test",
		Cache:    escqrs.NewLRUStateCache(16),
	}
	registry := escqrs.NewRegistry()
	registry.AddStateRebuildingHandler(escqrs.NewStateRebuildingHandler(func(c *counter, e Incremented) *counter {
		value := e.By
		if c != nil {
			value += c.Value
		}
		return &counter{Value: value}
	}))
	registry.AddCommandHandler(escqrs.NewCommandHandlerWithInstance(
		escqrs.SourcingLocal,
		func(_ context.Context, _ IncrementCounter, current *counter, publisher *escqrs.CommandEventCapturer) (any, error) {
			if err := publisher.Publish(Incremented{By: 1}, nil); err != nil {
				return nil, err
			}
			return publisher.Instance, nil
		},
	))
	return registry.Build(config)
}

func TestRouterPristinePurchaseWritesOneEvent(t *testing.T) {
	client := fake.New()
	router := newRouter(client)

	_, err := router.Route(context.Background(), IncrementCounter{subject: "/counters/a", condition: escqrs.SubjectConditionPristine}, nil)
	require.NoError(t, err)

	events := client.Events()
	require.Len(t, events, 1)
	require.Equal(t, "/counters/a", events[0].Subject)
}

func TestRouterRebuildsStateAcrossCommands(t *testing.T) {
	client := fake.New()
	router := newRouter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := router.Route(ctx, IncrementCounter{subject: "/counters/b", condition: escqrs.SubjectConditionNone}, nil)
		require.NoError(t, err)
	}

	result, err := router.Route(ctx, IncrementCounter{subject: "/counters/b", condition: escqrs.SubjectConditionNone}, nil)
	require.NoError(t, err)

	got, ok := result.(*counter)
	require.True(t, ok)
	require.Equal(t, 4, got.Value)
}

func TestRouterMissingHandlerIsNonTransient(t *testing.T) {
	client := fake.New()
	config := escqrs.RouterConfig{
		Client:   client,
		Resolver: escqrs.NewFullyQualifiedTypeResolver(),
		Source:   "test",
	}
	router := escqrs.NewCommandRouter(config, nil, nil)

	_, err := router.Route(context.Background(), IncrementCounter{subject: "/counters/c"}, nil)
	require.Error(t, err)
	require.False(t, escqrs.IsTransient(err))
}

// Created mirrors a pristine-creation command's sole event: the one
// event it writes, at exactly the command's own subject.
type Created struct{}

type CreateThing struct {
	subject string
}

func (c CreateThing) Subject() string                    { return c.subject }
func (c CreateThing) Condition() escqrs.SubjectCondition { return escqrs.SubjectConditionPristine }

// TestRouterSynthesizesPristineForCommandsOwnSubject: with nothing
// sourced for the command's own subject, the captured event
// published to that same subject must still synthesize
// SubjectIsPristine(subject) — it is not exempted just because its
// subject equals the command's, only because it was found in
// sourcedSubjectIds.
func TestRouterSynthesizesPristineForCommandsOwnSubject(t *testing.T) {
	base := fake.New()
	client := &recordingClient{Client: base}
	resolver := escqrs.NewFullyQualifiedTypeResolver(reflect.TypeOf(Created{}))
	registry := escqrs.NewRegistry()
	registry.AddCommandHandler(escqrs.NewCommandHandler(
		escqrs.SourcingLocal,
		func(_ context.Context, _ CreateThing, publisher *escqrs.CommandEventCapturer) (any, error) {
			return nil, publisher.Publish(Created{}, nil)
		},
	))
	router := registry.Build(escqrs.RouterConfig{Client: client, Resolver: resolver, Source: "test"})

	_, err := router.Route(context.Background(), CreateThing{subject: "/things/U"}, nil)
	require.NoError(t, err)

	require.Len(t, client.lastPreconditions, 1)
	raw, err := client.lastPreconditions[0].MarshalJSON()
	require.NoError(t, err)
	var decoded struct {
		Type    string `json:"type"`
		Subject string `json:"subject"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "subjectIsPristine", decoded.Type)
	require.Equal(t, "/things/U", decoded.Subject)
}
