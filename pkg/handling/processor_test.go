package handling

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"escqrs/pkg/esdb"
	"escqrs/pkg/esdb/fake"
	"escqrs/pkg/escqrs"
)

type widgetCreated struct {
	Name string
}

var widgetTypeResolver = escqrs.NewFullyQualifiedTypeResolver(reflect.TypeOf(widgetCreated{}))

func newWidgetResolver() EventResolver {
	reader := escqrs.NewEventReader(widgetTypeResolver, nil)
	return NewEscqrsEventResolver(reader)
}

func widgetCandidate(t *testing.T, subject, name string) esdb.EventCandidate {
	t.Helper()
	tag, err := widgetTypeResolver.ResolveTag(widgetCreated{})
	if err != nil {
		t.Fatalf("ResolveTag() = %v", err)
	}
	data, err := escqrs.EventDataMarshaller{}.Marshal(widgetCreated{Name: name}, nil)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	return esdb.EventCandidate{Subject: subject, Type: tag, Data: data}
}

func TestProcessorDispatchesAndCheckpoints(t *testing.T) {
	client := fake.New()

	var mu sync.Mutex
	var seen []string
	registry := NewRegistry()
	registry.AddEventHandler(NewEventHandler(func(event widgetCreated) error {
		mu.Lock()
		seen = append(seen, event.Name)
		mu.Unlock()
		return nil
	}))

	tracker := NewInMemoryProgressTracker()
	config := registry.BuildGroup(GroupConfig{
		Name:            "widgets",
		Client:          client,
		Resolver:        newWidgetResolver(),
		ProgressTracker: tracker,
	})
	config = config.withDefaults()

	client.Write(context.Background(), []esdb.EventCandidate{widgetCandidate(t, "/widgets/1", "first")}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	processor := NewProcessor(config, 0)
	err := processor.runOnce(ctx)
	if err != nil && ctx.Err() == nil {
		t.Fatalf("runOnce() = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "first" {
		t.Fatalf("seen = %v, want [first]", seen)
	}

	checkpoint, found, loadErr := tracker.Load(context.Background(), ProgressKey{Group: "widgets", Partition: 0})
	if loadErr != nil || !found {
		t.Fatalf("checkpoint not stored: found=%v err=%v", found, loadErr)
	}
	if checkpoint != "0" {
		t.Fatalf("checkpoint = %q, want 0", checkpoint)
	}
}

// orderedStoreTracker delays Store("0") until Store("1") has already
// landed, reproducing two sequence-key workers in the same partition
// completing out of order: the lower event id's checkpoint write is the
// one that arrives last.
type orderedStoreTracker struct {
	*InMemoryProgressTracker
	secondStored chan struct{}
}

func (t *orderedStoreTracker) Store(ctx context.Context, key ProgressKey, eventID string) error {
	if eventID == "0" {
		select {
		case <-t.secondStored:
		case <-time.After(2 * time.Second):
		}
	}
	err := t.InMemoryProgressTracker.Store(ctx, key, eventID)
	if eventID == "1" {
		close(t.secondStored)
	}
	return err
}

func TestProcessorCheckpointDoesNotRegressAcrossConcurrentSequenceKeys(t *testing.T) {
	client := fake.New()

	registry := NewRegistry()
	registry.AddEventHandler(NewEventHandler(func(event widgetCreated) error { return nil }))

	tracker := &orderedStoreTracker{
		InMemoryProgressTracker: NewInMemoryProgressTracker(),
		secondStored:            make(chan struct{}),
	}

	config := registry.BuildGroup(GroupConfig{
		Name:             "widgets",
		Client:           client,
		Resolver:         newWidgetResolver(),
		Partitions:       1,
		SequenceResolver: PerSubjectEventSequenceResolver{},
		ProgressTracker:  tracker,
	})
	config = config.withDefaults()

	// Two distinct subjects give two distinct sequence keys, so both
	// events are dispatched concurrently by sequenceWorkers even though
	// they share partition 0.
	client.Write(context.Background(), []esdb.EventCandidate{
		widgetCandidate(t, "/widgets/1", "first"),  // event id "0"
		widgetCandidate(t, "/widgets/2", "second"), // event id "1"
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	processor := NewProcessor(config, 0)
	if err := processor.runOnce(ctx); err != nil && ctx.Err() == nil {
		t.Fatalf("runOnce() = %v", err)
	}

	checkpoint, found, err := tracker.Load(context.Background(), ProgressKey{Group: "widgets", Partition: 0})
	if err != nil || !found {
		t.Fatalf("checkpoint not stored: found=%v err=%v", found, err)
	}
	if checkpoint != "1" {
		t.Fatalf("checkpoint = %q, want 1 (Store(0) landing after Store(1) must not regress it)", checkpoint)
	}
}

func TestProcessorSkipsEventsOutsideItsPartition(t *testing.T) {
	client := fake.New()

	var calls int
	registry := NewRegistry()
	registry.AddEventHandler(NewEventHandler(func(event widgetCreated) error {
		calls++
		return nil
	}))

	config := registry.BuildGroup(GroupConfig{
		Name:             "widgets",
		Client:           client,
		Resolver:         newWidgetResolver(),
		Partitions:       2,
		SequenceResolver: PerSubjectEventSequenceResolver{},
	})
	config = config.withDefaults()

	client.Write(context.Background(), []esdb.EventCandidate{widgetCandidate(t, "/widgets/1", "only-one")}, nil)

	wrongPartition := partitionFor("/widgets/1", 2)
	otherPartition := 1 - wrongPartition

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	processor := NewProcessor(config, otherPartition)
	processor.runOnce(ctx)

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 for a processor not owning this event's partition", calls)
	}
}

func TestStartGroupCoversEveryPartition(t *testing.T) {
	client := fake.New()
	defer client.Close()

	var mu sync.Mutex
	owners := make(map[int]bool)
	registry := NewRegistry()
	registry.AddEventHandler(NewEventHandlerWithRaw(func(rawEvent esdb.Event, _ widgetCreated) error {
		mu.Lock()
		owners[partitionFor(rawEvent.Subject, 3)] = true
		mu.Unlock()
		return nil
	}))

	config := registry.BuildGroup(GroupConfig{
		Name:             "widgets",
		Client:           client,
		Resolver:         newWidgetResolver(),
		Partitions:       3,
		SequenceResolver: PerSubjectEventSequenceResolver{},
	})

	for _, subject := range []string{"/widgets/1", "/widgets/2", "/widgets/3"} {
		client.Write(context.Background(), []esdb.EventCandidate{widgetCandidate(t, subject, subject)}, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	StartGroup(ctx, config)

	mu.Lock()
	defer mu.Unlock()
	if len(owners) == 0 {
		t.Fatal("no handler invocations observed across any partition")
	}
	for _, subject := range []string{"/widgets/1", "/widgets/2", "/widgets/3"} {
		if !owners[partitionFor(subject, 3)] {
			t.Fatalf("partition %d, owner of %s, never dispatched it", partitionFor(subject, 3), subject)
		}
	}
}
