package fake_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"escqrs/pkg/esdb"
	"escqrs/pkg/esdb/fake"
)

func mustWrite(t *testing.T, client *fake.Client, subject, eventType string) esdb.Event {
	t.Helper()
	events, err := client.Write(context.Background(), []esdb.EventCandidate{{Subject: subject, Type: eventType}}, nil)
	if err != nil {
		t.Fatalf("Write() = %v", err)
	}
	return events[0]
}

func TestWriteAssignsMonotonicIDsAndHashChain(t *testing.T) {
	client := fake.New()
	first := mustWrite(t, client, "/s", "a")
	second := mustWrite(t, client, "/s", "b")

	if first.ID != "0" || second.ID != "1" {
		t.Fatalf("ids = %s, %s, want 0, 1", first.ID, second.ID)
	}
	if second.PredecessorHash != first.Hash {
		t.Fatalf("PredecessorHash = %q, want %q", second.PredecessorHash, first.Hash)
	}
}

func TestPristinePreconditionRejectsExistingSubject(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/s", "a")

	_, err := client.Write(context.Background(), []esdb.EventCandidate{{Subject: "/s", Type: "b"}},
		[]esdb.Precondition{esdb.NewSubjectIsPristine("/s")})
	if !esdb.IsConflict(err) {
		t.Fatalf("Write() error = %v, want ConflictError", err)
	}
}

func TestSubjectIsOnEventIDRejectsStaleID(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/s", "a")
	mustWrite(t, client, "/s", "b")

	_, err := client.Write(context.Background(), []esdb.EventCandidate{{Subject: "/s", Type: "c"}},
		[]esdb.Precondition{esdb.NewSubjectIsOnEventID("/s", "0")})
	if !esdb.IsConflict(err) {
		t.Fatalf("Write() error = %v, want ConflictError for a stale event id", err)
	}
}

func TestReadRecursiveIncludesDescendants(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/books", "a")
	mustWrite(t, client, "/books/1", "b")
	mustWrite(t, client, "/other", "c")

	var subjects []string
	err := client.Read(context.Background(), "/books", []esdb.Option{esdb.WithRecursive()}, func(e esdb.Event) error {
		subjects = append(subjects, e.Subject)
		return nil
	})
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "/books" || subjects[1] != "/books/1" {
		t.Fatalf("subjects = %v, want [/books /books/1]", subjects)
	}
}

func TestReadNonRecursiveExcludesDescendants(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/books", "a")
	mustWrite(t, client, "/books/1", "b")

	var subjects []string
	err := client.Read(context.Background(), "/books", nil, func(e esdb.Event) error {
		subjects = append(subjects, e.Subject)
		return nil
	})
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if len(subjects) != 1 || subjects[0] != "/books" {
		t.Fatalf("subjects = %v, want [/books]", subjects)
	}
}

func TestReadLowerBoundExclusiveSkipsCheckpoint(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/s", "a")
	mustWrite(t, client, "/s", "b")
	mustWrite(t, client, "/s", "c")

	var ids []string
	err := client.Read(context.Background(), "/s", []esdb.Option{esdb.WithLowerBoundExclusive("0")}, func(e esdb.Event) error {
		ids = append(ids, e.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
}

func TestObserveDeliversExistingThenNewEvents(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/s", "a")

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan esdb.Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Observe(ctx, "/s", nil, func(e esdb.Event) error {
			seen <- e
			return nil
		})
	}()

	first := <-seen
	if first.ID != "0" {
		t.Fatalf("first id = %s, want 0", first.ID)
	}

	mustWrite(t, client, "/s", "b")
	second := <-seen
	if second.ID != "1" {
		t.Fatalf("second id = %s, want 1", second.ID)
	}

	cancel()
	select {
	case err := <-done:
		if !esdb.IsInterrupted(err) {
			t.Fatalf("Observe() error = %v, want InterruptedError after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Observe() did not return after ctx cancellation")
	}
}

func TestQueryTreatsQueryTextAsSubjectFilter(t *testing.T) {
	client := fake.New()
	mustWrite(t, client, "/s", "a")
	mustWrite(t, client, "/other", "b")

	var rows []json.RawMessage
	err := client.Query(context.Background(), "/s", func(row json.RawMessage) error {
		rows = append(rows, row)
		return nil
	}, func(error) {})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}
