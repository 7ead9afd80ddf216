package handling

import (
	"hash/fnv"
	"strings"

	"escqrs/pkg/esdb"
)

// EventSequenceResolver derives the ordering/concurrency key for an
// event. Two events with the same key execute in source order within a
// partition; different keys may run concurrently.
type EventSequenceResolver interface {
	SequenceKey(event esdb.Event) string
}

// NoEventSequenceResolver returns a constant key: effectively a single
// serial stream per partition.
type NoEventSequenceResolver struct{}

func (NoEventSequenceResolver) SequenceKey(esdb.Event) string { return "" }

// PerSubjectEventSequenceResolver keys by the event's own subject.
type PerSubjectEventSequenceResolver struct{}

func (PerSubjectEventSequenceResolver) SequenceKey(event esdb.Event) string { return event.Subject }

// PerConfigurableLevelSubjectEventSequenceResolver keys by the first K
// path segments of the event's subject.
type PerConfigurableLevelSubjectEventSequenceResolver struct {
	Levels int
}

func NewPerConfigurableLevelSubjectEventSequenceResolver(levels int) PerConfigurableLevelSubjectEventSequenceResolver {
	return PerConfigurableLevelSubjectEventSequenceResolver{Levels: levels}
}

func (r PerConfigurableLevelSubjectEventSequenceResolver) SequenceKey(event esdb.Event) string {
	segments := strings.Split(strings.Trim(event.Subject, "/"), "/")
	if r.Levels >= len(segments) {
		return event.Subject
	}
	return "/" + strings.Join(segments[:r.Levels], "/")
}

// partitionFor assigns a sequence key to one of N partitions via
// hash(k) mod N.
func partitionFor(key string, partitionCount int) int {
	if partitionCount <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitionCount))
}
